//go:build debug

package check

const strict = true
