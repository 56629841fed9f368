package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/events"
)

// HookPrefix prefixes the event type to form the hook function name.
const HookPrefix = "on_"

// Subscriber is the event source Run consumes.
type Subscriber interface {
	Subscribe(name string, buffer int) (<-chan events.Event, func())
}

// Hooks owns one sandboxed VM loaded from a script directory. Calls are
// serialized; the VM is single-threaded.
type Hooks struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	roller *dice.Roller
	logger *zap.Logger

	calls    atomic.Int64
	failures atomic.Int64
}

// Load creates a VM, registers the engine module, then executes every *.lua
// file in dir in lexicographic order. Each file runs under the instruction limit.
//
// Precondition: dir must be a readable directory; roller must be non-nil.
// Postcondition: On error no VM is retained.
func Load(dir string, limit int, roller *dice.Roller, logger *zap.Logger) (*Hooks, error) {
	if roller == nil {
		panic("scripting.Load: roller must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hooks{L: NewSandboxedState(), limit: limit, roller: roller, logger: logger}
	h.registerModules(h.L)

	entries, err := os.ReadDir(dir)
	if err != nil {
		h.L.Close()
		return nil, fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, path := range files {
		if err := Limited(h.L, limit, func() error { return h.L.DoFile(path) }); err != nil {
			h.L.Close()
			return nil, fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}
	logger.Info("lua hooks loaded", zap.String("dir", dir), zap.Int("files", len(files)))
	return h, nil
}

// Handle calls on_<e.Type>(event) when the scripts define it. Lua errors,
// including an exhausted instruction budget, are logged and counted.
//
// Postcondition: Returns true when a hook ran to completion.
func (h *Hooks) Handle(e events.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.L == nil {
		return false
	}
	fn := h.L.GetGlobal(HookPrefix + string(e.Type))
	if fn.Type() != lua.LTFunction {
		return false
	}
	h.calls.Add(1)
	err := Limited(h.L, h.limit, func() error {
		return h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, eventTable(h.L, e))
	})
	if err != nil {
		h.failures.Add(1)
		h.logger.Warn("lua hook failed",
			zap.String("hook", HookPrefix+string(e.Type)),
			zap.Int64("tick", e.Tick),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Run feeds events from src to Handle until ctx ends or the subscription closes.
func (h *Hooks) Run(ctx context.Context, src Subscriber, buffer int) {
	ch, cancel := src.Subscribe("lua-hooks", max(buffer, 1))
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			h.Handle(e)
		}
	}
}

// Stats returns the number of hook invocations and how many of them failed.
func (h *Hooks) Stats() (calls, failures int64) {
	return h.calls.Load(), h.failures.Load()
}

// Close releases the VM. Later events are ignored.
func (h *Hooks) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.L != nil {
		h.L.Close()
		h.L = nil
	}
}
