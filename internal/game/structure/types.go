// Package structure implements static defensive emplacements: their types,
// placement around the defended core, and per-tick targeting and attacks.
package structure

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Type defines a structure archetype.
type Type struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	Range    float64 `yaml:"range"`
	Damage   int     `yaml:"damage"`
	Cooldown int     `yaml:"cooldown"`
	// SplashRadius > 0 gives the attack an area effect around the impact point.
	SplashRadius   float64 `yaml:"splash_radius"`
	SplashFraction float64 `yaml:"splash_fraction"`
	// ProjectileSpeed > 0 makes the attack a travel-time projectile; 0 is an instant hit.
	ProjectileSpeed float64 `yaml:"projectile_speed"`
}

// Instant reports whether the attack lands on the tick it is fired.
func (t *Type) Instant() bool { return t.ProjectileSpeed <= 0 }

// Validate checks the type.
//
// Postcondition: Returns nil iff ID and Name are set, Range > 0, Damage >= 1,
// Cooldown >= 1 and splash settings are consistent.
func (t *Type) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("structure type: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("structure type %q: name must not be empty", t.ID)
	}
	if t.Range <= 0 {
		return fmt.Errorf("structure type %q: range must be > 0", t.ID)
	}
	if t.Damage < 1 {
		return fmt.Errorf("structure type %q: damage must be >= 1", t.ID)
	}
	if t.Cooldown < 1 {
		return fmt.Errorf("structure type %q: cooldown must be >= 1", t.ID)
	}
	if t.SplashRadius < 0 || t.SplashFraction < 0 || t.SplashFraction > 1 {
		return fmt.Errorf("structure type %q: splash_radius must be >= 0 and splash_fraction in [0, 1]", t.ID)
	}
	return nil
}

// Catalog indexes structure types by ID.
type Catalog struct {
	types map[string]*Type
}

// NewCatalog validates types and indexes them.
func NewCatalog(types []*Type) (*Catalog, error) {
	c := &Catalog{types: make(map[string]*Type, len(types))}
	for _, t := range types {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.types[t.ID]; dup {
			return nil, fmt.Errorf("structure catalog: duplicate type %q", t.ID)
		}
		c.types[t.ID] = t
	}
	return c, nil
}

// Lookup returns the type with id.
func (c *Catalog) Lookup(id string) (*Type, bool) {
	t, ok := c.types[id]
	return t, ok
}

// IDs returns the type IDs in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.types))
	for id := range c.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadCatalog reads every *.yaml file in dir; each file holds a list of types.
//
// Precondition: dir must be a readable directory.
func LoadCatalog(dir string) (*Catalog, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing structure dir %q: %w", dir, err)
	}
	sort.Strings(paths)
	var all []*Type
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var file struct {
			Types []*Type `yaml:"types"`
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		all = append(all, file.Types...)
	}
	return NewCatalog(all)
}

// Arrow and Mortar are the built-in types.
var (
	Arrow  = Type{ID: "arrow", Name: "Arrow Tower", Range: 20, Damage: 6, Cooldown: 20}
	Mortar = Type{ID: "mortar", Name: "Mortar", Range: 24, Damage: 12, Cooldown: 60, SplashRadius: 4, SplashFraction: 0.5, ProjectileSpeed: 1}
)

// DefaultCatalog returns a catalog with the built-in types.
func DefaultCatalog() *Catalog {
	arrow, mortar := Arrow, Mortar
	c, err := NewCatalog([]*Type{&arrow, &mortar})
	if err != nil {
		panic("structure: invalid built-in catalog: " + err.Error())
	}
	return c
}
