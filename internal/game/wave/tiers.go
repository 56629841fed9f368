package wave

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/coredefense/internal/game/dice"
)

// AgentType is one hostile archetype.
type AgentType struct {
	ID             string  `yaml:"id"`
	Name           string  `yaml:"name"`
	MaxHP          int     `yaml:"max_hp"`
	Speed          float64 `yaml:"speed"`
	Damage         string  `yaml:"damage"`
	AttackCooldown int     `yaml:"attack_cooldown"`
	Reach          float64 `yaml:"reach"`

	damage dice.Expression
}

// DamageExpr returns the parsed damage expression.
func (a *AgentType) DamageExpr() dice.Expression { return a.damage }

// Validate checks the agent type and parses its damage expression.
//
// Postcondition: Returns nil iff ID and Name are set, MaxHP >= 1, Speed > 0,
// AttackCooldown >= 1, Reach > 0 and Damage parses.
func (a *AgentType) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("agent type: id must not be empty")
	}
	if a.Name == "" {
		return fmt.Errorf("agent type %q: name must not be empty", a.ID)
	}
	if a.MaxHP < 1 {
		return fmt.Errorf("agent type %q: max_hp must be >= 1", a.ID)
	}
	if a.Speed <= 0 {
		return fmt.Errorf("agent type %q: speed must be > 0", a.ID)
	}
	if a.AttackCooldown < 1 {
		return fmt.Errorf("agent type %q: attack_cooldown must be >= 1", a.ID)
	}
	if a.Reach <= 0 {
		return fmt.Errorf("agent type %q: reach must be > 0", a.ID)
	}
	expr, err := dice.Parse(a.Damage)
	if err != nil {
		return fmt.Errorf("agent type %q: %w", a.ID, err)
	}
	a.damage = expr
	return nil
}

// tierFile is the YAML layout of one tier table file.
type tierFile struct {
	Tier   int          `yaml:"tier"`
	Agents []*AgentType `yaml:"agents"`
}

// TierTable maps each tier (1..5) to the agent types a wave of that tier
// draws from uniformly.
type TierTable struct {
	tiers map[int][]*AgentType
	byID  map[string]*AgentType
}

// NewTierTable builds and validates a table.
//
// Postcondition: Returns an error unless every tier 1..maxTier has at least
// one agent type and IDs are unique.
func NewTierTable(tiers map[int][]*AgentType, maxTier int) (*TierTable, error) {
	t := &TierTable{tiers: make(map[int][]*AgentType), byID: make(map[string]*AgentType)}
	for tier, agents := range tiers {
		if tier < 1 || tier > maxTier {
			return nil, fmt.Errorf("tier table: tier %d out of range [1, %d]", tier, maxTier)
		}
		for _, a := range agents {
			if err := a.Validate(); err != nil {
				return nil, fmt.Errorf("tier %d: %w", tier, err)
			}
			if _, dup := t.byID[a.ID]; dup {
				return nil, fmt.Errorf("tier table: duplicate agent id %q", a.ID)
			}
			t.byID[a.ID] = a
			t.tiers[tier] = append(t.tiers[tier], a)
		}
	}
	for tier := 1; tier <= maxTier; tier++ {
		if len(t.tiers[tier]) == 0 {
			return nil, fmt.Errorf("tier table: tier %d has no agent types", tier)
		}
	}
	return t, nil
}

// Agents returns the agent types of tier.
func (t *TierTable) Agents(tier int) []*AgentType { return t.tiers[tier] }

// Lookup returns the agent type with id.
func (t *TierTable) Lookup(id string) (*AgentType, bool) {
	a, ok := t.byID[id]
	return a, ok
}

// Draw picks an agent type of tier uniformly.
//
// Precondition: tier has at least one agent type.
func (t *TierTable) Draw(tier int, r *dice.Roller) *AgentType {
	agents := t.tiers[tier]
	return agents[r.Intn(len(agents))]
}

// LoadTierTable reads every *.yaml file in dir; each file declares one tier.
// Files for the same tier are merged.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a validated table or the first error encountered.
func LoadTierTable(dir string, maxTier int) (*TierTable, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing tier dir %q: %w", dir, err)
	}
	sort.Strings(paths)
	tiers := make(map[int][]*AgentType)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var f tierFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		tiers[f.Tier] = append(tiers[f.Tier], f.Agents...)
	}
	return NewTierTable(tiers, maxTier)
}

// DefaultTierTable returns the built-in table.
func DefaultTierTable() *TierTable {
	agent := func(id, name string, hp int, speed float64, dmg string, cd int, reach float64) *AgentType {
		return &AgentType{ID: id, Name: name, MaxHP: hp, Speed: speed, Damage: dmg, AttackCooldown: cd, Reach: reach}
	}
	t, err := NewTierTable(map[int][]*AgentType{
		1: {agent("zombie", "Zombie", 20, 0.15, "1d4", 20, 1.5), agent("skeleton", "Skeleton", 16, 0.2, "1d4+1", 25, 1.5)},
		2: {agent("husk", "Husk", 26, 0.18, "1d6", 20, 1.5), agent("stray", "Stray", 22, 0.2, "1d6+1", 25, 1.5), agent("spider", "Spider", 16, 0.3, "1d4+1", 15, 1.5)},
		3: {agent("vindicator", "Vindicator", 28, 0.2, "2d4", 20, 1.5), agent("pillager", "Pillager", 24, 0.2, "1d8", 25, 2)},
		4: {agent("brute", "Brute", 50, 0.2, "2d6", 25, 2), agent("witch", "Witch", 30, 0.15, "2d4+2", 30, 2)},
		5: {agent("ravager", "Ravager", 100, 0.25, "3d6", 30, 2.5), agent("evoker", "Evoker", 40, 0.18, "2d6+2", 30, 2)},
	}, 5)
	if err != nil {
		panic("wave: invalid built-in tier table: " + err.Error())
	}
	return t
}
