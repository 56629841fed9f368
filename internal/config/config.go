// Package config provides Viper-based configuration loading for the core-defense server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Mode is the server operation mode: "standalone" or "persistent".
	// Standalone keeps state in the sqlite/file store; persistent uses PostgreSQL.
	Mode string `mapstructure:"mode"`
	// ContentDir is the root directory holding tier and structure YAML tables.
	// Empty means the built-in tables are used.
	ContentDir string `mapstructure:"content_dir"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// StorageConfig selects where snapshots are persisted.
type StorageConfig struct {
	// Backend is one of "postgres", "sqlite", "file", or "none".
	Backend string `mapstructure:"backend"`
	// Path is the sqlite database file or the snapshot file, depending on Backend.
	Path string `mapstructure:"path"`
	// Retain is the number of snapshots the sqlite backend keeps; older rows are pruned.
	Retain int `mapstructure:"retain"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File, when non-empty, additionally writes logs to a rotated file.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files retained.
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays is the retention period for rotated files.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// WaveConfig holds the night-cycle wave timings and spawn geometry.
type WaveConfig struct {
	WarningTicks        int     `mapstructure:"warning_ticks"`
	SpawnTicks          int     `mapstructure:"spawn_ticks"`
	CooldownTicks       int     `mapstructure:"cooldown_ticks"`
	SpawnLocationsCount int     `mapstructure:"spawn_locations_count"`
	MinDistance         float64 `mapstructure:"min_distance"`
	MaxDistance         float64 `mapstructure:"max_distance"`
	PlacementRetries    int     `mapstructure:"placement_retries"`
	FallbackHeight      float64 `mapstructure:"fallback_height"`
	MobSpread           float64 `mapstructure:"mob_spread"`
}

// UnitConfig holds defending-unit behavior tuning.
type UnitConfig struct {
	ReevaluateTicks  int     `mapstructure:"reevaluate_ticks"`
	RetreatThreshold float64 `mapstructure:"retreat_threshold"`
	ReturnThreshold  float64 `mapstructure:"return_threshold"`
	RespawnTicks     int     `mapstructure:"respawn_ticks"`
}

// SimulationConfig holds the tick loop and game-rule settings.
type SimulationConfig struct {
	// TickRate is the number of simulation ticks per real second.
	TickRate int `mapstructure:"tick_rate"`
	// Seed seeds the deterministic random source; 0 selects a time-based seed.
	Seed int64 `mapstructure:"seed"`
	// DecayInterval is the real-time period after which the difficulty scalar decays.
	DecayInterval time.Duration `mapstructure:"decay_interval"`
	// DecayStep is the amount subtracted from the difficulty scalar per interval.
	DecayStep int `mapstructure:"decay_step"`
	// KillDifficultyBonus is added to the difficulty scalar per hostile killed.
	KillDifficultyBonus int `mapstructure:"kill_difficulty_bonus"`
	// CoreMaxIntegrity is the upper bound of the defended structure's integrity.
	CoreMaxIntegrity int `mapstructure:"core_max_integrity"`
	// DayLengthTicks is the length of one full day/night cycle.
	DayLengthTicks int `mapstructure:"day_length_ticks"`
	// NightStartTick and NightEndTick delimit the night window within a day.
	NightStartTick int `mapstructure:"night_start_tick"`
	NightEndTick   int `mapstructure:"night_end_tick"`
	// SnapshotEveryTicks is the cadence of persistence snapshots; 0 disables periodic snapshots.
	SnapshotEveryTicks int `mapstructure:"snapshot_every_ticks"`

	Wave WaveConfig `mapstructure:"wave"`
	Unit UnitConfig `mapstructure:"unit"`
}

// TickInterval returns the real-time duration of one tick.
//
// Precondition: TickRate > 0.
func (s SimulationConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}

// EventsConfig holds the event fan-out settings.
type EventsConfig struct {
	// WebsocketAddr is the listen address of the event stream; empty disables it.
	WebsocketAddr string `mapstructure:"websocket_addr"`
	// SubscriberBuffer is the channel capacity of each event subscriber.
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// ScriptingConfig holds Lua hook settings.
type ScriptingConfig struct {
	// ScriptDir holds *.lua hook files; empty disables scripting.
	ScriptDir string `mapstructure:"script_dir"`
	// InstructionLimit caps the opcodes executed per hook call.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// GRPCConfig holds the command service listen settings.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Events     EventsConfig     `mapstructure:"events"`
	Scripting  ScriptingConfig  `mapstructure:"scripting"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Storage.Backend == "postgres" {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGRPC(c.GRPC); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Events.SubscriberBuffer < 1 {
		errs = append(errs, fmt.Sprintf("events.subscriber_buffer must be >= 1, got %d", c.Events.SubscriberBuffer))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	validModes := map[string]bool{"standalone": true, "persistent": true}
	if !validModes[s.Mode] {
		return fmt.Errorf("server.mode must be one of [standalone, persistent], got %q", s.Mode)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	validBackends := map[string]bool{"postgres": true, "sqlite": true, "file": true, "none": true}
	if !validBackends[s.Backend] {
		return fmt.Errorf("storage.backend must be one of [postgres, sqlite, file, none], got %q", s.Backend)
	}
	if (s.Backend == "sqlite" || s.Backend == "file") && s.Path == "" {
		return fmt.Errorf("storage.path must not be empty for backend %q", s.Backend)
	}
	if s.Retain < 1 {
		return fmt.Errorf("storage.retain must be >= 1, got %d", s.Retain)
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File != "" && l.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be >= 1 when logging.file is set, got %d", l.MaxSizeMB)
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if s.TickRate < 1 || s.TickRate > 1000 {
		errs = append(errs, fmt.Sprintf("simulation.tick_rate must be 1-1000, got %d", s.TickRate))
	}
	if s.DecayInterval <= 0 {
		errs = append(errs, "simulation.decay_interval must be positive")
	}
	if s.DecayStep < 1 {
		errs = append(errs, fmt.Sprintf("simulation.decay_step must be >= 1, got %d", s.DecayStep))
	}
	if s.KillDifficultyBonus < 0 {
		errs = append(errs, "simulation.kill_difficulty_bonus must not be negative")
	}
	if s.CoreMaxIntegrity < 1 {
		errs = append(errs, fmt.Sprintf("simulation.core_max_integrity must be >= 1, got %d", s.CoreMaxIntegrity))
	}
	if s.DayLengthTicks < 2 {
		errs = append(errs, fmt.Sprintf("simulation.day_length_ticks must be >= 2, got %d", s.DayLengthTicks))
	}
	if s.NightStartTick < 0 || s.NightEndTick > s.DayLengthTicks || s.NightStartTick >= s.NightEndTick {
		errs = append(errs, "simulation.night_start_tick and night_end_tick must satisfy 0 <= start < end <= day_length_ticks")
	}
	if s.SnapshotEveryTicks < 0 {
		errs = append(errs, "simulation.snapshot_every_ticks must not be negative")
	}
	if err := validateWave(s.Wave); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateUnit(s.Unit); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWave(w WaveConfig) error {
	var errs []string
	if w.WarningTicks < 1 || w.SpawnTicks < 1 || w.CooldownTicks < 1 {
		errs = append(errs, "simulation.wave warning/spawn/cooldown ticks must all be >= 1")
	}
	if w.SpawnLocationsCount < 1 {
		errs = append(errs, fmt.Sprintf("simulation.wave.spawn_locations_count must be >= 1, got %d", w.SpawnLocationsCount))
	}
	if w.MinDistance < 0 || w.MaxDistance < w.MinDistance {
		errs = append(errs, "simulation.wave distances must satisfy 0 <= min_distance <= max_distance")
	}
	if w.PlacementRetries < 1 {
		errs = append(errs, fmt.Sprintf("simulation.wave.placement_retries must be >= 1, got %d", w.PlacementRetries))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateUnit(u UnitConfig) error {
	if u.ReevaluateTicks < 1 {
		return fmt.Errorf("simulation.unit.reevaluate_ticks must be >= 1, got %d", u.ReevaluateTicks)
	}
	if u.RetreatThreshold <= 0 || u.RetreatThreshold >= 1 {
		return fmt.Errorf("simulation.unit.retreat_threshold must be in (0, 1), got %v", u.RetreatThreshold)
	}
	if u.ReturnThreshold <= u.RetreatThreshold || u.ReturnThreshold > 1 {
		return errors.New("simulation.unit.return_threshold must be greater than retreat_threshold and <= 1")
	}
	if u.RespawnTicks < 0 {
		return errors.New("simulation.unit.respawn_ticks must not be negative")
	}
	return nil
}

func validateGRPC(g GRPCConfig) error {
	if g.Port < 0 || g.Port > 65535 {
		return fmt.Errorf("grpc.port must be 0-65535, got %d", g.Port)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with CORED_ prefix
	v.SetEnvPrefix("CORED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by the defaults alone.
//
// Postcondition: Returns a Config that passes Validate.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadFromViper(v)
	if err != nil {
		panic("config.Default: built-in defaults are invalid: " + err.Error())
	}
	return cfg
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "standalone")
	v.SetDefault("server.content_dir", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "coredefense")
	v.SetDefault("database.password", "coredefense")
	v.SetDefault("database.name", "coredefense")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.retain", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)

	v.SetDefault("simulation.tick_rate", 20)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.decay_interval", "60s")
	v.SetDefault("simulation.decay_step", 1)
	v.SetDefault("simulation.kill_difficulty_bonus", 1)
	v.SetDefault("simulation.core_max_integrity", 1000)
	v.SetDefault("simulation.day_length_ticks", 24000)
	v.SetDefault("simulation.night_start_tick", 13000)
	v.SetDefault("simulation.night_end_tick", 23000)
	v.SetDefault("simulation.snapshot_every_ticks", 6000)

	v.SetDefault("simulation.wave.warning_ticks", 200)
	v.SetDefault("simulation.wave.spawn_ticks", 600)
	v.SetDefault("simulation.wave.cooldown_ticks", 1200)
	v.SetDefault("simulation.wave.spawn_locations_count", 3)
	v.SetDefault("simulation.wave.min_distance", 24.0)
	v.SetDefault("simulation.wave.max_distance", 48.0)
	v.SetDefault("simulation.wave.placement_retries", 10)
	v.SetDefault("simulation.wave.fallback_height", 5.0)
	v.SetDefault("simulation.wave.mob_spread", 4.0)

	v.SetDefault("simulation.unit.reevaluate_ticks", 10)
	v.SetDefault("simulation.unit.retreat_threshold", 0.30)
	v.SetDefault("simulation.unit.return_threshold", 0.50)
	v.SetDefault("simulation.unit.respawn_ticks", 600)

	v.SetDefault("events.websocket_addr", "")
	v.SetDefault("events.subscriber_buffer", 256)

	v.SetDefault("scripting.script_dir", "")
	v.SetDefault("scripting.instruction_limit", 100000)

	v.SetDefault("grpc.host", "127.0.0.1")
	v.SetDefault("grpc.port", 50061)
}
