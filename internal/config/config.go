// Package config loads the project file that lists components, their
// database slots and the database holding the tracking table.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "bpmigrate.yaml"
	// PathEnv overrides DefaultPath when no explicit path is given.
	PathEnv              = "BPMIGRATE_CONFIG"
	DefaultTrackingTable = "migrations"
	DefaultSlot          = "common"
	MigrationsDir        = "migrations"
)

// SupportedDrivers are the database/sql driver names a slot may use.
var SupportedDrivers = []string{"mysql", "pgx", "postgres", "sqlite3"}

// Config is the top-level project configuration.
type Config struct {
	Version int `yaml:"version"`
	// Root is the project directory holding the component folders, relative
	// to the config file.
	Root            string              `yaml:"root,omitempty"`
	DefaultDatabase string              `yaml:"default_database,omitempty"`
	TrackingTable   string              `yaml:"tracking_table,omitempty"`
	Tracking        *Database           `yaml:"tracking,omitempty"`
	Databases       map[string]Database `yaml:"databases,omitempty"`
	Components      []Component         `yaml:"components"`

	dir string
}

// Database describes one database slot.
type Database struct {
	Name     string `yaml:"name"`
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	// DSN replaces the connection string built from the other fields.
	DSN string `yaml:"dsn,omitempty"`
}

// Component is one independently deployable part of the project.
type Component struct {
	Name string `yaml:"name"`
	// Path is the component folder relative to Root; defaults to Name.
	Path string `yaml:"path,omitempty"`
	// Databases overrides the project-wide slots for this component.
	Databases map[string]Database `yaml:"databases,omitempty"`
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	cfg.dir = abs
	return cfg, nil
}

// Parse decodes, resolves and validates a config document. Relative paths
// are resolved against the working directory.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.DefaultDatabase == "" {
		c.DefaultDatabase = DefaultSlot
	}
	if c.TrackingTable == "" {
		c.TrackingTable = DefaultTrackingTable
	}
	for i := range c.Components {
		if c.Components[i].Path == "" {
			c.Components[i].Path = c.Components[i].Name
		}
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool)
	for _, comp := range c.Components {
		if comp.Name == "" {
			return fmt.Errorf("component without a name")
		}
		if seen[comp.Name] {
			return fmt.Errorf("duplicate component %q", comp.Name)
		}
		seen[comp.Name] = true
		for slot, db := range c.Slots(comp.Name) {
			if err := db.validate(); err != nil {
				return fmt.Errorf("component %q, database %q: %w", comp.Name, slot, err)
			}
		}
	}
	for slot, db := range c.Databases {
		if err := db.validate(); err != nil {
			return fmt.Errorf("database %q: %w", slot, err)
		}
	}
	if c.Tracking != nil {
		if err := c.Tracking.validate(); err != nil {
			return fmt.Errorf("tracking database: %w", err)
		}
	}
	return nil
}

func (d Database) validate() error {
	if d.Name == "" && d.DSN == "" {
		return fmt.Errorf("name or dsn is required")
	}
	if !slices.Contains(SupportedDrivers, d.Driver) {
		return fmt.Errorf("unsupported driver %q (supported: %v)", d.Driver, SupportedDrivers)
	}
	return nil
}

var secretPattern = regexp.MustCompile(`\$\{ENV:([^}]+)\}`)

// ResolveValue replaces ${ENV:NAME} references with the variable's value.
func ResolveValue(val string) (string, error) {
	var missing string
	out := secretPattern.ReplaceAllStringFunc(val, func(ref string) string {
		name := secretPattern.FindStringSubmatch(ref)[1]
		v, ok := os.LookupEnv(name)
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("environment variable %s not set", missing)
	}
	return out, nil
}

func (d *Database) resolveSecrets() error {
	for _, field := range []*string{&d.Name, &d.Host, &d.User, &d.Password, &d.DSN} {
		v, err := ResolveValue(*field)
		if err != nil {
			return err
		}
		*field = v
	}
	return nil
}

func resolveAll(dbs map[string]Database) error {
	for slot, db := range dbs {
		if err := db.resolveSecrets(); err != nil {
			return fmt.Errorf("database %q: %w", slot, err)
		}
		dbs[slot] = db
	}
	return nil
}

func (c *Config) resolveSecrets() error {
	if err := resolveAll(c.Databases); err != nil {
		return err
	}
	for _, comp := range c.Components {
		if err := resolveAll(comp.Databases); err != nil {
			return fmt.Errorf("component %q: %w", comp.Name, err)
		}
	}
	if c.Tracking != nil {
		if err := c.Tracking.resolveSecrets(); err != nil {
			return fmt.Errorf("tracking database: %w", err)
		}
	}
	return nil
}

// Component returns the named component.
func (c *Config) Component(name string) (Component, bool) {
	for _, comp := range c.Components {
		if comp.Name == name {
			return comp, true
		}
	}
	return Component{}, false
}

// Slots returns the database slots of a component. Components without their
// own databases use the project-wide ones.
func (c *Config) Slots(component string) map[string]Database {
	if comp, ok := c.Component(component); ok && len(comp.Databases) > 0 {
		return comp.Databases
	}
	return c.Databases
}

// SlotNames returns the slot names of a component in sorted order.
func (c *Config) SlotNames(component string) []string {
	slots := c.Slots(component)
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Slot returns the settings of one database slot of a component.
func (c *Config) Slot(component, slot string) (Database, bool) {
	if _, ok := c.Component(component); !ok {
		return Database{}, false
	}
	db, ok := c.Slots(component)[slot]
	return db, ok
}

// DatabaseName resolves a component's slot to its database name.
func (c *Config) DatabaseName(component, slot string) (string, bool) {
	db, ok := c.Slot(component, slot)
	if !ok {
		return "", false
	}
	return db.Name, true
}

// TrackingDatabase returns where the tracking table lives: the explicit
// tracking settings, else the project's default slot.
func (c *Config) TrackingDatabase() (Database, error) {
	if c.Tracking != nil {
		return *c.Tracking, nil
	}
	if db, ok := c.Databases[c.DefaultDatabase]; ok {
		return db, nil
	}
	return Database{}, fmt.Errorf("database to save migrations is not specified: set tracking or a %q entry in databases", c.DefaultDatabase)
}

// RootDir returns the absolute project root.
func (c *Config) RootDir() string {
	if filepath.IsAbs(c.Root) {
		return c.Root
	}
	dir := c.dir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return filepath.Join(dir, c.Root)
}

// MigrationsPath returns <root>/<component path>/migrations.
func (c *Config) MigrationsPath(component string) string {
	comp, _ := c.Component(component)
	path := comp.Path
	if path == "" {
		path = component
	}
	return filepath.Join(c.RootDir(), path, MigrationsDir)
}

// SlotPath returns the folder holding the migrations of one slot.
func (c *Config) SlotPath(component, slot string) string {
	return filepath.Join(c.MigrationsPath(component), slot)
}
