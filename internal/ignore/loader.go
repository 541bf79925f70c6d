package ignore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// IgnoreFileName is the default name of the ignore file
	IgnoreFileName = ".bpmigrateignore"
)

// IgnoreConfig represents the configuration for ignoring components and migration files
type IgnoreConfig struct {
	Components []string
	Migrations []string
}

// TomlConfig represents the TOML structure of the .bpmigrateignore file
type TomlConfig struct {
	Components PatternConfig `toml:"components,omitempty"`
	Migrations PatternConfig `toml:"migrations,omitempty"`
}

// PatternConfig holds the patterns of one section
type PatternConfig struct {
	Patterns []string `toml:"patterns,omitempty"`
}

// LoadIgnoreFile loads the ignore file from the project root
// Returns nil if the file doesn't exist (ignore functionality is optional)
func LoadIgnoreFile(root string) (*IgnoreConfig, error) {
	return LoadIgnoreFileFromPath(filepath.Join(root, IgnoreFileName))
}

// LoadIgnoreFileFromPath loads an ignore file from the specified path
func LoadIgnoreFileFromPath(filePath string) (*IgnoreConfig, error) {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		// File doesn't exist, return nil config (no filtering)
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var tomlConfig TomlConfig
	if _, err := toml.DecodeFile(filePath, &tomlConfig); err != nil {
		return nil, err
	}

	return &IgnoreConfig{
		Components: tomlConfig.Components.Patterns,
		Migrations: tomlConfig.Migrations.Patterns,
	}, nil
}

// ShouldIgnoreComponent checks if a component should be skipped
func (c *IgnoreConfig) ShouldIgnoreComponent(name string) bool {
	if c == nil {
		return false
	}
	return shouldIgnore(name, c.Components)
}

// ShouldIgnoreMigration checks if a migration file, named without extension, should be skipped
func (c *IgnoreConfig) ShouldIgnoreMigration(name string) bool {
	if c == nil {
		return false
	}
	return shouldIgnore(name, c.Migrations)
}

// shouldIgnore checks if a name should be ignored based on the patterns
// Patterns support wildcards (*) and negation (!)
// Negation patterns (starting with !) take precedence over inclusion patterns
func shouldIgnore(name string, patterns []string) bool {
	matched := false
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "!") {
			continue
		}
		if matchPattern(pattern, name) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, pattern := range patterns {
		if !strings.HasPrefix(pattern, "!") {
			continue
		}
		if matchPattern(pattern[1:], name) {
			return false
		}
	}
	return true
}

// matchPattern matches a glob-style pattern against a string
func matchPattern(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	if err != nil {
		// If pattern is invalid, treat it as a literal match
		return pattern == name
	}
	return matched
}
