package color

import (
	"fmt"
	"os"
	"strings"
)

// ANSI color codes
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Orange = "\033[38;5;208m"
	Bold   = "\033[1m"
)

// Color represents a colorizer that can be enabled or disabled
type Color struct {
	enabled bool
}

// New creates a new Color instance
func New(enabled bool) *Color {
	return &Color{enabled: enabled && shouldEnableColor()}
}

// shouldEnableColor determines if color should be enabled based on environment
func shouldEnableColor() bool {
	// Check NO_COLOR environment variable (https://no-color.org/)
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	// Check TERM environment variable
	term := os.Getenv("TERM")
	if term == "dumb" || term == "" {
		return false
	}

	return true
}

func (c *Color) wrap(code, text string) string {
	if !c.enabled {
		return text
	}
	return code + text + Reset
}

// Success colors text for applied migrations and written artifacts (green)
func (c *Color) Success(text string) string {
	return c.wrap(Green, text)
}

// Skip colors text for migrations that were already applied (cyan)
func (c *Color) Skip(text string) string {
	return c.wrap(Cyan, text)
}

// Failure colors text for errors (red)
func (c *Color) Failure(text string) string {
	return c.wrap(Red, text)
}

// Warning colors text for unresolved references (orange)
func (c *Color) Warning(text string) string {
	return c.wrap(Orange, text)
}

// Name highlights component, folder and migration names (yellow)
func (c *Color) Name(text string) string {
	return c.wrap(Yellow, text)
}

// Bold makes text bold
func (c *Color) Bold(text string) string {
	return c.wrap(Bold, text)
}

// FormatApplySummary formats the counts of a migrate run
func (c *Color) FormatApplySummary(applied, skipped, failed int) string {
	// Always show all three categories, even if zero
	parts := []string{
		c.Success(fmt.Sprintf("%d applied", applied)),
		c.Skip(fmt.Sprintf("%d already applied", skipped)),
		c.Failure(fmt.Sprintf("%d failed", failed)),
	}

	return fmt.Sprintf("Migrations: %s.", strings.Join(parts, ", "))
}

// FormatGenerateSummary formats the counts of a make_migrations run
func (c *Color) FormatGenerateSummary(created, updated, unchanged, warnings int) string {
	parts := []string{
		c.Success(fmt.Sprintf("%d created", created)),
		c.Name(fmt.Sprintf("%d updated", updated)),
		fmt.Sprintf("%d unchanged", unchanged),
	}
	line := fmt.Sprintf("Artifacts: %s.", strings.Join(parts, ", "))
	if warnings > 0 {
		line += " " + c.Warning(fmt.Sprintf("%d warnings.", warnings))
	}
	return line
}
