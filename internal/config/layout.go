package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// SlotDirs lists the slot folders found under a component's migrations
// folder, in directory listing order. Folders that are not configured slots
// are ignored. A missing migrations folder yields an error wrapping
// fs.ErrNotExist.
func (c *Config) SlotDirs(component string) ([]string, error) {
	entries, err := os.ReadDir(c.MigrationsPath(component))
	if err != nil {
		return nil, fmt.Errorf("failed to list migration folders of %s: %w", component, err)
	}
	slots := c.Slots(component)
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := slots[e.Name()]; ok {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// PrepareFolders creates <component>/migrations/<slot> for every component
// and slot. Existing folders are left alone. It returns the folders it
// created.
func (c *Config) PrepareFolders() ([]string, error) {
	var created []string
	for _, comp := range c.Components {
		dirs := []string{c.MigrationsPath(comp.Name)}
		for _, slot := range c.SlotNames(comp.Name) {
			dirs = append(dirs, c.SlotPath(comp.Name, slot))
		}
		for _, dir := range dirs {
			err := os.Mkdir(dir, 0755)
			switch {
			case err == nil:
				created = append(created, dir)
			case errors.Is(err, fs.ErrExist):
			default:
				return created, fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
	}
	return created, nil
}
