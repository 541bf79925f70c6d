package artifact

import (
	"fmt"
	"os"
	"strings"
)

// ListRaw returns the names, without extension, of the raw migrations in dir
// in directory listing order.
func ListRaw(dir string) ([]string, error) {
	return list(dir, RawExt)
}

// List returns the names, without extension, of the artifacts in dir in
// directory listing order.
func List(dir string) ([]string, error) {
	return list(dir, Ext)
}

func list(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations in %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ext))
	}
	return names, nil
}
