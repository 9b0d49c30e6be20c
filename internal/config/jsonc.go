package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"devctl/pkg/logging"
)

// ReadJSONCString reads a JSON-with-comments file and returns the string
// found at the dotted key path (e.g. "vars.DATABASE_URL"). A missing key
// returns "" with a nil error.
func ReadJSONCString(path, key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(std, &doc); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}

	var cur any = doc
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", nil
		}
		if cur, ok = m[part]; !ok {
			return "", nil
		}
	}
	s, _ := cur.(string)
	return s, nil
}

// ResolveDatabaseURL returns the database URL handed to the migration
// steps: the DatabaseURLKey entry of DatabaseURLFile when present, else the
// DATABASE_URL environment variable. The file path is relative to root. A
// file that cannot be parsed is logged and treated as holding no URL.
func (m MigrateConfig) ResolveDatabaseURL(root string, lookup LookupFunc) (string, error) {
	if m.DatabaseURLFile != "" {
		key := m.DatabaseURLKey
		if key == "" {
			key = "vars.DATABASE_URL"
		}
		path := m.DatabaseURLFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		url, err := ReadJSONCString(path, key)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Config", "Ignoring %s: %v", path, err)
		}
		if url != "" {
			return url, nil
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("DATABASE_URL not found in %s or the environment", m.DatabaseURLFile)
}
