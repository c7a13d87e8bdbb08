// Package vars loads the site variable files backing @{var(...)} references.
// Variables live in variables.toml at the project root, overlaid by
// variables.dev.toml or variables.prod.toml depending on release mode. Page
// frontmatter takes precedence over both; that happens upstream in the
// engine's lookup scoping.
package vars

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
)

const (
	globalFile  = "variables.toml"
	devOverlay  = "variables.dev.toml"
	prodOverlay = "variables.prod.toml"
)

// Store holds the resolved variable tables for one project root.
type Store struct {
	global  map[string]string
	overlay map[string]string
}

// LoadDotenv exports a .env file at root into the process environment. Runs
// before configuration resolution so ELDROID_ entries defined there are
// visible to env binding. A missing file is not an error.
func LoadDotenv(root string) error {
	err := godotenv.Load(filepath.Join(root, ".env"))
	if err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("load .env", err).WithContext("root", root)
	}
	return nil
}

// Load reads the variable files under root. Missing files are fine: a site
// without variables gets an empty store.
func Load(root string, release bool) (*Store, error) {
	global, err := readTOML(filepath.Join(root, globalFile))
	if err != nil {
		return nil, err
	}

	name := devOverlay
	if release {
		name = prodOverlay
	}
	overlay, err := readTOML(filepath.Join(root, name))
	if err != nil {
		return nil, err
	}

	return &Store{global: global, overlay: overlay}, nil
}

// readTOML flattens one variable file into dotted string keys. A missing
// file yields an empty table.
func readTOML(path string) (map[string]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			"read variables file: "+err.Error()).WithContext("path", path)
	}

	out := make(map[string]string)
	for _, key := range v.AllKeys() {
		out[key] = v.GetString(key)
	}
	return out, nil
}

// Lookup resolves one variable, overlay first. The pageID parameter exists to
// satisfy the renderer's lookup signature; variable files are site-wide.
func (s *Store) Lookup(pageID, key string) (string, bool) {
	if value, ok := s.overlay[key]; ok {
		return value, true
	}
	value, ok := s.global[key]
	return value, ok
}

// All returns the effective variable table with the overlay applied.
func (s *Store) All() map[string]string {
	out := make(map[string]string, len(s.global)+len(s.overlay))
	for key, value := range s.global {
		out[key] = value
	}
	for key, value := range s.overlay {
		out[key] = value
	}
	return out
}
