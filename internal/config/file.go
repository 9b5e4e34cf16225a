package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// LoadFile merges a TOML config file into cfg. Values present in the file
// overwrite cfg's current values; explicit flags should be applied after
// the file so they win.
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config: %s has unknown keys: %v", path, undecoded)
	}
	return nil
}
