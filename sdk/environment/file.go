package environment

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LoadFile decodes the TOML file at path into cfg. An empty path is a no-op so
// callers can pass an optional --config flag straight through. Call it before
// ParseEnvTags; environment variables then override the file.
func LoadFile(path string, cfg any) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decoding config file %s: %w", path, err)
	}

	return nil
}
