// Package environment provides utilities for managing environment variables
// and configuration loading with support for namespacing and defaults.
package environment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from a .env file in the working
// directory. A missing file is not an error; operators usually export the
// variables directly.
//
// Example:
//
//	if err := LoadEnv(); err != nil {
//	    log.Printf("warning: %v", err)
//	}
func LoadEnv() error {
	return LoadPath("")
}

// LoadPath loads environment variables from the .env file at p, or from
// ./.env when p is empty. Variables already present in the process
// environment win over the file.
func LoadPath(p string) error {
	var err error
	if p != "" {
		err = godotenv.Load(p)
	} else {
		err = godotenv.Load()
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

// Lookup returns the value of the namespaced key, falling back to the bare
// alias when one is given. Empty values count as unset.
//
// Example:
//
//	url, ok := Lookup("SQLRUNNER", "DATABASE_URL", "DATABASE_URL")
func Lookup(namespace, key, alias string) (string, bool) {
	if value := os.Getenv(GetNamespaceEnvKey(namespace, key)); value != "" {
		return value, true
	}
	if alias != "" {
		if value := os.Getenv(alias); value != "" {
			return value, true
		}
	}
	return "", false
}

// GetNamespaceEnvKey constructs a namespaced environment variable key by
// combining a namespace prefix with the actual key name using an underscore.
// If no namespace is provided, it returns the key unchanged.
//
// Example:
//
//	key := GetNamespaceEnvKey("SQLRUNNER", "DATABASE_URL")
//	// Returns: "SQLRUNNER_DATABASE_URL"
func GetNamespaceEnvKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return fmt.Sprintf("%s_%s", namespace, key)
}
