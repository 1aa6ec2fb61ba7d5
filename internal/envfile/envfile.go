// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package envfile loads KEY=value settings from a dotenv file into the
// process environment, below variables that are already set.
package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/joho/godotenv"
)

// Load reads the dotenv file at path and exports every key that is not
// already present in the environment. It returns the sorted names of the
// keys it exported. A missing file is not an error.
func Load(path string) ([]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}

	var loaded []string
	for k, v := range values {
		if k == "" {
			continue
		}
		if _, set := os.LookupEnv(k); set {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return nil, fmt.Errorf("setting %s: %w", k, err)
		}
		loaded = append(loaded, k)
	}
	sort.Strings(loaded)
	return loaded, nil
}
