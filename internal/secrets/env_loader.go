package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvLoader returns a Loader that reads the specified environment variables.
// Missing variables are silently omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// DotEnvLoader reads keys from a dotenv file, re-parsed on every load so an
// edited file is picked up by Reload. Process environment wins over the
// file. A missing file is not an error.
func DotEnvLoader(path string, keys ...string) Loader {
	env := EnvLoader(keys...)
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		if path != "" {
			file, err := godotenv.Read(path)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			for _, k := range keys {
				if v := file[k]; v != "" {
					vals[k] = v
				}
			}
		}
		fromEnv, _ := env()
		for k, v := range fromEnv {
			vals[k] = v
		}
		return vals, nil
	}
}

// WithFallback fills keys the loader left empty from fallback. Used to
// honor secrets given in the YAML config when no env or file value exists.
func WithFallback(l Loader, fallback map[string]string) Loader {
	return func() (map[string]string, error) {
		vals, err := l()
		if err != nil {
			return nil, err
		}
		for k, v := range fallback {
			if vals[k] == "" && v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}
