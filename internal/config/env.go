package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

var reEnvRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadEnv loads KEY=VALUE files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// expandEnvJSON replaces ${NAME} references inside JSON text with the
// JSON-escaped value of the environment variable (empty when unset).
func expandEnvJSON(b []byte) []byte {
	return reEnvRef.ReplaceAllFunc(b, func(m []byte) []byte {
		name := string(reEnvRef.FindSubmatch(m)[1])
		q, _ := json.Marshal(os.Getenv(name))
		// strip the surrounding quotes; we are already inside a JSON string
		return q[1 : len(q)-1]
	})
}
