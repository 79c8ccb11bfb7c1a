package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// GetAPIToken returns the bearer token protecting management endpoints.
// The RESUMED_API_TOKEN environment variable wins; otherwise a token is
// read from (or generated into) a file in the data directory so restarts
// keep the same token.
func GetAPIToken(dataDir string) (string, error) {
	if t := os.Getenv("RESUMED_API_TOKEN"); t != "" {
		return t, nil
	}

	path := filepath.Join(dataDir, "api_token")
	data, err := os.ReadFile(path)
	if err == nil {
		token := strings.TrimSpace(string(data))
		if token != "" {
			return token, nil
		}
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading API token file: %w", err)
	}

	token := uuid.New().String()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing API token file: %w", err)
	}
	return token, nil
}
