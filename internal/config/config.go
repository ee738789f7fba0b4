// Package config handles credential resolution from the environment and the
// per-workspace configuration stored under the state directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Credentials holds resolved remote API credentials.
type Credentials struct {
	BaseURL  string
	Email    string
	APIToken string
}

// ErrMissingConfig is returned when required config values cannot be resolved.
var ErrMissingConfig = errors.New("missing configuration")

// LoadCredentials resolves credentials from the environment and an optional
// .env file. Explicit environment variables win over .env values.
func LoadCredentials(dotEnvPath string) (*Credentials, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			// godotenv.Load never overrides variables already set.
			_ = godotenv.Load(dotEnvPath)
		}
	}

	baseURL := os.Getenv("CONFLUENCE_URL")
	email := os.Getenv("CONFLUENCE_EMAIL")
	token := os.Getenv("CONFLUENCE_API_TOKEN")

	var missing []string
	if baseURL == "" {
		missing = append(missing, "CONFLUENCE_URL")
	}
	if email == "" {
		missing = append(missing, "CONFLUENCE_EMAIL")
	}
	if token == "" {
		missing = append(missing, "CONFLUENCE_API_TOKEN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	return &Credentials{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Email:    email,
		APIToken: token,
	}, nil
}
