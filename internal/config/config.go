package config

import (
	"fmt"
	"os"
)

// Config holds the environment-driven settings shared by cmd/api and
// cmd/worker. Aggregator credentials are optional: a deployment that only
// serves one aggregator leaves the other's fields empty and the matching
// endpoints return an error at request time.
type Config struct {
	// ProjectID is the GCP project hosting Firestore.
	ProjectID string

	// ArchiveBucket is the GCS bucket for raw aggregator payloads.
	// Empty disables archiving.
	ArchiveBucket string

	// Port is the HTTP listen port for cmd/api.
	Port string

	// PublicBaseURL is the externally reachable base URL of this
	// deployment, used when registering aggregator webhooks.
	PublicBaseURL string

	TinkClientID     string
	TinkClientSecret string

	PlaidClientID string
	PlaidSecret   string
	PlaidEnv      string
}

// FromEnv builds a Config from environment variables. Only the project id is
// mandatory; everything else has a default or degrades a feature.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ProjectID:        os.Getenv("GCP_PROJECT"),
		ArchiveBucket:    os.Getenv("ARCHIVE_BUCKET"),
		Port:             getenvDefault("PORT", "8080"),
		PublicBaseURL:    os.Getenv("PUBLIC_BASE_URL"),
		TinkClientID:     os.Getenv("TINK_CLIENT_ID"),
		TinkClientSecret: os.Getenv("TINK_CLIENT_SECRET"),
		PlaidClientID:    os.Getenv("PLAID_CLIENT_ID"),
		PlaidSecret:      os.Getenv("PLAID_SECRET"),
		PlaidEnv:         getenvDefault("PLAID_ENV", "sandbox"),
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("FromEnv: GCP_PROJECT is not set")
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
