// internal/workers/application/validate-application-draft/config.go
package validateapplicationdraft

import "time"

type Config struct {
	Timeout time.Duration
	// Reject drafts that were never marked submitted.
	RequireSubmitted bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:          10 * time.Second,
		RequireSubmitted: true,
	}
}
