// internal/workers/application/index-application/config.go
package indexapplication

import "time"

type Config struct {
	Timeout     time.Duration
	IndexPrefix string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     15 * time.Second,
		IndexPrefix: "applications-",
	}
}
