package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	SettingsPath string // root settings.hcl or its directory

	// Build is the name of the included build to execute tasks in.
	Build string
	// Tasks are the qualified task paths to execute.
	Tasks []string

	LogFormat   string
	LogLevel    string
	WorkerCount int
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.SettingsPath == "" {
		return nil, errors.New("SettingsPath is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &cfg, nil
}
