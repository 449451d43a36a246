// Package config loads process-level configuration for COACH binaries.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Process holds the environment-level configuration of one service process.
// Everything service-specific lives in the settings file.
type Process struct {
	ServiceType  string `env:"SERVICE_TYPE,required"`
	ServiceName  string `env:"SERVICE_NAME"`
	SettingsPath string `env:"COACH_SETTINGS,default=settings.json"`
	Addr         string `env:"COACH_ADDR"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	LogFormat    string `env:"LOG_FORMAT,default=json"`
}

// LoadProcess loads an optional .env file, named by COACH_ENV_FILE and
// defaulting to .env, and decodes the process configuration from the
// environment.
func LoadProcess() (*Process, error) {
	envFile := os.Getenv("COACH_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg Process
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = cfg.ServiceType
	}
	return &cfg, nil
}
