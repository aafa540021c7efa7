package config

import (
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		// BatchSize is the default number of points per iteration.
		BatchSize int `env:"OPT_BATCH_SIZE" envDefault:"1"`
		// InitialPoints is the default design size used to seed runs.
		InitialPoints int `env:"OPT_INITIAL_POINTS" envDefault:"8"`
		// MaxIterations is the default iteration cap per run.
		MaxIterations int `env:"OPT_MAX_ITERATIONS" envDefault:"50"`
		// Restarts overrides the selector restart count; zero derives
		// it from the free dimensionality.
		Restarts int `env:"OPT_RESTARTS" envDefault:"0"`
		// NoiseVariance is the observation noise assumed by the
		// surrogate.
		NoiseVariance float64 `env:"OPT_NOISE_VAR" envDefault:"1e-6"`
		// PresetsPath points at an optional YAML file of named problem
		// presets served by the API.
		PresetsPath string `env:"OPT_PRESETS_PATH"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Development gets debug logging unless the level was set
	// explicitly.
	if cfg.Environment == "development" {
		if _, set := os.LookupEnv("LOG_LEVEL"); !set {
			cfg.Logging.Level = "debug"
		}
	}

	return cfg, nil
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt returns the value of the environment variable as int or the default value
func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsBool returns the value of the environment variable as bool or the default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
