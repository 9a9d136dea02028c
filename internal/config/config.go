// Package config loads service settings from environment variables.
// A .env file in the working directory is honored when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/avoin/heatplan/internal/mitigation"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPPort int
	DBPath   string
	GridFile string
	LogLevel string

	AdminKey string // bearer token for POST endpoints; empty disables them
	RelayKey string // bearer token for the SSE stream; empty disables it

	// Engine tunables, overridable per deployment for scenario comparison.
	Engine mitigation.Config
}

// Load reads configuration from the environment, applying defaults where unset.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort: envInt("HEATPLAN_HTTP_PORT", 8080),
		DBPath:   envOrDefault("HEATPLAN_DB_PATH", "data/heatplan.db"),
		GridFile: envOrDefault("HEATPLAN_GRID_FILE", "data/grid.json"),
		LogLevel: envOrDefault("HEATPLAN_LOG_LEVEL", "info"),
		AdminKey: os.Getenv("HEATPLAN_ADMIN_KEY"),
		RelayKey: os.Getenv("HEATPLAN_RELAY_KEY"),
		Engine:   engineFromEnv(),
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, errors.New("HEATPLAN_HTTP_PORT out of range")
	}
	if cfg.GridFile == "" {
		return nil, errors.New("HEATPLAN_GRID_FILE is required")
	}
	if err := validateEngine(cfg.Engine); err != nil {
		return nil, err
	}

	return cfg, nil
}

// engineFromEnv starts from the default calibration and applies any per-tunable
// overrides present in the environment.
func engineFromEnv() mitigation.Config {
	e := mitigation.DefaultConfig()
	e.Reachability = envFloat("HEATPLAN_REACHABILITY", e.Reachability)
	e.MaxReduction = envFloat("HEATPLAN_MAX_REDUCTION", e.MaxReduction)
	e.MinReduction = envFloat("HEATPLAN_MIN_REDUCTION", e.MinReduction)
	e.ParkCoolingConstant = envFloat("HEATPLAN_PARK_COOLING_CONSTANT", e.ParkCoolingConstant)
	e.GridCellArea = envFloat("HEATPLAN_GRID_CELL_AREA", e.GridCellArea)
	return e
}

func validateEngine(e mitigation.Config) error {
	if e.Reachability <= 0 {
		return errors.New("HEATPLAN_REACHABILITY must be positive")
	}
	if e.GridCellArea <= 0 {
		return errors.New("HEATPLAN_GRID_CELL_AREA must be positive")
	}
	if e.MinReduction < 0 || e.MaxReduction < e.MinReduction {
		return fmt.Errorf("reduction bounds invalid: max=%.3f min=%.3f", e.MaxReduction, e.MinReduction)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return def
}
