package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/taskmux/taskmux"
	"github.com/taskmux/taskmux/monitoring"
	"github.com/taskmux/taskmux/routing"
)

// Config represents the full router configuration
type Config struct {
	// Routing strategy and scoring gate.
	Router *routing.RouterConfig `yaml:"router"`

	// Per-provider cost and quality attributes used for scoring.
	Providers taskmux.ProviderProfiles `yaml:"providers"`

	// Collect per-provider execution metrics. Disabling turns record calls
	// into no-ops.
	MetricsEnabled *bool `yaml:"metrics_enabled,omitempty"`

	// Observability pipeline configuration.
	Monitoring *monitoring.Config `yaml:"monitoring,omitempty"`
}

// MetricsCollectionEnabled resolves the optional flag; collection defaults on.
func (c *Config) MetricsCollectionEnabled() bool {
	return c.MetricsEnabled == nil || *c.MetricsEnabled
}

// Load loads the configuration from the specified path
func Load(path string, logger *zap.SugaredLogger) (*Config, error) {
	config := Config{
		Router:    routing.DefaultRouterConfig(),
		Providers: taskmux.ProviderProfiles{},
	}

	// Checks if config is specified via environment variable.
	configPath := optionalEnvString("TASKMUX_CONFIG", path)
	logger.Infow("Loading config", "path", configPath)

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %v", err)
	}

	// Overrides config with the YAML data.
	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	if config.Router == nil {
		config.Router = routing.DefaultRouterConfig()
	}

	// Overrides config with environment variables.
	// Therefore, the values from the environment variables precede the
	// values from the YAML file.
	config.Router.Strategy = routing.Strategy(
		optionalEnvString("TASKMUX_STRATEGY", string(config.Router.Strategy)))
	config.Router.MinRequestsForScoring = optionalEnvInt64(
		"TASKMUX_MIN_REQUESTS_FOR_SCORING", config.Router.MinRequestsForScoring)

	return &config, nil
}

func optionalEnvString(name string, defaultValue string) string {
	if value, ok := os.LookupEnv(name); ok && value != "" {
		return value
	}
	return defaultValue
}

func optionalEnvInt64(name string, defaultValue int64) int64 {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
