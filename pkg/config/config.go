package config

import (
	"github.com/jay-chalkstep/cadaince-sub001/internal/database"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters/bigquery"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters/hubspot"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/anomaly"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/jobs"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string `yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int    `yaml:"port" env:"SERVER_PORT" default:"8080"`
	ReadTimeout     string `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    string `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout string `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// LoggingConfig holds the logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" default:"json"`
}

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig        `yaml:"server"`
	Database database.Config     `yaml:"database"`
	HubSpot  hubspot.Config      `yaml:"hubspot"`
	BigQuery bigquery.Config     `yaml:"bigquery"`
	Policy   adapters.CallPolicy `yaml:"adapter_policy"`
	Jobs     jobs.Config         `yaml:"jobs"`
	Anomaly  anomaly.Config      `yaml:"anomaly"`
	Logging  LoggingConfig       `yaml:"logging"`
}

// Load resolves the service configuration from defaults, the optional config
// file, and the environment.
func Load(configPath string) (*Config, error) {
	config := &Config{}
	if err := NewLoader().Load(configPath, config); err != nil {
		return nil, err
	}
	return config, nil
}
