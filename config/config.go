package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shrek82/jdb/validator"
)

const (
	// DefaultIdleTimeoutSeconds closes a pooled connection after ten idle minutes.
	DefaultIdleTimeoutSeconds = 600

	RowShapeMap  = "map"
	RowShapeList = "list"
	// RowShapeDict and RowShapeTuple are accepted aliases of map and list.
	RowShapeDict  = "dict"
	RowShapeTuple = "tuple"
)

// Drivers lists the driver names a Config may select.
var Drivers = []any{"mysql", "sqlite3", "postgres", "pgx"}

// Config holds the connection parameters and pool settings.
// It is read once when a DB is opened.
type Config struct {
	Driver             string            `yaml:"driver"`
	Host               string            `yaml:"host"`
	Port               int               `yaml:"port"`
	Database           string            `yaml:"db"`
	User               string            `yaml:"user"`
	Password           string            `yaml:"password"`
	Params             map[string]string `yaml:"params"`
	IdleTimeoutSeconds int               `yaml:"idle_timeout_seconds"`
	RowShape           string            `yaml:"row_shape"`
	Logging            LoggingConfig     `yaml:"logging"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Driver:             "mysql",
		Host:               "localhost",
		Database:           "testdb",
		Params:             map[string]string{},
		IdleTimeoutSeconds: DefaultIdleTimeoutSeconds,
		RowShape:           RowShapeMap,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// applyEnvOverrides applies JDB_* environment variable overrides
func applyEnvOverrides(config *Config) error {
	strs := map[string]*string{
		"JDB_DRIVER":     &config.Driver,
		"JDB_HOST":       &config.Host,
		"JDB_DB":         &config.Database,
		"JDB_USER":       &config.User,
		"JDB_PASSWORD":   &config.Password,
		"JDB_ROW_SHAPE":  &config.RowShape,
		"JDB_LOG_LEVEL":  &config.Logging.Level,
		"JDB_LOG_FORMAT": &config.Logging.Format,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"JDB_PORT":         &config.Port,
		"JDB_IDLE_TIMEOUT": &config.IdleTimeoutSeconds,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	rules := validator.Rules{
		"Driver":             {validator.Required, validator.In(Drivers...)},
		"Database":           {validator.Required.Msg("database name is required")},
		"Port":               {validator.Range(0, 65535)},
		"IdleTimeoutSeconds": {validator.Range(1, 1<<31-1).Msg("idle timeout must be positive")},
		"RowShape":           {validator.In(RowShapeMap, RowShapeDict, RowShapeList, RowShapeTuple).Optional()},
	}
	if c.Driver != "sqlite3" {
		rules["Host"] = []validator.Rule{
			validator.Required.Msg("host is required"),
			validator.Hostname.When(notSocketPath),
		}
	}
	if err := rules.Validate(c); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "silent", "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	return nil
}

func notSocketPath(v any) bool {
	s, _ := v.(string)
	return !strings.HasPrefix(s, "/")
}

// IdleTimeout returns the idle eviction duration.
func (c *Config) IdleTimeout() time.Duration {
	if c.IdleTimeoutSeconds <= 0 {
		return DefaultIdleTimeoutSeconds * time.Second
	}
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// String describes the target without the password.
func (c *Config) String() string {
	user := c.User
	if user != "" {
		user += "@"
	}
	return fmt.Sprintf("%s://%s%s:%d/%s", c.Driver, user, c.Host, c.Port, c.Database)
}
