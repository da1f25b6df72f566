// Package config provides configuration management for the squad bridge.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kandev/squad-bridge/internal/db/dialect"
)

// Config holds all configuration sections.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Squad   SquadConfig   `mapstructure:"squad"`
	Events  EventsConfig  `mapstructure:"events"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// SquadConfig configures how the external squad command is found and driven.
type SquadConfig struct {
	// CommandCandidates are probed in order; bare names go through PATH.
	CommandCandidates []string `mapstructure:"commandCandidates"`

	// ProjectsDir roots relative project paths passed to create.
	ProjectsDir string `mapstructure:"projectsDir"`

	// AuxiliaryTools must be resolvable on PATH for a clean readiness report.
	AuxiliaryTools []string `mapstructure:"auxiliaryTools"`

	DefaultExecTimeout int `mapstructure:"defaultExecTimeout"` // in seconds
	StatusConcurrency  int `mapstructure:"statusConcurrency"`

	Install InstallConfig `mapstructure:"install"`
}

// InstallConfig configures the remote install script pipeline.
type InstallConfig struct {
	ScriptURL   string `mapstructure:"scriptUrl"`
	Fetcher     string `mapstructure:"fetcher"`
	Interpreter string `mapstructure:"interpreter"`
}

// EventsConfig selects the event bus. An empty NATSURL means in-memory.
type EventsConfig struct {
	NATSURL       string `mapstructure:"natsUrl"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// HistoryConfig configures the command history store. An empty Driver disables it.
type HistoryConfig struct {
	Driver string `mapstructure:"driver"` // "", sqlite3, pgx
	DSN    string `mapstructure:"dsn"`    // file path for sqlite3, connection string for pgx
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// DefaultCommandCandidates is the ordered list of places the squad command is
// usually installed.
var DefaultCommandCandidates = []string{
	"claude-squad",
	"cs",
	"/usr/local/bin/claude-squad",
	"/opt/homebrew/bin/claude-squad",
	"~/.local/bin/claude-squad",
}

// DefaultAuxiliaryTools are the terminal multiplexer, version control client
// and repository host CLI the squad command shells out to.
var DefaultAuxiliaryTools = []string{"tmux", "git", "gh"}

// DefaultInstallScriptURL is the upstream install script.
const DefaultInstallScriptURL = "https://raw.githubusercontent.com/smtg-ai/claude-squad/main/install.sh"

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Addr returns host:port for the HTTP listener.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ExecTimeout returns the default exec timeout as a time.Duration.
func (s *SquadConfig) ExecTimeout() time.Duration {
	return time.Duration(s.DefaultExecTimeout) * time.Second
}

// ResolvedProjectsDir returns ProjectsDir with a leading ~ expanded.
func (s *SquadConfig) ResolvedProjectsDir() string {
	return ExpandHome(s.ProjectsDir)
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("SQUAD_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8420)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 330) // longer than the max exec timeout

	v.SetDefault("squad.commandCandidates", DefaultCommandCandidates)
	v.SetDefault("squad.projectsDir", "~/.squad/projects")
	v.SetDefault("squad.auxiliaryTools", DefaultAuxiliaryTools)
	v.SetDefault("squad.defaultExecTimeout", 30)
	v.SetDefault("squad.statusConcurrency", 4)
	v.SetDefault("squad.install.scriptUrl", DefaultInstallScriptURL)
	v.SetDefault("squad.install.fetcher", "curl")
	v.SetDefault("squad.install.interpreter", "bash")

	v.SetDefault("events.natsUrl", "")
	v.SetDefault("events.clientId", "squad-bridge")
	v.SetDefault("events.maxReconnects", 10)

	v.SetDefault("history.driver", "")
	v.SetDefault("history.dsn", "~/.squad/bridge.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix SQUAD_ with the key path joined by
// underscores (SQUAD_SERVER_PORT).
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified directory or the default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SQUAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase keys to SNAKE_CASE names.
	_ = v.BindEnv("squad.projectsDir", "SQUAD_PROJECTS_DIR")
	_ = v.BindEnv("squad.defaultExecTimeout", "SQUAD_DEFAULT_EXEC_TIMEOUT")
	_ = v.BindEnv("squad.install.scriptUrl", "SQUAD_INSTALL_SCRIPT_URL")
	_ = v.BindEnv("events.natsUrl", "SQUAD_NATS_URL")
	_ = v.BindEnv("history.driver", "SQUAD_HISTORY_DRIVER")
	_ = v.BindEnv("history.dsn", "SQUAD_HISTORY_DSN")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/squad-bridge/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if len(cfg.Squad.CommandCandidates) == 0 {
		errs = append(errs, "squad.commandCandidates must not be empty")
	}
	if strings.TrimSpace(cfg.Squad.ProjectsDir) == "" {
		errs = append(errs, "squad.projectsDir is required")
	}
	if cfg.Squad.DefaultExecTimeout <= 0 {
		errs = append(errs, "squad.defaultExecTimeout must be positive")
	}
	if cfg.Squad.StatusConcurrency <= 0 {
		errs = append(errs, "squad.statusConcurrency must be positive")
	}

	if cfg.History.Driver != "" && !dialect.Supported(cfg.History.Driver) {
		errs = append(errs, fmt.Sprintf("history.driver must be one of: %s, %s (or empty to disable)", dialect.SQLite3, dialect.PGX))
	}
	if cfg.History.Driver != "" && strings.TrimSpace(cfg.History.DSN) == "" {
		errs = append(errs, "history.dsn is required when history.driver is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
