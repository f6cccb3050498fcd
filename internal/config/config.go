// Package config loads the wotrack configuration from ~/.wotrack/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendSQLite   = "sqlite"
	BackendCSV      = "csv"
	BackendJSON     = "json"
	BackendPostgres = "postgres"
)

var ValidBackends = []string{BackendSQLite, BackendCSV, BackendJSON, BackendPostgres}

// DefaultProcesses is the process list given to new work orders when none
// is specified
var DefaultProcesses = []string{
	"Aviamento de capa",
	"Aviamento de miolo",
	"Encadernação e Finalização",
	"Montagem de capa",
	"Montagem de Miolo",
	"Montagem do kit",
}

type Config struct {
	Storage   StorageConfig `yaml:"storage"`
	Processes []string      `yaml:"processes"`
	Remote    RemoteConfig  `yaml:"remote"`
	Logging   LoggingConfig `yaml:"logging"`
}

type StorageConfig struct {
	Backend    string         `yaml:"backend"`
	Dir        string         `yaml:"dir"`         // csv and json files
	SQLitePath string         `yaml:"sqlite_path"` // sqlite database file
	Postgres   PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RemoteConfig configures the GitHub mirror of the csv/json files
type RemoteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Repo    string `yaml:"repo"` // owner/name
	Branch  string `yaml:"branch"`
	Dir     string `yaml:"dir"`
	Token   string `yaml:"token"`
	APIBase string `yaml:"api_base"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // empty logs to stderr
}

// Home returns the wotrack data directory, $WOTRACK_HOME or ~/.wotrack
func Home() string {
	if home := os.Getenv("WOTRACK_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".wotrack"
	}
	return filepath.Join(userHome, ".wotrack")
}

// DefaultPath returns the config file location
func DefaultPath() string {
	return filepath.Join(Home(), "config.yaml")
}

func DefaultConfig() *Config {
	home := Home()
	return &Config{
		Storage: StorageConfig{
			Backend:    BackendSQLite,
			Dir:        home,
			SQLitePath: filepath.Join(home, "wotrack.db"),
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    "5432",
				DBName:  "wotrack",
				SSLMode: "require",
			},
		},
		Processes: append([]string(nil), DefaultProcesses...),
		Remote: RemoteConfig{
			Branch:  "main",
			APIBase: "https://api.github.com",
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Load reads the config file at path. A missing file yields the defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config to path. The file may hold a token so it is only
// readable by the owner.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if backend := os.Getenv("WOTRACK_STORAGE"); backend != "" {
		c.Storage.Backend = strings.ToLower(backend)
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.Remote.Token = token
	}
	if repo := os.Getenv("WOTRACK_GITHUB_REPO"); repo != "" {
		c.Remote.Repo = repo
		c.Remote.Enabled = true
	}

	pg := &c.Storage.Postgres
	for env, field := range map[string]*string{
		"DBHOST":  &pg.Host,
		"DBPORT":  &pg.Port,
		"DBUSER":  &pg.User,
		"DBPASS":  &pg.Password,
		"DBNAME":  &pg.DBName,
		"SSLMODE": &pg.SSLMode,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// Validate checks the settings that cannot be fixed up at runtime
func (c *Config) Validate() error {
	valid := false
	for _, b := range ValidBackends {
		if c.Storage.Backend == b {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid storage backend: %s (valid: %v)", c.Storage.Backend, ValidBackends)
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendCSV, BackendJSON:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the %s backend", c.Storage.Backend)
		}
	case BackendPostgres:
		if c.Storage.Postgres.Host == "" || c.Storage.Postgres.DBName == "" {
			return fmt.Errorf("postgres host and dbname are required (set DBHOST and DBNAME)")
		}
	}

	seen := make(map[string]bool, len(c.Processes))
	for _, p := range c.Processes {
		name := strings.ToLower(strings.TrimSpace(p))
		if name == "" {
			return fmt.Errorf("process names cannot be empty")
		}
		if seen[name] {
			return fmt.Errorf("duplicate process %q", p)
		}
		seen[name] = true
	}

	if c.Remote.Enabled {
		if c.Storage.Backend != BackendCSV && c.Storage.Backend != BackendJSON {
			return fmt.Errorf("the remote mirror needs the csv or json backend, not %s", c.Storage.Backend)
		}
		if !strings.Contains(c.Remote.Repo, "/") {
			return fmt.Errorf("remote.repo must be owner/name, got %q", c.Remote.Repo)
		}
		if c.Remote.Token == "" {
			return fmt.Errorf("GitHub token not configured (set GITHUB_TOKEN or remote.token)")
		}
	}
	return nil
}

// MirrorEnabled reports whether file writes should be pushed to the remote
func (c *Config) MirrorEnabled() bool {
	return c.Remote.Enabled && c.Remote.Repo != ""
}
