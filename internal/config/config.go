package config

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for hb.
type Config struct {
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Destination DestinationConfig `toml:"destination"`
	Copy        CopyConfig        `toml:"copy"`
}

// PostgresConfig describes the server connection. Empty fields are left to
// libpq defaults (PGHOST, PGUSER and friends).
type PostgresConfig struct {
	Host            string `toml:"host,omitempty"`
	Port            int    `toml:"port,omitempty"`
	User            string `toml:"user,omitempty"`
	Password        string `toml:"password,omitempty"`
	DBName          string `toml:"dbname"`
	SSLMode         string `toml:"sslmode,omitempty"`
	ConnectTimeout  int    `toml:"connect_timeout,omitempty"` // seconds
	ApplicationName string `toml:"application_name,omitempty"`
}

// CatalogConfig represents configuration for the backup catalog.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CatalogConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// DestinationConfig represents configuration for where backup files are written.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DestinationConfig struct {
	Type string `toml:"type"`           // "filesystem" or "memory"
	Root string `toml:"root,omitempty"` // only used for type=filesystem
}

// CopyConfig names the external command that copies the data directory
// while the hot backup is open.
type CopyConfig struct {
	Command []string `toml:"command,omitempty"`
	Timeout string   `toml:"timeout,omitempty"` // Go duration, e.g. "2h"
}

// NewConfig creates a new Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Postgres: PostgresConfig{
			DBName:          "postgres",
			ApplicationName: "hb",
		},
		Catalog: CatalogConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "catalog"),
		},
		Destination: DestinationConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "backups"),
		},
	}
}

// ConnString renders the connection settings as a postgres:// URL.
// password overrides the configured password when non-empty.
func (p PostgresConfig) ConnString(password string) string {
	u := url.URL{Scheme: "postgres", Host: p.Host}
	switch {
	case p.Port != 0:
		u.Host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	case strings.Contains(p.Host, ":"):
		// bare IPv6 address
		u.Host = "[" + p.Host + "]"
	}
	if password == "" {
		password = p.Password
	}
	switch {
	case p.User != "" && password != "":
		u.User = url.UserPassword(p.User, password)
	case p.User != "":
		u.User = url.User(p.User)
	}

	dbname := p.DBName
	if dbname == "" {
		dbname = "postgres"
	}
	u.Path = "/" + dbname

	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	if p.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(p.ConnectTimeout))
	}
	if p.ApplicationName != "" {
		q.Set("application_name", p.ApplicationName)
	}
	if p.User == "" && password != "" {
		q.Set("password", password)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// TimeoutDuration parses Timeout. Zero means no timeout.
func (c CopyConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid copy timeout %q: %w", c.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("copy timeout must not be negative: %s", c.Timeout)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold a database password.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
