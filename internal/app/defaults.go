package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - HB_CONFIG_PATH: config file location (default: ~/.config/hb.toml)
//   - HB_HOME: base directory for hb data (default: ~/.local/share/hb)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking HB_CONFIG_PATH env var first,
// then falling back to the default ~/.config/hb.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("HB_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "hb.toml"), nil
}

// getBaseDir returns the base directory for hb data, checking HB_HOME env var first,
// then falling back to the XDG default ~/.local/share/hb.
func getBaseDir() (string, error) {
	if path := os.Getenv("HB_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "hb"), nil
}

// GetLogLevel returns the minimum log level from HB_LOG_LEVEL ("debug",
// "info", "warn" or "error"). It defaults to info.
func GetLogLevel() (slog.Level, error) {
	v := os.Getenv("HB_LOG_LEVEL")
	if v == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("invalid HB_LOG_LEVEL %q: %w", v, err)
	}
	return level, nil
}
