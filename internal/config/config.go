package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

type HTTPConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

type Config struct {
	HTTP       HTTPConfig `json:"http"`
	KISSandbox bool       `json:"kis_sandbox"`
	// KISTokenSentinels are HTTP 500 body substrings treated as an expired
	// token for refresh-and-retry purposes.
	KISTokenSentinels []string `json:"kis_token_sentinels,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		HTTP:              HTTPConfig{TimeoutSeconds: 30},
		KISTokenSentinels: []string{"EGW00121", "EGW00122", "EGW00123"},
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "kofin")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kofin")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

// StateDir holds disk caches, rate-limit counters and the OAuth token file.
func StateDir() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); base != "" {
		return filepath.Join(base, "kofin"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", "kofin"), nil
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.HTTP.TimeoutSeconds <= 0 {
		cfg.HTTP.TimeoutSeconds = 30
	}
	if len(cfg.KISTokenSentinels) == 0 {
		cfg.KISTokenSentinels = DefaultConfig().KISTokenSentinels
	}

	return cfg, nil
}

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
