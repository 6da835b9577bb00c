package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at an explicit
// config file.
const EnvConfigPath = "TAKEFIVE_CONFIG"

type Config struct {
	Schedule ScheduleConfig `yaml:"schedule"`
	Chime    ChimeConfig    `yaml:"chime"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ScheduleConfig struct {
	WorkMinutes     int `yaml:"work_minutes"`
	BreakMinutes    int `yaml:"break_minutes"`
	PostponeMinutes int `yaml:"postpone_minutes"`
	// IdleThresholdMinutes is how long input must be absent before the
	// user counts as away from the keyboard.
	IdleThresholdMinutes int `yaml:"idle_threshold_minutes"`
}

type ChimeConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

func DefaultConfig() Config {
	return Config{
		Schedule: ScheduleConfig{
			WorkMinutes:          60,
			BreakMinutes:         5,
			PostponeMinutes:      5,
			IdleThresholdMinutes: 1,
		},
		Chime: ChimeConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        defaultLogDir(),
			MaxSizeMB:  20,
			MaxBackups: 7,
			Compress:   false,
		},
	}
}

// ConfigDir returns the config directory path.
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(configDir, "takefive"), nil
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LegacyDarwinConfigPath returns the pre-1.0 macOS location under ~/.config,
// kept readable so upgrades don't silently drop user settings.
func LegacyDarwinConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home dir: %w", err)
	}
	return filepath.Join(home, ".config", "takefive", "config.yaml"), nil
}

// LoadResult pairs the parsed config with where it came from.
type LoadResult struct {
	Config Config
	Source SourceSelection
}

// Load resolves the config source, then reads and parses it.
func Load() (LoadResult, error) {
	source, err := ResolveConfigSource(ResolveOptions{EnvPath: os.Getenv(EnvConfigPath)})
	if err != nil {
		return LoadResult{}, err
	}

	if source.Type == SourceDefaults {
		return LoadResult{Config: DefaultConfig(), Source: source}, nil
	}

	data, err := os.ReadFile(source.Path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := LoadFromBytes(data)
	if err != nil {
		return LoadResult{}, err
	}

	return LoadResult{Config: cfg, Source: source}, nil
}

// LoadFromBytes parses raw YAML over the defaults.
func LoadFromBytes(data []byte) (Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Logging.Dir = normalizeLoggingDir(cfg.Logging.Dir)

	return cfg, nil
}

// Init creates a default config file if one doesn't exist.
func Init() (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config already exists at %s", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}

	return path, nil
}
