package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GEFEN_"

type RevealConfig struct {
	IntervalMS int `toml:"interval_ms" env:"INTERVAL_MS"`
	Step       int `toml:"step" env:"STEP"`
}

type ResponsesConfig struct {
	LatencyMinMS   int      `toml:"latency_min_ms" env:"LATENCY_MIN_MS"`
	LatencyMaxMS   int      `toml:"latency_max_ms" env:"LATENCY_MAX_MS"`
	Seed           uint64   `toml:"seed" env:"SEED"`
	Pool           []string `toml:"pool" env:"POOL" envSeparator:"|"`
	ReplyTimeoutMS int      `toml:"reply_timeout_ms" env:"REPLY_TIMEOUT_MS"`
	ErrorText      string   `toml:"error_text" env:"ERROR_TEXT"`
}

type ChatConfig struct {
	SeedPrompts  []string `toml:"seed_prompts" env:"SEED_PROMPTS" envSeparator:"|"`
	HistoryLimit int      `toml:"history_limit" env:"HISTORY_LIMIT"`
}

type Config struct {
	DataDirectory string          `toml:"data_directory" env:"DATA_DIR"`
	Debug         bool            `toml:"debug" env:"DEBUG"`
	Reveal        RevealConfig    `toml:"reveal" envPrefix:"REVEAL_"`
	Responses     ResponsesConfig `toml:"responses" envPrefix:"RESPONSES_"`
	Chat          ChatConfig      `toml:"chat" envPrefix:"CHAT_"`
}

// DataDir returns the expanded data directory, or the platform default when
// none is set.
func (c *Config) DataDir() string {
	if c.DataDirectory == "" {
		return GetDefaultDataDir()
	}
	return ExpandPath(c.DataDirectory)
}

func (c *Config) RevealInterval() time.Duration {
	return time.Duration(c.Reveal.IntervalMS) * time.Millisecond
}

func (c *Config) ReplyTimeout() time.Duration {
	return time.Duration(c.Responses.ReplyTimeoutMS) * time.Millisecond
}

// Latency returns the simulated reply delay bounds.
func (c *Config) Latency() (time.Duration, time.Duration) {
	return time.Duration(c.Responses.LatencyMinMS) * time.Millisecond,
		time.Duration(c.Responses.LatencyMaxMS) * time.Millisecond
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Reveal.IntervalMS <= 0:
		return errors.Errorf("reveal.interval_ms must be positive, got %d", c.Reveal.IntervalMS)
	case c.Reveal.Step < 1:
		return errors.Errorf("reveal.step must be at least 1, got %d", c.Reveal.Step)
	case c.Responses.LatencyMinMS < 0:
		return errors.Errorf("responses.latency_min_ms must not be negative, got %d", c.Responses.LatencyMinMS)
	case c.Responses.LatencyMinMS > c.Responses.LatencyMaxMS:
		return errors.Errorf("responses.latency_min_ms (%d) exceeds latency_max_ms (%d)",
			c.Responses.LatencyMinMS, c.Responses.LatencyMaxMS)
	case len(c.Responses.Pool) == 0:
		return errors.New("responses.pool must contain at least one reply")
	case c.Responses.ReplyTimeoutMS <= 0:
		return errors.Errorf("responses.reply_timeout_ms must be positive, got %d", c.Responses.ReplyTimeoutMS)
	case c.Chat.HistoryLimit < 0:
		return errors.Errorf("chat.history_limit must not be negative, got %d", c.Chat.HistoryLimit)
	}
	for i, reply := range c.Responses.Pool {
		if reply == "" {
			return errors.Errorf("responses.pool[%d] is empty", i)
		}
	}
	return nil
}

// Load reads the default settings file and a .env file in the working
// directory.
func Load() (*Config, error) {
	return LoadFrom(GetSettingsFilePath(), ".env")
}

// LoadFrom layers defaults, the TOML file at settingsPath, the dotenv file
// at dotenvPath and the process environment, in that order. A missing
// settings file is created from the template. A missing dotenv file is
// skipped; variables already set in the environment are not overridden by it.
func LoadFrom(settingsPath, dotenvPath string) (*Config, error) {
	cfg := Default()

	if settingsPath != "" {
		if !FileExists(settingsPath) {
			if err := CreateDefaultSettings(settingsPath); err != nil {
				return nil, errors.Wrap(err, "failed to create settings")
			}
		} else if _, err := toml.DecodeFile(settingsPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", settingsPath)
		}
	}

	if dotenvPath != "" && FileExists(dotenvPath) {
		if err := godotenv.Load(dotenvPath); err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", dotenvPath)
		}
	}

	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "failed to parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// CreateDefaultSettings writes the settings template to path unless a file
// already exists there.
func CreateDefaultSettings(path string) error {
	if FileExists(path) {
		return nil
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := os.WriteFile(path, []byte(GenerateSettingsTemplate()), 0600); err != nil {
		return errors.Wrap(err, "failed to write settings")
	}
	return nil
}

// Save writes cfg to path as TOML.
func Save(cfg *Config, path string) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "failed to create settings file")
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return errors.Wrap(err, "failed to encode settings")
	}
	return nil
}
