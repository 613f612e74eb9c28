package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/user/smsrelay/internal/router"
	"github.com/user/smsrelay/internal/state"
)

type Config struct {
	DataDir       string `json:"data_dir" env:"SMSRELAY_DATA_DIR"`
	LogLevel      string `json:"log_level" env:"SMSRELAY_LOG_LEVEL"`
	MaxConcurrent int    `json:"max_concurrent"`
	Database      struct {
		Path string `json:"path" env:"SMSRELAY_DB_PATH"`
	} `json:"database"`
	Signup struct {
		TimeoutMinutes       int `json:"timeout_minutes"`
		SweepIntervalMinutes int `json:"sweep_interval_minutes"`
	} `json:"signup"`
	Relay struct {
		SummaryTTLSeconds int    `json:"summary_ttl_seconds"`
		MaxParallel       int    `json:"max_parallel"`
		Reaction          string `json:"reaction"`
	} `json:"relay"`
	Discord struct {
		Token   string `json:"token" env:"DISCORD_TOKEN" secret:"true"`
		GuildID string `json:"guild_id" env:"DISCORD_GUILD_ID"`
	} `json:"discord"`
	Telegram struct {
		Token string `json:"token" env:"TELEGRAM_BOT_TOKEN" secret:"true"`
	} `json:"telegram"`
	Twilio struct {
		AccountSID string `json:"account_sid" env:"TWILIO_ACCOUNT_SID"`
		AuthToken  string `json:"auth_token" env:"TWILIO_AUTH_TOKEN" secret:"true"`
		FromNumber string `json:"from_number" env:"TWILIO_PHONE_NUMBER"`
		DryRun     bool   `json:"dry_run" env:"SMSRELAY_DRY_RUN"`
	} `json:"twilio"`
	HTTP struct {
		Enabled   bool   `json:"enabled"`
		Listen    string `json:"listen" env:"SMSRELAY_HTTP_LISTEN"`
		PublicURL string `json:"public_url" env:"SMSRELAY_PUBLIC_URL"`
	} `json:"http"`
}

func defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".smsrelay"),
		LogLevel:      "info",
		MaxConcurrent: 4,
	}
	cfg.Signup.TimeoutMinutes = int(state.DefaultSessionTimeout / time.Minute)
	cfg.Signup.SweepIntervalMinutes = int(state.DefaultSweepInterval / time.Minute)
	cfg.Relay.SummaryTTLSeconds = int(router.DefaultSummaryTTL / time.Second)
	cfg.Relay.MaxParallel = 1
	cfg.Relay.Reaction = router.DefaultReaction
	cfg.HTTP.Listen = ":8080"
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		if cfg, err = readFile(path); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence); unset variables leave the
	// file values alone.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// Validate reports configuration that would prevent the daemon from working.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.Token == "" && c.Telegram.Token == "" {
		errs = append(errs, errors.New("no chat platform configured: set discord.token or telegram.token"))
	}
	if !c.Twilio.DryRun {
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("twilio.account_sid and twilio.auth_token are required unless twilio.dry_run is set"))
		}
		if c.Twilio.FromNumber == "" {
			errs = append(errs, errors.New("twilio.from_number is required unless twilio.dry_run is set"))
		}
	}
	if c.Signup.TimeoutMinutes < 0 || c.Signup.SweepIntervalMinutes < 0 {
		errs = append(errs, errors.New("signup durations must not be negative"))
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		errs = append(errs, errors.New("http.listen is required when http.enabled is set"))
	}
	// Twilio signs the public URL it posts to; without it every inbound
	// STOP fails signature validation.
	if c.HTTP.Enabled && !c.Twilio.DryRun && c.Twilio.AuthToken != "" && c.HTTP.PublicURL == "" {
		errs = append(errs, errors.New("http.public_url is required to validate inbound Twilio webhooks"))
	}
	return errors.Join(errs...)
}

// DBPath returns the SQLite file, defaulting to smsrelay.db in the data dir.
func (c *Config) DBPath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "smsrelay.db")
}

// SessionTimeout returns how long a signup stays open. Zero falls back to
// the registry default.
func (c *Config) SessionTimeout() time.Duration {
	return orDefault(time.Duration(c.Signup.TimeoutMinutes)*time.Minute, state.DefaultSessionTimeout)
}

func (c *Config) SweepInterval() time.Duration {
	return orDefault(time.Duration(c.Signup.SweepIntervalMinutes)*time.Minute, state.DefaultSweepInterval)
}

func (c *Config) SummaryTTL() time.Duration {
	return orDefault(time.Duration(c.Relay.SummaryTTLSeconds)*time.Second, router.DefaultSummaryTTL)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ListValues returns every setting as a flat dot-keyed map, optionally
// with secrets masked.
func ListValues(cfg *Config, mask bool) map[string]any {
	out := make(map[string]any)
	for _, s := range settings(cfg) {
		out[s.key] = s.display(mask)
	}
	return out
}

// GetValue reads one dot-separated key from the config file at path,
// creating the file with defaults if it does not exist yet. Environment
// overrides are not applied.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	s, ok := lookup(cfg, key)
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return s.value.Interface(), nil
}

// SetValue stores value under a dot-separated key in the existing config
// file, converting it to the field's type.
func SetValue(path, key, value string) error {
	cfg, err := readFile(path)
	if err != nil {
		return err
	}
	s, ok := lookup(cfg, key)
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err := s.parse(value); err != nil {
		return err
	}
	return Save(path, cfg)
}

// readFile loads the file at path over the defaults without consulting
// the environment.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
