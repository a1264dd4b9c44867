package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrMissingDiscordToken = errors.New("discord token is not configured (DISCORD_TOKEN)")
	ErrMissingTelegramAPI  = errors.New("telegram api credentials are not configured (TELEGRAM_API_ID, TELEGRAM_API_HASH)")
)

// FlexibleStringSlice is a []string that also accepts JSON numbers, so
// owner_ids can hold both "123" and 123. Numbers keep their literal digits;
// Discord snowflakes do not fit in a float64.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case json.Number:
			result = append(result, val.String())
		default:
			return fmt.Errorf("owner id %v: want string or number", v)
		}
	}
	*f = result
	return nil
}

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Telegram  TelegramConfig  `json:"telegram"`
	Storage   StorageConfig   `json:"storage"`
	Forwarder ForwarderConfig `json:"forwarder"`
	Reminders RemindersConfig `json:"reminders"`
	Auth      AuthConfig      `json:"auth"`
	Log       LogConfig       `json:"log"`
}

type DiscordConfig struct {
	Token    string              `env:"DISCORD_TOKEN"             json:"token"`
	OwnerIDs FlexibleStringSlice `env:"DISCORD_OWNER_IDS"         json:"owner_ids"`
	GuildID  string              `env:"TELECORD_DISCORD_GUILD_ID" json:"guild_id,omitempty"` // empty registers commands globally
}

type TelegramConfig struct {
	APIID       int    `env:"TELEGRAM_API_ID"                json:"api_id"`
	APIHash     string `env:"TELEGRAM_API_HASH"              json:"api_hash"`
	SessionPath string `env:"TELECORD_TELEGRAM_SESSION_PATH" json:"session_path"`
}

type StorageConfig struct {
	Path string `env:"TELECORD_DATABASE_PATH" json:"path"`
}

type ForwarderConfig struct {
	ReloadInterval string `env:"TELECORD_FORWARDER_RELOAD_INTERVAL" json:"reload_interval"` // cron spec, empty disables
	OnlineNotice   string `env:"TELECORD_FORWARDER_ONLINE_NOTICE"   json:"online_notice"`
}

type RemindersConfig struct {
	MaxGroupsPerUser int `env:"TELECORD_REMINDERS_MAX_GROUPS" json:"max_groups_per_user"`
	MaxTextsPerGroup int `env:"TELECORD_REMINDERS_MAX_TEXTS"  json:"max_texts_per_group"`
}

type AuthConfig struct {
	ScanBufferSeconds int `env:"TELECORD_AUTH_SCAN_BUFFER_SECONDS" json:"scan_buffer_seconds"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL"           json:"level"`
	Format string `env:"TELECORD_LOG_FORMAT" json:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			SessionPath: "~/.telecord/telegram.session",
		},
		Storage: StorageConfig{
			Path: "~/.telecord/telecord.db",
		},
		Forwarder: ForwarderConfig{
			ReloadInterval: "@every 5m",
			OnlineNotice:   "Bot online",
		},
		Reminders: RemindersConfig{
			MaxGroupsPerUser: 25,
			MaxTextsPerGroup: 10,
		},
		Auth: AuthConfig{
			ScanBufferSeconds: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("error loading %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig layers defaults, the JSON file at path (if any), a .env file in
// the working directory and finally the process environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks everything the gateway needs to start.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return ErrMissingDiscordToken
	}
	return c.ValidateTelegram()
}

// ValidateTelegram checks only the Telegram credentials, which is all the
// standalone login command needs.
func (c *Config) ValidateTelegram() error {
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return ErrMissingTelegramAPI
	}
	return nil
}

func (c *Config) DatabasePath() string {
	return expandHome(c.Storage.Path)
}

func (c *Config) SessionPath() string {
	return expandHome(c.Telegram.SessionPath)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
