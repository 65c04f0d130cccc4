package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Bot API settings of the primary bot.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// MTProtoConfig configures the MTProto clients: transient login clients,
// the userbot and per-user bots.
type MTProtoConfig struct {
	APIID   int    `yaml:"api_id" envconfig:"API_ID"`
	APIHash string `yaml:"api_hash" envconfig:"API_HASH"`
	// UserbotSession is the pre-shared session string of the privileged userbot:
	// a string exported by this service, a Telethon StringSession or a Pyrogram
	// session string. Empty disables the userbot.
	UserbotSession string `yaml:"userbot_session" envconfig:"STRING"`
	DeviceModel    string `yaml:"device_model" envconfig:"DEVICE_MODEL"`
	SessionsDir    string `yaml:"sessions_dir" envconfig:"SESSIONS_DIR"`
}

// AuthConfig tunes the interactive login flow.
type AuthConfig struct {
	CallTimeoutSeconds int `yaml:"call_timeout_seconds" envconfig:"AUTH_CALL_TIMEOUT_SECONDS"`
	NoticeTTLSeconds   int `yaml:"notice_ttl_seconds" envconfig:"AUTH_NOTICE_TTL_SECONDS"`
}

// CryptoConfig holds the master secret used to seal session strings.
type CryptoConfig struct {
	Key string `yaml:"key" envconfig:"MASTER_KEY"`
}

// DatabaseConfig holds postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Username string `yaml:"username" envconfig:"REDIS_USERNAME"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// StorageConfig selects the persistence driver for sessions and bot tokens.
type StorageConfig struct {
	Driver   string         `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// DriverPostgres stores sessions in postgres.
	DriverPostgres = "postgres"
	// DriverRedis stores sessions in redis hashes.
	DriverRedis = "redis"
	// DriverMemory keeps sessions in process memory; development only.
	DriverMemory = "memory"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

const (
	defaultSessionsDir      = "/tmp/sessions"
	defaultDeviceModel      = "sessionkeeper"
	defaultCallTimeoutSec   = 30
	defaultNoticeTTLSeconds = 5
	defaultRedisPrefix      = "sessionkeeper:user:"
)

// RateLimitConfig holds settings for rate limiting.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the whole application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	MTProto   MTProtoConfig   `yaml:"mtproto"`
	Auth      AuthConfig      `yaml:"auth"`
	Crypto    CryptoConfig    `yaml:"crypto"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// CoreConfig satisfies cmd.ConfigCarrier.
func (c *Config) CoreConfig() *Config { return c }

// Load reads configuration from a YAML file and environment variables.
// A .env file next to the config (or in the working directory) is loaded first;
// variables already present in the environment win.
func Load(path string) (*Config, error) {
	var cfg Config

	loadDotEnv(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployments are allowed
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if dir := filepath.Dir(configPath); dir != "" && dir != "." {
		candidates = append([]string{filepath.Join(dir, ".env")}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if err := normalizeRunMode(cfg); err != nil {
		return err
	}

	if cfg.MTProto.APIID <= 0 {
		return fmt.Errorf("mtproto.api_id is required")
	}
	if strings.TrimSpace(cfg.MTProto.APIHash) == "" {
		return fmt.Errorf("mtproto.api_hash is required")
	}
	cfg.MTProto.UserbotSession = strings.TrimSpace(cfg.MTProto.UserbotSession)
	if strings.TrimSpace(cfg.MTProto.SessionsDir) == "" {
		cfg.MTProto.SessionsDir = defaultSessionsDir
	}
	if strings.TrimSpace(cfg.MTProto.DeviceModel) == "" {
		cfg.MTProto.DeviceModel = defaultDeviceModel
	}

	if len(strings.TrimSpace(cfg.Crypto.Key)) < 16 {
		return fmt.Errorf("crypto.key must be at least 16 characters")
	}

	if cfg.Auth.CallTimeoutSeconds < 0 || cfg.Auth.NoticeTTLSeconds < 0 {
		return fmt.Errorf("auth timeouts must be >= 0")
	}
	if cfg.Auth.CallTimeoutSeconds == 0 {
		cfg.Auth.CallTimeoutSeconds = defaultCallTimeoutSec
	}
	if cfg.Auth.NoticeTTLSeconds == 0 {
		cfg.Auth.NoticeTTLSeconds = defaultNoticeTTLSeconds
	}

	if err := normalizeStorage(&cfg.Storage); err != nil {
		return err
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeRunMode(cfg *Config) error {
	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeStorage(s *StorageConfig) error {
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	if driver == "" {
		driver = DriverPostgres
	}
	switch driver {
	case DriverPostgres:
		if s.Database.Host == "" || s.Database.Name == "" {
			return fmt.Errorf("storage.database.host and storage.database.name are required for the postgres driver")
		}
		if s.Database.Port == "" {
			s.Database.Port = "5432"
		}
		if s.Database.SSLMode == "" {
			s.Database.SSLMode = "disable"
		}
		if s.Database.MaxConnections <= 0 {
			s.Database.MaxConnections = 5
		}
	case DriverRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
		if s.Redis.Prefix == "" {
			s.Redis.Prefix = defaultRedisPrefix
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: postgres, redis, memory", s.Driver)
	}
	s.Driver = driver
	return nil
}
