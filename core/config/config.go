package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/godialogue/core/dialogue/serializer"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
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

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RedisConfig configures the redis dialogue storage.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"DIALOGUE_REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"DIALOGUE_REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DIALOGUE_REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"DIALOGUE_REDIS_PREFIX"`
	// TimeoutMS bounds every storage round trip.
	TimeoutMS int `yaml:"timeout_ms" envconfig:"DIALOGUE_REDIS_TIMEOUT_MS"`
	// StateTTLSeconds expires idle dialogues; 0 keeps them forever.
	StateTTLSeconds int `yaml:"state_ttl_seconds" envconfig:"DIALOGUE_REDIS_STATE_TTL_SECONDS"`
	// LockTTLMS bounds how long a crashed holder keeps its chat locked; 0 -> default
	LockTTLMS   int `yaml:"lock_ttl_ms" envconfig:"DIALOGUE_REDIS_LOCK_TTL_MS"`
	LockRetryMS int `yaml:"lock_retry_ms" envconfig:"DIALOGUE_REDIS_LOCK_RETRY_MS"`
}

// BoltConfig configures the embedded file storage.
type BoltConfig struct {
	Path      string `yaml:"path" envconfig:"DIALOGUE_BOLT_PATH"`
	Bucket    string `yaml:"bucket" envconfig:"DIALOGUE_BOLT_BUCKET"`
	TimeoutMS int    `yaml:"timeout_ms" envconfig:"DIALOGUE_BOLT_TIMEOUT_MS"`
}

// DialogueConfig selects the storage backend and the state encoding.
type DialogueConfig struct {
	Storage    string `yaml:"storage" envconfig:"DIALOGUE_STORAGE"`
	Serializer string `yaml:"serializer" envconfig:"DIALOGUE_SERIALIZER"`
	// CancelCommand resets the caller's dialogue; empty disables it.
	CancelCommand string      `yaml:"cancel_command" envconfig:"DIALOGUE_CANCEL_COMMAND"`
	Redis         RedisConfig `yaml:"redis"`
	Bolt          BoltConfig  `yaml:"bolt"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// Storage backends accepted by dialogue.storage.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageBolt     = "bolt"
)

const (
	defaultBoltPath  = "data/dialogue.db"
	defaultRedisAddr = "127.0.0.1:6379"
	defaultRedisPref = "dialogue"
	defaultTimeoutMS = 3000
	defaultLockRetry = 25
	defaultCancelCmd = "/cancel"
	maxRedisDatabase = 15
	minLockTTLMillis = 100
)

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Logging  LoggingConfig  `yaml:"logging"`
	Dialogue DialogueConfig `yaml:"dialogue"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills dst from the YAML file at path and then from the environment.
// dst may be any struct embedding Config.
func Decode(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

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

	return normalizeDialogue(&cfg.Dialogue)
}

func normalizeDialogue(d *DialogueConfig) error {
	st := strings.ToLower(strings.TrimSpace(d.Storage))
	switch st {
	case "", "mem", StorageMemory:
		st = StorageMemory
	case "pg", "postgresql", StoragePostgres:
		st = StoragePostgres
	case "bbolt", "file", StorageBolt:
		st = StorageBolt
	case StorageRedis:
	default:
		return fmt.Errorf("invalid dialogue.storage %q; allowed: memory, redis, postgres, bolt", d.Storage)
	}
	d.Storage = st

	ser, err := serializer.ByName(d.Serializer)
	if err != nil {
		return fmt.Errorf("invalid dialogue.serializer %q; allowed: %s", d.Serializer, strings.Join(serializer.Formats(), ", "))
	}
	d.Serializer = ser.Name()

	d.CancelCommand = strings.TrimSpace(d.CancelCommand)
	switch {
	case d.CancelCommand == "":
		d.CancelCommand = defaultCancelCmd
	case d.CancelCommand == "-":
		d.CancelCommand = ""
	case !strings.HasPrefix(d.CancelCommand, "/"):
		d.CancelCommand = "/" + d.CancelCommand
	}

	switch st {
	case StorageRedis:
		return normalizeRedis(&d.Redis)
	case StorageBolt:
		if strings.TrimSpace(d.Bolt.Path) == "" {
			d.Bolt.Path = defaultBoltPath
		}
		if d.Bolt.TimeoutMS < 0 {
			return fmt.Errorf("dialogue.bolt.timeout_ms must be >= 0")
		}
		if d.Bolt.TimeoutMS == 0 {
			d.Bolt.TimeoutMS = defaultTimeoutMS
		}
	}
	return nil
}

func normalizeRedis(r *RedisConfig) error {
	if strings.TrimSpace(r.Addr) == "" {
		r.Addr = defaultRedisAddr
	}
	if r.DB < 0 || r.DB > maxRedisDatabase {
		return fmt.Errorf("dialogue.redis.db must be within 0..%d", maxRedisDatabase)
	}
	if strings.TrimSpace(r.Prefix) == "" {
		r.Prefix = defaultRedisPref
	}
	if r.TimeoutMS < 0 || r.StateTTLSeconds < 0 || r.LockTTLMS < 0 || r.LockRetryMS < 0 {
		return fmt.Errorf("dialogue.redis durations must be >= 0")
	}
	if r.TimeoutMS == 0 {
		r.TimeoutMS = defaultTimeoutMS
	}
	if r.LockTTLMS > 0 && r.LockTTLMS < minLockTTLMillis {
		return fmt.Errorf("dialogue.redis.lock_ttl_ms must be >= %d", minLockTTLMillis)
	}
	if r.LockRetryMS == 0 {
		r.LockRetryMS = defaultLockRetry
	}
	return nil
}
