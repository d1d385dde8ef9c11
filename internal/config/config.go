// Package config loads runtime settings from flags, environment variables and an
// optional configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/f-sync/socialpulse/internal/features"
	"github.com/f-sync/socialpulse/internal/notify"
	"github.com/f-sync/socialpulse/internal/snapshots"
)

// EnvPrefix prefixes every environment variable, e.g. SOCIALPULSE_STORAGE_DRIVER.
const EnvPrefix = "SOCIALPULSE"

// Storage drivers.
const (
	StorageDriverMemory = "memory"
	StorageDriverSQLite = "sqlite"
)

// Configuration keys shared with flag bindings.
const (
	KeyServerHost          = "server.host"
	KeyServerPort          = "server.port"
	KeyStorageDriver       = "storage.driver"
	KeyStoragePath         = "storage.path"
	KeyStorageCapacity     = "storage.capacity"
	KeyFeaturesTier        = "features.tier"
	KeyFeaturesEnable      = "features.enable"
	KeyFeaturesDisable     = "features.disable"
	KeyTelegramEnabled     = "telegram.enabled"
	KeyTelegramBotToken    = "telegram.bot_token"
	KeyTelegramChatID      = "telegram.chat_id"
	KeyTelegramMaxRetries  = "telegram.max_retries"
	KeyTelegramRetryDelay  = "telegram.retry_delay"
	KeyTelegramMinInterval = "telegram.min_interval"
	KeyWatchSchedule       = "watch.schedule"
	KeyWatchSource         = "watch.source"
	KeyWatchLabel          = "watch.label"
	KeyLoggingLevel        = "logging.level"
)

const (
	errMessageReadConfig      = "failed to read config file"
	errMessageReadDotEnv      = "failed to read .env file"
	errMessageUnmarshalConfig = "failed to unmarshal config"
	errMessageBuildLogger     = "failed to build logger"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Features FeaturesConfig `mapstructure:"features"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Address joins host and port.
func (server ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", server.Host, server.Port)
}

// StorageConfig selects the snapshot store.
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Capacity int    `mapstructure:"capacity"`
}

// FeaturesConfig selects the tier and per-feature overrides.
type FeaturesConfig struct {
	Tier    string   `mapstructure:"tier"`
	Enable  []string `mapstructure:"enable"`
	Disable []string `mapstructure:"disable"`
}

// Settings converts the section for features.NewTierGate.
func (featuresConfig FeaturesConfig) Settings() features.Settings {
	return features.Settings{
		Tier:    featuresConfig.Tier,
		Enable:  featuresConfig.Enable,
		Disable: featuresConfig.Disable,
	}
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BotToken    string        `mapstructure:"bot_token"`
	ChatID      string        `mapstructure:"chat_id"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// NotifierConfig converts the section for notify.NewTelegramNotifier.
func (telegramConfig TelegramConfig) NotifierConfig() notify.TelegramConfig {
	return notify.TelegramConfig{
		BotToken:    telegramConfig.BotToken,
		ChatID:      telegramConfig.ChatID,
		MaxRetries:  telegramConfig.MaxRetries,
		RetryDelay:  telegramConfig.RetryDelay,
		MinInterval: telegramConfig.MinInterval,
	}
}

// WatchConfig drives the scheduled snapshot service.
type WatchConfig struct {
	Schedule string `mapstructure:"schedule"`
	Source   string `mapstructure:"source"`
	Label    string `mapstructure:"label"`
}

// LoggingConfig holds the minimum log level.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// NewViper returns a viper instance with defaults and environment binding applied.
// Commands bind their flags to it before calling Load.
func NewViper() *viper.Viper {
	configuration := viper.New()
	setDefaults(configuration)
	configuration.SetEnvPrefix(EnvPrefix)
	configuration.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	configuration.AutomaticEnv()
	return configuration
}

func setDefaults(configuration *viper.Viper) {
	configuration.SetDefault(KeyServerHost, "127.0.0.1")
	configuration.SetDefault(KeyServerPort, 8080)

	configuration.SetDefault(KeyStorageDriver, StorageDriverMemory)
	configuration.SetDefault(KeyStoragePath, "./data/socialpulse.db")
	configuration.SetDefault(KeyStorageCapacity, snapshots.DefaultCapacity)

	configuration.SetDefault(KeyFeaturesTier, features.TierFree)
	configuration.SetDefault(KeyFeaturesEnable, []string{})
	configuration.SetDefault(KeyFeaturesDisable, []string{})

	configuration.SetDefault(KeyTelegramEnabled, false)
	configuration.SetDefault(KeyTelegramBotToken, "")
	configuration.SetDefault(KeyTelegramChatID, "")
	configuration.SetDefault(KeyTelegramMaxRetries, 3)
	configuration.SetDefault(KeyTelegramRetryDelay, "1s")
	configuration.SetDefault(KeyTelegramMinInterval, "1s")

	configuration.SetDefault(KeyWatchSchedule, "@daily")
	configuration.SetDefault(KeyWatchSource, "")
	configuration.SetDefault(KeyWatchLabel, "scheduled")

	configuration.SetDefault(KeyLoggingLevel, "info")
}

// LoadDotEnv exports the variables of the given .env files, or ./.env when none is
// given, into the process environment. Missing files are ignored and variables that are
// already set keep their values.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", errMessageReadDotEnv, err)
	}
	return nil
}

// Load reads the optional config file into configuration and returns the validated result.
func Load(configuration *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		configuration.SetConfigFile(configFile)
		if err := configuration.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%s: %w", errMessageReadConfig, err)
		}
	}
	var loaded Config
	if err := configuration.Unmarshal(&loaded); err != nil {
		return Config{}, fmt.Errorf("%s: %w", errMessageUnmarshalConfig, err)
	}
	if err := loaded.Validate(); err != nil {
		return Config{}, err
	}
	return loaded, nil
}

// Validate checks that all configuration values are usable.
func (loaded Config) Validate() error {
	if loaded.Server.Port < 0 || loaded.Server.Port > 65535 {
		return invalid("server.port must be between 0 and 65535")
	}

	switch loaded.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverSQLite:
		if loaded.Storage.Path == "" {
			return invalid("storage.path is required for the sqlite driver")
		}
	default:
		return invalid("storage.driver must be one of: memory, sqlite")
	}
	if loaded.Storage.Capacity < 1 {
		return invalid("storage.capacity must be at least 1")
	}

	if _, err := features.NewTierGate(loaded.Features.Settings()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if loaded.Telegram.Enabled {
		if loaded.Telegram.BotToken == "" {
			return invalid("telegram.bot_token is required when telegram is enabled")
		}
		if loaded.Telegram.ChatID == "" {
			return invalid("telegram.chat_id is required when telegram is enabled")
		}
	}
	if loaded.Telegram.MaxRetries < 0 {
		return invalid("telegram.max_retries must not be negative")
	}
	if loaded.Telegram.RetryDelay < 0 {
		return invalid("telegram.retry_delay must not be negative")
	}
	if loaded.Telegram.MinInterval < 0 {
		return invalid("telegram.min_interval must not be negative")
	}

	if _, err := zap.ParseAtomicLevel(loaded.Logging.Level); err != nil {
		return invalid("logging.level must be one of: debug, info, warn, error")
	}
	return nil
}

// NewLogger builds a production logger at the configured level.
func (logging LoggingConfig) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(logging.Level)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageBuildLogger, err)
	}
	productionConfig := zap.NewProductionConfig()
	productionConfig.Level = level
	logger, err := productionConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageBuildLogger, err)
	}
	return logger, nil
}

func invalid(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, message)
}
