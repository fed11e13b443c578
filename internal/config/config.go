package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "RELAY"

	defaultHTTPAddress        = "0.0.0.0:8200"
	defaultDatabasePath       = "relay.db"
	defaultLogLevel           = "info"
	defaultFeedDriver         = FeedDriverChangelog
	defaultFeedPollIntervalMs = 250
	defaultSendBuffer         = 32
	defaultKafkaGroup         = "boardstream-relay"
	defaultHistoryTopic       = "board.history"
	defaultNotificationsTopic = "board.notifications"
)

// Feed driver names accepted for feed.driver.
const (
	FeedDriverChangelog = "changelog"
	FeedDriverKafka     = "kafka"
)

// AppConfig captures runtime configuration for the relay service.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	SigningSecret      string
	RequireToken       bool
	FeedDriver         string
	FeedPollInterval   time.Duration
	KafkaBrokers       []string
	KafkaGroup         string
	HistoryTopic       string
	NotificationsTopic string
	SendBuffer         int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.require_token", false)
	configViper.SetDefault("feed.driver", defaultFeedDriver)
	configViper.SetDefault("feed.poll_interval_ms", defaultFeedPollIntervalMs)
	configViper.SetDefault("kafka.group", defaultKafkaGroup)
	configViper.SetDefault("kafka.history_topic", defaultHistoryTopic)
	configViper.SetDefault("kafka.notifications_topic", defaultNotificationsTopic)
	configViper.SetDefault("relay.send_buffer", defaultSendBuffer)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		RequireToken:       configViper.GetBool("auth.require_token"),
		FeedDriver:         configViper.GetString("feed.driver"),
		FeedPollInterval:   time.Duration(configViper.GetInt("feed.poll_interval_ms")) * time.Millisecond,
		KafkaBrokers:       configViper.GetStringSlice("kafka.brokers"),
		KafkaGroup:         configViper.GetString("kafka.group"),
		HistoryTopic:       configViper.GetString("kafka.history_topic"),
		NotificationsTopic: configViper.GetString("kafka.notifications_topic"),
		SendBuffer:         configViper.GetInt("relay.send_buffer"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.FeedDriver {
	case FeedDriverChangelog:
	case FeedDriverKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when feed.driver is %q", FeedDriverKafka)
		}
	default:
		return fmt.Errorf("feed.driver must be %q or %q", FeedDriverChangelog, FeedDriverKafka)
	}
	if c.FeedPollInterval <= 0 {
		return fmt.Errorf("feed.poll_interval_ms must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("relay.send_buffer must be positive")
	}
	return nil
}
