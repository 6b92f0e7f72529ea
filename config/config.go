// Package config loads engine configuration from an optional YAML file
// with MATCHBOOK_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Log struct {
	Level string `mapstructure:"level"`
}

type Backup struct {
	Path string `mapstructure:"path"`
}

type Outbox struct {
	Dir string `mapstructure:"dir"`
}

type Kafka struct {
	Brokers    []string `mapstructure:"brokers"`
	TradeTopic string   `mapstructure:"trade_topic"`
	BookTopic  string   `mapstructure:"book_topic"`
}

type Matching struct {
	// StrictPricePriority switches eligibility ordering from the
	// compatible arrival-time-only rule to best-price-first.
	StrictPricePriority bool `mapstructure:"strict_price_priority"`
}

type Config struct {
	Log      Log      `mapstructure:"log"`
	Backup   Backup   `mapstructure:"backup"`
	Outbox   Outbox   `mapstructure:"outbox"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Matching Matching `mapstructure:"matching"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Log:    Log{Level: "info"},
		Backup: Backup{Path: "RemainingOrderBackup.txt"},
		Outbox: Outbox{Dir: "data/outbox"},
		Kafka: Kafka{
			TradeTopic: "matchbook.trades",
			BookTopic:  "matchbook.book",
		},
	}
}

// Load reads configuration from path (optional; "" looks for
// matchbook.yaml in the working directory) and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("matchbook")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MATCHBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("backup.path", def.Backup.Path)
	v.SetDefault("outbox.dir", def.Outbox.Dir)
	v.SetDefault("kafka.brokers", def.Kafka.Brokers)
	v.SetDefault("kafka.trade_topic", def.Kafka.TradeTopic)
	v.SetDefault("kafka.book_topic", def.Kafka.BookTopic)
	v.SetDefault("matching.strict_price_priority", def.Matching.StrictPricePriority)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
