package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Raffle   RaffleConfig   `mapstructure:"raffle"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

type RaffleConfig struct {
	TotalNumbers       int     `mapstructure:"total_numbers"`
	PricePerNumber     float64 `mapstructure:"price_per_number"`
	MaxPerOrder        int     `mapstructure:"max_per_order"`
	MaxActivePurchases int     `mapstructure:"max_active_purchases"`

	// HoldTTL bounds how long a hold lasts before it can be reclaimed.
	// Zero means holds never expire (the current business rule; the
	// raffle originally ran with 10m).
	HoldTTL time.Duration `mapstructure:"hold_ttl"`

	MaxProofSizeBytes int64 `mapstructure:"max_proof_size_bytes"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	AdminChatID int64  `mapstructure:"admin_chat_id"`
}

// Load reads the yaml config at path, with environment overrides.
func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("raffle.total_numbers", 100000)
	viper.SetDefault("raffle.price_per_number", 1000)
	viper.SetDefault("raffle.max_per_order", 50)
	viper.SetDefault("raffle.max_active_purchases", 3)
	viper.SetDefault("raffle.hold_ttl", 0)
	viper.SetDefault("raffle.max_proof_size_bytes", 10<<20)
	viper.SetDefault("kafka.topic", "raffle.orders")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("leyendo configuración: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parseando configuración: %w", err)
	}

	return &cfg, nil
}
