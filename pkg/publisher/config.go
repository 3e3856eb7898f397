// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	"net/url"
	"time"
)

// Config selects and configures the notification transport.
type Config struct {
	// Driver is one of kafka, redis, s3, clickhouse, log, noop (default: log).
	Driver string `mapstructure:"driver"`

	// URL is the transport address: a comma separated broker list for kafka,
	// an address or redis:// URL for redis, a DSN for clickhouse.
	URL string `mapstructure:"url"`

	// Topic is the Kafka topic (default: "notifications").
	Topic string `mapstructure:"topic"`

	// ControlExchange prefixes Redis channels (default: "swift").
	// Notifications go to "{control_exchange}:{event_type}".
	ControlExchange string `mapstructure:"control_exchange"`

	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Redis      RedisConfig      `mapstructure:"redis"`
	S3         S3Config         `mapstructure:"s3"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
}

// KafkaConfig holds Kafka producer settings.
type KafkaConfig struct {
	// Brokers overrides URL when set.
	Brokers []string `mapstructure:"brokers"`

	// RequiredAcks: 0=none, 1=leader, -1=all (default: 1).
	RequiredAcks int `mapstructure:"required_acks"`

	// Compression: "none", "gzip", "snappy", "lz4", "zstd" (default: "snappy").
	Compression string `mapstructure:"compression"`

	// BatchSize is the maximum messages per batch (default: 100).
	BatchSize int `mapstructure:"batch_size"`

	// BatchTimeout is the maximum time to wait for a batch (default: 1s).
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`

	// WriteTimeout is the timeout for write operations (default: 10s).
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	TLS           bool `mapstructure:"tls"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	// SASLMechanism is PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512. SASL is
	// enabled when SASLUsername is set.
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

// RedisConfig holds Redis client settings.
type RedisConfig struct {
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// PoolSize is the maximum number of connections (default: 10).
	PoolSize int `mapstructure:"pool_size"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// S3Config holds settings for archiving notifications as objects.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`

	// Prefix is prepended to every object key (default: "audit/").
	Prefix string `mapstructure:"prefix"`

	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// ClickHouseConfig holds settings for storing notifications in ClickHouse.
type ClickHouseConfig struct {
	// Table receives one row per notification (default: "audit_events").
	Table string `mapstructure:"table"`

	MaxOpenConns int           `mapstructure:"max_open_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Driver:          "log",
		Topic:           "notifications",
		ControlExchange: "swift",
		Kafka: KafkaConfig{
			RequiredAcks: 1,
			Compression:  "snappy",
			BatchSize:    100,
			BatchTimeout: time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		S3: S3Config{
			Prefix: "audit/",
		},
		ClickHouse: ClickHouseConfig{
			Table:        "audit_events",
			MaxOpenConns: 10,
			DialTimeout:  5 * time.Second,
		},
	}
}

// Validate applies defaults for unset values.
func (c *Config) Validate() {
	d := DefaultConfig()
	if c.Driver == "" {
		c.Driver = d.Driver
	}
	if c.Topic == "" {
		c.Topic = d.Topic
	}
	if c.ControlExchange == "" {
		c.ControlExchange = d.ControlExchange
	}

	if c.Kafka.RequiredAcks < -1 || c.Kafka.RequiredAcks > 1 {
		c.Kafka.RequiredAcks = d.Kafka.RequiredAcks
	}
	if c.Kafka.Compression == "" {
		c.Kafka.Compression = d.Kafka.Compression
	}
	if c.Kafka.BatchSize <= 0 {
		c.Kafka.BatchSize = d.Kafka.BatchSize
	}
	if c.Kafka.BatchTimeout <= 0 {
		c.Kafka.BatchTimeout = d.Kafka.BatchTimeout
	}
	if c.Kafka.WriteTimeout <= 0 {
		c.Kafka.WriteTimeout = d.Kafka.WriteTimeout
	}

	if c.Redis.PoolSize <= 0 {
		c.Redis.PoolSize = d.Redis.PoolSize
	}
	if c.Redis.DialTimeout <= 0 {
		c.Redis.DialTimeout = d.Redis.DialTimeout
	}
	if c.Redis.ReadTimeout <= 0 {
		c.Redis.ReadTimeout = d.Redis.ReadTimeout
	}
	if c.Redis.WriteTimeout <= 0 {
		c.Redis.WriteTimeout = d.Redis.WriteTimeout
	}

	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = d.ClickHouse.Table
	}
	if c.ClickHouse.MaxOpenConns <= 0 {
		c.ClickHouse.MaxOpenConns = d.ClickHouse.MaxOpenConns
	}
	if c.ClickHouse.DialTimeout <= 0 {
		c.ClickHouse.DialTimeout = d.ClickHouse.DialTimeout
	}
}

// redactURL hides a password in URL-style addresses for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}
	return u.Redacted()
}
