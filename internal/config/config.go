// Package config loads relayd's configuration from a TOML file, with every
// field overridable by an environment variable, following the
// RELAYQUEUE_DEV-style convention used throughout this codebase.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// HTTPConfig configures the admin HTTP surface.
type HTTPConfig struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// GRPCConfig configures the health-check gRPC surface.
type GRPCConfig struct {
	Addr string `toml:"addr"`
}

// RedisConfig configures the leader-election client.
type RedisConfig struct {
	Addr string `toml:"addr"`
}

// SQSConfig configures the inbound bridge.
type SQSConfig struct {
	QueueURL       string `toml:"queue_url"`
	Region         string `toml:"region"`
	CustomEndpoint string `toml:"custom_endpoint"`
}

// NATSConfig configures outbound event publishing.
type NATSConfig struct {
	URL string `toml:"url"`
}

// MongoConfig configures the audit log store.
type MongoConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

// LeaderConfig configures distributed leader election.
type LeaderConfig struct {
	LockName string `toml:"lock_name"`
}

// Config is relayd's full configuration surface.
type Config struct {
	Dev    bool         `toml:"dev"`
	HTTP   HTTPConfig   `toml:"http"`
	GRPC   GRPCConfig   `toml:"grpc"`
	Redis  RedisConfig  `toml:"redis"`
	SQS    SQSConfig    `toml:"sqs"`
	NATS   NATSConfig   `toml:"nats"`
	Mongo  MongoConfig  `toml:"mongo"`
	Leader LeaderConfig `toml:"leader"`

	JWTSecret string `toml:"-"` // always sourced from env, never the file
}

func defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		GRPC:   GRPCConfig{Addr: ":9090"},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Mongo:  MongoConfig{Database: "relayqueue"},
		Leader: LeaderConfig{LockName: "relayqueue:leader"},
	}
}

// Load reads path (if non-empty and present) into defaults(), then applies
// environment overrides. A missing path is not an error: the process can
// run on defaults plus env vars alone.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Dev = DevFromEnv()

	overrideString(&cfg.HTTP.Addr, "RELAYQUEUE_HTTP_ADDR")
	overrideString(&cfg.GRPC.Addr, "RELAYQUEUE_GRPC_ADDR")
	overrideString(&cfg.Redis.Addr, "RELAYQUEUE_REDIS_ADDR")
	overrideString(&cfg.SQS.QueueURL, "RELAYQUEUE_SQS_QUEUE_URL")
	overrideString(&cfg.SQS.Region, "RELAYQUEUE_SQS_REGION")
	overrideString(&cfg.NATS.URL, "RELAYQUEUE_NATS_URL")
	overrideString(&cfg.Mongo.URI, "RELAYQUEUE_MONGO_URI")
	overrideString(&cfg.Mongo.Database, "RELAYQUEUE_MONGO_DATABASE")
	overrideString(&cfg.Leader.LockName, "RELAYQUEUE_LEADER_LOCK_NAME")
	overrideString(&cfg.JWTSecret, "RELAYQUEUE_JWT_SECRET")
}

// DevFromEnv reports whether RELAYQUEUE_DEV is set to a truthy value.
func DevFromEnv() bool {
	v := os.Getenv("RELAYQUEUE_DEV")
	return v == "true" || v == "1"
}

func overrideString(field *string, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		*field = v
	}
}
