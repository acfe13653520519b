package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string
	LogLevel string

	GRPCPort int
	HTTPPort int

	Postgres Postgres

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers string

	InventoryBaseURL string
	InventoryTimeout time.Duration
	OrderBaseURL     string
	OrderTimeout     time.Duration

	RelayInterval    time.Duration
	RelayBatch       int
	RelayMaxAttempts int

	OtelEndpoint string
}

type Postgres struct {
	Host string
	Port int
	User string
	Pass string
	DB   string
}

// Load reads the process environment, optionally overlaid on a .env file in the
// working directory. Missing keys fall back to local development defaults.
func Load() Config {
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()

	defaults := map[string]any{
		"APP_ENV":            "dev",
		"LOG_LEVEL":          "info",
		"HTTP_PORT":          8080,
		"GRPC_PORT":          8081,
		"POSTGRES_HOST":      "localhost",
		"POSTGRES_PORT":      5432,
		"POSTGRES_USER":      "shopping",
		"POSTGRES_PASSWORD":  "shoppingpassword",
		"POSTGRES_DB":        "shopping_db",
		"REDIS_ADDR":         "",
		"REDIS_PASSWORD":     "",
		"REDIS_DB":           0,
		"KAFKA_BROKERS":      "",
		"INVENTORY_BASE_URL": "http://localhost:8083",
		"INVENTORY_TIMEOUT":  "2s",
		"ORDER_BASE_URL":     "http://localhost:8082",
		"ORDER_TIMEOUT":      "5s",
		"RELAY_INTERVAL":     "5s",
		"RELAY_BATCH":        50,
		"RELAY_MAX_ATTEMPTS": 10,
		"OTEL_ENDPOINT":      "",
	}
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// a broken .env should not be silently half-applied
			panic("config: " + err.Error())
		}
	}
	return v
}

func load(v *viper.Viper) Config {
	return Config{
		AppEnv:   v.GetString("APP_ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),
		HTTPPort: v.GetInt("HTTP_PORT"),
		GRPCPort: v.GetInt("GRPC_PORT"),
		Postgres: Postgres{
			Host: v.GetString("POSTGRES_HOST"),
			Port: v.GetInt("POSTGRES_PORT"),
			User: v.GetString("POSTGRES_USER"),
			Pass: v.GetString("POSTGRES_PASSWORD"),
			DB:   v.GetString("POSTGRES_DB"),
		},
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		KafkaBrokers:     v.GetString("KAFKA_BROKERS"),
		InventoryBaseURL: strings.TrimRight(v.GetString("INVENTORY_BASE_URL"), "/"),
		InventoryTimeout: positive(v.GetDuration("INVENTORY_TIMEOUT"), 2*time.Second),
		OrderBaseURL:     strings.TrimRight(v.GetString("ORDER_BASE_URL"), "/"),
		OrderTimeout:     positive(v.GetDuration("ORDER_TIMEOUT"), 5*time.Second),
		RelayInterval:    positive(v.GetDuration("RELAY_INTERVAL"), 5*time.Second),
		RelayBatch:       v.GetInt("RELAY_BATCH"),
		RelayMaxAttempts: v.GetInt("RELAY_MAX_ATTEMPTS"),
		OtelEndpoint:     v.GetString("OTEL_ENDPOINT"),
	}
}

func positive(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
