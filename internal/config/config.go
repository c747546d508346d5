package points

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	BusNone  = "none"
	BusKafka = "kafka"
	BusNats  = "nats"
)

type Config struct {
	Env      string
	HTTPPort string
	GRPCPort string

	Storage    string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	CacheURL  string
	CacheUser string
	CachePwd  string

	BusProvider string
	KafkaURL    string
	KafkaPort   string
	NatsURL     string

	RabbitURL      string
	RabbitPort     string
	RabbitUser     string
	RabbitPassword string

	ChargesCount int
	UsesCount    int

	OtelEndpoint string
}

// New reads the environment (and .env when present) and validates it.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:            os.Getenv("POINTS_ENV"),
		HTTPPort:       os.Getenv("POINTS_HTTP_PORT"),
		GRPCPort:       os.Getenv("POINTS_GRPC_PORT"),
		Storage:        os.Getenv("POINTS_STORAGE"),
		DBHost:         os.Getenv("POINTS_DB"),
		DBPort:         os.Getenv("POINTS_DB_PORT"),
		DBUser:         os.Getenv("POINTS_DB_USER"),
		DBPassword:     os.Getenv("POINTS_DB_PASSWORD"),
		DBName:         os.Getenv("POINTS_DB_BASE"),
		CacheURL:       os.Getenv("POINTS_CACHE_URL"),
		CacheUser:      os.Getenv("POINTS_CACHE_USER"),
		CachePwd:       os.Getenv("POINTS_CACHE_PWD"),
		BusProvider:    os.Getenv("POINTS_BUS_PROVIDER"),
		KafkaURL:       os.Getenv("KAFKA_URL"),
		KafkaPort:      os.Getenv("KAFKA_PORT"),
		NatsURL:        os.Getenv("NATS_URL"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		RabbitPort:     os.Getenv("RABBIT_PORT"),
		RabbitUser:     os.Getenv("RABBIT_USER"),
		RabbitPassword: os.Getenv("RABBIT_PASSWORD"),
		ChargesCount:   getEnvInt("POINTS_CHARGES_COUNT", 5),
		UsesCount:      getEnvInt("POINTS_USES_COUNT", 5),
		OtelEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.HTTPPort == "" {
		return nil, fmt.Errorf("env POINTS_HTTP_PORT is not set")
	}

	// storage
	if cfg.Storage == "" {
		cfg.Storage = StorageMemory
	}
	switch cfg.Storage {
	case StorageMemory:
	case StoragePostgres:
		for _, env := range []struct{ key, val string }{
			{"POINTS_DB", cfg.DBHost},
			{"POINTS_DB_PORT", cfg.DBPort},
			{"POINTS_DB_USER", cfg.DBUser},
			{"POINTS_DB_PASSWORD", cfg.DBPassword},
			{"POINTS_DB_BASE", cfg.DBName},
		} {
			if env.val == "" {
				return nil, fmt.Errorf("env %s is not set", env.key)
			}
		}
	default:
		return nil, fmt.Errorf("invalid storage %q, must be 'memory' or 'postgres'", cfg.Storage)
	}

	// bus
	if cfg.BusProvider == "" {
		cfg.BusProvider = BusNone
	}
	switch cfg.BusProvider {
	case BusNone:
	case BusKafka:
		if cfg.KafkaURL == "" {
			return nil, fmt.Errorf("env KAFKA_URL is not set")
		}
		if cfg.KafkaPort == "" {
			return nil, fmt.Errorf("env KAFKA_PORT is not set")
		}
	case BusNats:
		if cfg.NatsURL == "" {
			return nil, fmt.Errorf("env NATS_URL is not set")
		}
	default:
		return nil, fmt.Errorf("invalid bus provider %q, must be 'none', 'kafka' or 'nats'", cfg.BusProvider)
	}

	// rabbitmq: включается через RABBIT_URL
	if cfg.RabbitURL != "" {
		if cfg.RabbitPort == "" {
			return nil, fmt.Errorf("env RABBIT_PORT is not set")
		}
		if cfg.RabbitUser == "" {
			return nil, fmt.Errorf("env RABBIT_USER is not set")
		}
		if cfg.RabbitPassword == "" {
			return nil, fmt.Errorf("env RABBIT_PASSWORD is not set")
		}
	}

	if cfg.ChargesCount < 1 {
		cfg.ChargesCount = 1
	}
	if cfg.UsesCount < 1 {
		cfg.UsesCount = 1
	}
	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) HTTPAddr() string {
	return ":" + c.HTTPPort
}

// GRPCAddr returns false when the gRPC server is disabled.
func (c *Config) GRPCAddr() (string, bool) {
	if c.GRPCPort == "" {
		return "", false
	}
	return ":" + c.GRPCPort, true
}

func (c *Config) KafkaAddr() string {
	return c.KafkaURL + ":" + c.KafkaPort
}

func (c *Config) RabbitDSN() string {
	return "amqp://" + c.RabbitUser + ":" + c.RabbitPassword + "@" + c.RabbitURL + ":" + c.RabbitPort + "/points"
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}
