package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel string   `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	MySQL    MySQL    `yaml:"mysql"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Outbox   Outbox   `yaml:"outbox"`
	Auth     Auth     `yaml:"auth"`
	Checkout Checkout `yaml:"checkout"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"5s"`
}

type GRPC struct {
	Addr           string        `yaml:"addr" env:"GRPC_ADDR" env-default:":50051"`
	HealthInterval time.Duration `yaml:"health_interval" env-default:"5s"`
}

type MySQL struct {
	DSN             string        `yaml:"dsn" env:"MYSQL_DSN" env-default:"root:root@tcp(localhost:3306)/storefront?parseTime=true"`
	MaxOpenConns    int           `yaml:"max_open_conns" env-default:"50"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env-default:"25"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env-default:"5m"`
	MigrateOnStart  bool          `yaml:"migrate_on_start" env:"MYSQL_MIGRATE" env-default:"true"`
}

type Redis struct {
	Addr            string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	PoolSize        int           `yaml:"pool_size" env-default:"100"`
	IdempotencyTTL  time.Duration `yaml:"idempotency_ttl" env-default:"24h"`
	ProductCacheTTL time.Duration `yaml:"product_cache_ttl" env-default:"10m"`
}

type Kafka struct {
	Brokers    []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	OrderTopic string   `yaml:"order_topic" env:"KAFKA_ORDER_TOPIC" env-default:"orders.events"`
	UserTopic  string   `yaml:"user_topic" env:"KAFKA_USER_TOPIC" env-default:"users.registered"`
	GroupID    string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"storefront-wallets"`
}

type Outbox struct {
	Workers   int           `yaml:"workers" env:"OUTBOX_WORKERS" env-default:"2"`
	BatchSize int           `yaml:"batch_size" env-default:"50"`
	Interval  time.Duration `yaml:"interval" env-default:"500ms"`

	PublishTimeout time.Duration `yaml:"publish_timeout" env-default:"5s"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

type Checkout struct {
	TxTimeout time.Duration `yaml:"tx_timeout" env-default:"5s"`
}

// Load reads the YAML file at path when it exists and overlays environment
// variables; without a file only the environment and defaults apply.
func Load(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required")
	}
	return &cfg, nil
}

func MustLoad() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/local.yaml"
	}

	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
