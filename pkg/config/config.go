package config

import (
	"log"
	"os"
	"time"

	"github.com/MateusMoreirac/Podscrebr/pkg/utils"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string  `yaml:"env" env:"ENV" env-default:"local"`
	Log      Log     `yaml:"log"`
	HTTP     HTTP    `yaml:"http"`
	Postgres PG      `yaml:"postgres"`
	Redis    Redis   `yaml:"redis"`
	Kafka    Kafka   `yaml:"kafka"`
	Stock    Stock   `yaml:"stock"`
	Cart     Cart    `yaml:"cart"`
	Handoff  Handoff `yaml:"handoff"`
	Limiter  Limiter `yaml:"limiter"`
	Tracing  Tracing `yaml:"tracing"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL            string `yaml:"url" env:"DB_URL"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
}

type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type Kafka struct {
	Brokers      []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	OrderTopic   string   `yaml:"order_topic" env:"KAFKA_ORDER_TOPIC" env-default:"order_events"`
	ProductTopic string   `yaml:"product_topic" env:"KAFKA_PRODUCT_TOPIC" env-default:"product_events"`
	ConsumerGID  string   `yaml:"consumer_group" env:"KAFKA_CONSUMER_GROUP" env-default:"storefront-group"`
}

// Stock selects the authoritative inventory store: postgres, redis or memory.
type Stock struct {
	Backend     string        `yaml:"backend" env:"STOCK_BACKEND" env-default:"postgres"`
	Concurrency int           `yaml:"concurrency" env-default:"8"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests" env-default:"3"`
	Interval     time.Duration `yaml:"interval" env-default:"5s"`
	Timeout      time.Duration `yaml:"timeout" env-default:"10s"`
	MinRequests  uint32        `yaml:"min_requests" env-default:"5"`
	FailureRatio float64       `yaml:"failure_ratio" env-default:"0.6"`
}

type Cart struct {
	TTL time.Duration `yaml:"ttl" env:"CART_TTL" env-default:"168h"`
}

type Handoff struct {
	StoreName string `yaml:"store_name" env-default:"Podscre"`
	Phone     string `yaml:"phone" env:"HANDOFF_PHONE"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"20"`
	Expiration time.Duration `yaml:"expiration" env-default:"5s"`
}

type Tracing struct {
	Endpoint    string  `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
	Version     string  `yaml:"version" env:"SERVICE_VERSION" env-default:"dev"`
	SampleRatio float64 `yaml:"sample_ratio" env:"TRACE_SAMPLE_RATIO" env-default:"1"`
}

func (c *Config) TracerConfig() utils.TracerConfig {
	return utils.TracerConfig{
		ServiceName: serviceName,
		Version:     c.Tracing.Version,
		Env:         c.Env,
		Store:       c.Handoff.StoreName,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

func MustLoad() *Config {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}
