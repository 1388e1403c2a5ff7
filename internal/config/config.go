package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type DB struct {
	URL             string        `env:"DATABASE_URL,required,notEmpty"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
	MigrationsPath  string        `env:"MIGRATIONS_PATH" envDefault:"file://db/migrations"`
}

type HTTP struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Kafka is optional: with no bootstrap servers, report events are dropped.
type Kafka struct {
	BootstrapServers  string        `env:"KAFKA_BOOTSTRAP_SERVERS"`
	ReportEventsTopic string        `env:"KAFKA_REPORT_EVENTS_TOPIC" envDefault:"road-report-events"`
	PublishTimeout    time.Duration `env:"KAFKA_PUBLISH_TIMEOUT" envDefault:"10s"`
}

type Config struct {
	DB       DB
	HTTP     HTTP
	Kafka    Kafka
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
