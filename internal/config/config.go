package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Username string
	Password string
	Host     string
	Port     string
	DBName   string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type Config struct {
	Port          string
	StoreDriver   string
	HideForbidden bool

	DB          DBConfig
	RedisAddr   string
	RabbitMQURL string
	JWTSecret   string
	// ServiceToken authenticates producers on the internal create route;
	// the route is not mounted when it is empty.
	ServiceToken string

	FanoutWorkers int
	FanoutBuffer  int
	CacheTTL      time.Duration

	ReconcileInterval time.Duration
	ReconcileBatch    int

	LogLevel       string
	LogOutputPaths []string
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// LoadEnv reads .env if present. A missing file is not an error: in
// containers the variables come from the environment directly.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("handler.hide_forbidden", false)
	v.SetDefault("fanout.workers", 8)
	v.SetDefault("fanout.buffer", 1000)
	v.SetDefault("cache.ttl", 2*time.Minute)
	v.SetDefault("reconcile.interval", 5*time.Minute)
	v.SetDefault("reconcile.batch", 100)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_paths", []string{"stdout"})
}

// Load reads app.yaml from dir (if any) on top of the defaults, then layers
// the secrets that only ever come from the environment.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(dir)
	v.SetConfigType("yaml")
	v.SetConfigName("app")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read app config: %w", err)
		}
	}

	cfg := &Config{
		Port:          v.GetString("app.port"),
		StoreDriver:   v.GetString("store.driver"),
		HideForbidden: v.GetBool("handler.hide_forbidden"),

		DB: DBConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     os.Getenv("POSTGRES_PORT"),
			DBName:   os.Getenv("POSTGRES_DB"),
			SSLMode:  os.Getenv("POSTGRES_SSLMODE"),
		},
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitMQURL:  os.Getenv("RABBITMQ_CONN_STRING"),
		JWTSecret:    os.Getenv("ACCESS_SECRET"),
		ServiceToken: os.Getenv("INTERNAL_SERVICE_TOKEN"),

		FanoutWorkers: v.GetInt("fanout.workers"),
		FanoutBuffer:  v.GetInt("fanout.buffer"),
		CacheTTL:      v.GetDuration("cache.ttl"),

		ReconcileInterval: v.GetDuration("reconcile.interval"),
		ReconcileBatch:    v.GetInt("reconcile.batch"),

		LogLevel:       v.GetString("logger.level"),
		LogOutputPaths: v.GetStringSlice("logger.output_paths"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q", c.StoreDriver)
	}
	if c.FanoutWorkers <= 0 {
		return fmt.Errorf("fanout.workers must be positive, got %d", c.FanoutWorkers)
	}
	if c.FanoutBuffer <= 0 {
		return fmt.Errorf("fanout.buffer must be positive, got %d", c.FanoutBuffer)
	}
	if c.ReconcileBatch <= 0 {
		return fmt.Errorf("reconcile.batch must be positive, got %d", c.ReconcileBatch)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("ACCESS_SECRET is not set")
	}
	return nil
}
