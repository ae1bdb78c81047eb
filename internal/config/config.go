// Package config предоставляет структуры и функции для загрузки конфига BFF подписок.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env-default:"local"`
	HTTPServer      `yaml:"http_server"`
	PlatformAPI     `yaml:"platform_api"`
	Stripe          `yaml:"stripe"`
	RedisConnection `yaml:"redis_connection"`
	RabbitMQ        `yaml:"rabbitmq"`
	JWTToken        `yaml:"jwttoken"`
	CircuitBreaker  `yaml:"circuit_breaker"`
	Sessions        `yaml:"sessions"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"5"`
	RateBurst   int           `yaml:"rate_burst" env-default:"10"`
}

// PlatformAPI настройки обращения к API платформы курсов.
// Повторы применяются только к чтению; по умолчанию их нет.
type PlatformAPI struct {
	BaseURL        string        `yaml:"base_url" env:"PLATFORM_API_URL" env-default:"http://localhost:8080"`
	TimeoutAPI     time.Duration `yaml:"timeout" env-default:"10s"`
	ReadRetries    int           `yaml:"read_retries" env-default:"0"`
	ReadRetryDelay time.Duration `yaml:"read_retry_delay" env-default:"500ms"`
	PlansCacheTTL  time.Duration `yaml:"plans_cache_ttl" env-default:"5m"`
}

// Stripe настройки платёжного провайдера.
type Stripe struct {
	SecretKey string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitMQ настройки брокера: исходящие события оплаты и входящие
// уведомления платформы об изменении подписки.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// CircuitBreaker настройки предохранителя вызовов платёжного провайдера.
type CircuitBreaker struct {
	MaxRequests      uint32        `yaml:"max_requests" env-default:"1"`
	Interval         time.Duration `yaml:"interval" env-default:"60s"`
	BreakerTimeout   time.Duration `yaml:"timeout" env-default:"30s"`
	FailureThreshold uint32        `yaml:"failure_threshold" env-default:"5"`
}

// Sessions настройки хранения пользовательских сессий.
type Sessions struct {
	SessionIdle  time.Duration `yaml:"idle" env-default:"30m"`
	SessionSweep time.Duration `yaml:"sweep_interval" env-default:"1m"`
}

// ErrNoJWTSecret: не задан секрет для проверки токенов.
var ErrNoJWTSecret = errors.New("jwt secret key is not set")

// Load читает конфиг из файла и переменных окружения.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("file: %s - does not exist", configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if cfg.JWTSecretKey == "" {
		return nil, ErrNoJWTSecret
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// String печатает конфиг без секретов.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"PlatformAPI:\n"+
			"  BaseURL: %s\n"+
			"  Timeout: %s\n"+
			"  ReadRetries: %d\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"RabbitMQ:\n"+
			"  Enabled: %t\n"+
			"Stripe:\n"+
			"  Configured: %t\n",
		c.Env,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.BaseURL,
		c.TimeoutAPI,
		c.ReadRetries,
		c.AddressRedis,
		c.DB,
		c.RabbitMQURL != "",
		c.SecretKey != "",
	)
}
