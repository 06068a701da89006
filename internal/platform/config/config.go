package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
)

type MySQLConfig struct {
	Addr            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds a go-sql-driver DSN. ClientFoundRows makes RowsAffected report
// matched rows, which the conditional updates rely on.
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = c.Addr
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN()
}

type RedisConfig struct {
	Addr     string
	PoolSize int
}

type Config struct {
	ServiceName  string
	Environment  string
	LogLevel     string
	HTTPAddr     string
	GRPCAddr     string
	StockBackend string
	OrderBackend string
	CacheBackend string
	SeedDemo     bool
	WorkerCount  int
	QueueSize    int
	MySQL        MySQLConfig
	Redis        RedisConfig
}

// Load reads configuration from the environment, after loading .env files
// if any are present.
func Load(files ...string) (Config, error) {
	// .env is optional
	_ = godotenv.Load(files...)

	cfg := Config{
		ServiceName:  getEnv("SERVICE_NAME", "fitfast-stock"),
		Environment:  getEnv("APP_ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:     getEnv("GRPC_ADDR", ":50051"),
		StockBackend: getEnv("STOCK_BACKEND", BackendRedis),
		OrderBackend: getEnv("ORDER_BACKEND", BackendMySQL),
		CacheBackend: getEnv("CACHE_BACKEND", BackendRedis),
		SeedDemo:     getEnvBool("SEED_DEMO", false),
		WorkerCount:  getEnvInt("WORKER_COUNT", 10),
		QueueSize:    getEnvInt("QUEUE_SIZE", 10000),
		MySQL: MySQLConfig{
			Addr:            getEnv("MYSQL_ADDR", "localhost:3306"),
			User:            getEnv("MYSQL_USER", "root"),
			Password:        getEnv("MYSQL_PASSWORD", "root"),
			Database:        getEnv("MYSQL_DATABASE", "fitfast"),
			MaxOpenConns:    getEnvInt("MYSQL_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("MYSQL_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getEnvDuration("MYSQL_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StockBackend {
	case BackendMemory, BackendRedis, BackendMySQL:
	default:
		return fmt.Errorf("unsupported STOCK_BACKEND %q", c.StockBackend)
	}
	switch c.OrderBackend {
	case BackendMemory, BackendMySQL:
	default:
		return fmt.Errorf("unsupported ORDER_BACKEND %q", c.OrderBackend)
	}
	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("QUEUE_SIZE must be positive, got %d", c.QueueSize)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// UsesRedis reports whether any backend needs a Redis client.
func (c Config) UsesRedis() bool {
	return c.StockBackend == BackendRedis || c.CacheBackend == BackendRedis
}

// UsesMySQL reports whether any backend needs a MySQL connection.
func (c Config) UsesMySQL() bool {
	return c.StockBackend == BackendMySQL || c.OrderBackend == BackendMySQL
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
