package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	MigrateOnStart         bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	RedisKeyPrefix         string
	AMQPURL                string
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ManagerPIN             string
	TaxRate                string
	DiscountCodes          string
	StockPolicy            string
	MetricsCacheTTLSeconds int
	MetricsWindowDays      int
	Timezone               string
	RequestTimeoutSeconds  int
	LogLevel               string
	BusinessName           string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		MigrateOnStart:         getBool("MIGRATE_ON_START", false),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		RedisKeyPrefix:         getEnv("REDIS_KEY_PREFIX", "fastpos"),
		AMQPURL:                os.Getenv("AMQP_URL"),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		ManagerPIN:             strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		TaxRate:                getEnv("TAX_RATE", "0.19"),
		DiscountCodes:          getEnv("DISCOUNT_CODES", "ABC456=0.20"),
		StockPolicy:            strings.ToLower(getEnv("STOCK_POLICY", "strict")),
		MetricsCacheTTLSeconds: getPositiveInt("METRICS_CACHE_TTL_SECONDS", 30),
		MetricsWindowDays:      getPositiveInt("METRICS_WINDOW_DAYS", 30),
		Timezone:               getEnv("TIMEZONE", "America/Bogota"),
		RequestTimeoutSeconds:  getPositiveInt("REQUEST_TIMEOUT_SECONDS", 8),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		BusinessName:           getEnv("BUSINESS_NAME", "FastPOS"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return b
}
