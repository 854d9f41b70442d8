package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost               string
	DBUser               string
	DBPassword           string
	DBName               string
	DBPort               string
	AppPort              string
	AppEnv               string
	JWTSecret            string
	PaymentCallbackToken string
	CORSOrigin           string
	InternalServiceKey   string

	// LedgerMaxRetries bounds the optimistic retries of a single ledger mutation.
	LedgerMaxRetries int
	// ConfigCacheSize is the number of pricing config versions kept in memory.
	ConfigCacheSize int
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:               os.Getenv("DB_HOST"),
		DBUser:               os.Getenv("DB_USER"),
		DBPassword:           os.Getenv("DB_PASSWORD"),
		DBName:               os.Getenv("DB_NAME"),
		DBPort:               os.Getenv("DB_PORT"),
		AppPort:              getEnvDefault("APP_PORT", "8080"),
		AppEnv:               os.Getenv("APP_ENV"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		PaymentCallbackToken: os.Getenv("PAYMENT_CALLBACK_TOKEN"),
		CORSOrigin:           getEnvDefault("CORS_ORIGIN", "http://localhost:3000"),
		InternalServiceKey:   os.Getenv("INTERNAL_SECRET_KEY"),
		LedgerMaxRetries:     getEnvInt("LEDGER_MAX_RETRIES", 5),
		ConfigCacheSize:      getEnvInt("CONFIG_CACHE_SIZE", 32),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
