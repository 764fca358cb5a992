package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            string
	DBDriver        string
	DBDSN           string
	RedisAddr       string
	LogFile         string
	CartTTL         time.Duration
	CheckoutTimeout time.Duration
	PickupLead      time.Duration
	ShutdownTimeout time.Duration
}

func Load() Config {
	cfg := Config{
		Port:      envOrDefault("PORT", "8080"),
		DBDriver:  envOrDefault("DB_DRIVER", "sqlite"),
		// sqlite file in the project root
		DBDSN:     envOrDefault("DB_DSN", "brewbar.db"),
		// empty keeps carts in memory
		RedisAddr: os.Getenv("REDIS_ADDR"),
		LogFile:   envOrDefault("LOG_FILE", "./brewbar.log"),

		CartTTL:         envDuration("CART_TTL_MINUTES", time.Minute, 24*60),
		CheckoutTimeout: envDuration("CHECKOUT_TIMEOUT_SECONDS", time.Second, 10),
		PickupLead:      envDuration("PICKUP_LEAD_MINUTES", time.Minute, 30),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT_SECONDS", time.Second, 10),
	}
	log.Printf("[config] PORT=%s DB_DRIVER=%s REDIS_ADDR=%q LOG_FILE=%s CHECKOUT_TIMEOUT=%s PICKUP_LEAD=%s",
		cfg.Port, cfg.DBDriver, cfg.RedisAddr, cfg.LogFile, cfg.CheckoutTimeout, cfg.PickupLead)
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration reads a whole number of units. Negative or malformed values
// fall back to def.
func envDuration(key string, unit time.Duration, def int) time.Duration {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		n = def
	}
	return time.Duration(n) * unit
}
