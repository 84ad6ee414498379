package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from environment variables. A .env file in
// the working directory is loaded first when present; real environment
// variables win over the file. Unset or malformed variables leave the
// current value untouched.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString(&config.EndpointAddr, "ENDPOINT_ADDR")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.RedisAddr, "REDIS_ADDR")
	setString(&config.AccessSecret, "ACCESS_SECRET")
	setString(&config.RefreshSecret, "REFRESH_SECRET")
	setString(&config.PublicBaseURL, "PUBLIC_BASE_URL")

	setDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_VALIDITY_DURATION")
	setDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_VALIDITY_DURATION")
	setDuration(&config.LockoutDuration, "LOCKOUT_DURATION")
	setDuration(&config.MinResponseLatency, "MIN_RESPONSE_LATENCY")
	setDuration(&config.LoginRateWindow, "LOGIN_RATE_WINDOW")

	setInt(&config.BcryptCost, "BCRYPT_COST")
	setInt(&config.LockoutThreshold, "LOCKOUT_THRESHOLD")
	setInt64(&config.LoginRateMax, "LOGIN_RATE_MAX")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
