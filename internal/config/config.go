package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                 int
	DBDriver             string // "mysql" or "sqlite"
	DBDSN                string
	JWTSecret            string
	WSAuthGrace          time.Duration
	WSInsecureSkipVerify bool
}

func Load() Config {
	port := 8084
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "mysql"
	}

	grace := 10 * time.Second
	if v := os.Getenv("WS_AUTH_GRACE_SECONDS"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			grace = time.Duration(s) * time.Second
		}
	}

	return Config{
		Port:                 port,
		DBDriver:             driver,
		DBDSN:                os.Getenv("DB_DSN"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		WSAuthGrace:          grace,
		WSInsecureSkipVerify: os.Getenv("WS_INSECURE_SKIP_VERIFY") == "true",
	}
}
