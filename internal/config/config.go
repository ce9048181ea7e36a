package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/schoolhub/social-api/pkg/logger"
)

type Config struct {
	Port          string
	MongoURI      string
	DBName        string
	JWTSecret     string
	TokenExpiry   time.Duration
	AllowedOrigin string
}

// LoadConfig reads configuration from .env (when present) and the
// environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logger.Log.Info("No .env file found, using environment variables")
	}

	expiry := 24 * time.Hour
	if v := os.Getenv("TOKEN_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			expiry = d
		}
	}

	return &Config{
		Port:          getEnv("PORT", "8080"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:        getEnv("DB_NAME", "schoolhub"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		TokenExpiry:   expiry,
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
