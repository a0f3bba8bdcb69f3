// Package config loads the service configuration from the environment,
// reading a .env file first when one is present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Options holds every setting the API server reads at start-up.
type Options struct {
	Port     string
	BaseURL  string
	LogLevel string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	// RedisURL selects the shared settings cache; empty keeps it in memory.
	RedisURL         string
	SettingsCacheTTL time.Duration

	// AWS settings; an empty bucket stores uploads on local disk.
	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	AWSBucket    string
	UploadDir    string

	JWTSecret string
	TokenTTL  time.Duration
	// AppKey derives the key secret settings are encrypted with.
	AppKey string

	FirebaseServiceAccountPath string
}

// Load reads .env (if any) and the process environment.
func Load() (*Options, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	opts := &Options{
		Port:     getEnv("PORT", "8080"),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisURL: os.Getenv("REDIS_URL"),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSBucket:    os.Getenv("AWS_S3_BUCKET"),
		UploadDir:    getEnv("UPLOAD_DIR", "./uploads"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		AppKey:    os.Getenv("APP_KEY"),

		FirebaseServiceAccountPath: os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"),
	}

	var err error
	if opts.SettingsCacheTTL, err = getDuration("SETTINGS_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if opts.TokenTTL, err = getDuration("TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}

	if opts.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if opts.AppKey == "" {
		return nil, fmt.Errorf("APP_KEY is required")
	}
	return opts, nil
}

// DSN is the PostgreSQL connection string.
func (o *Options) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		o.DBHost, o.DBUser, o.DBPassword, o.DBName, o.DBPort,
	)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getDuration accepts Go durations ("90m") or plain seconds ("3600").
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
