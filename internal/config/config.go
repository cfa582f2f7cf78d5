package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	Port       int
	WorkerPort int

	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Fixed-window budget for the signup/signin endpoints.
	RateLimit    int
	RateWindow   time.Duration
	RateFailOpen bool

	LoanPeriod  time.Duration
	NotifierURL string

	AllowedOrigins []string
	OTLPEndpoint   string

	AdminEmail    string
	AdminPassword string
	AdminName     string
}

func Load() Config {
	// .env is a dev convenience; real deployments set the environment directly.
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)
	dbURL := buildDBURL()

	return Config{
		Env:        env,
		Port:       port,
		WorkerPort: getEnvInt("WORKER_PORT", 8081),
		DBURL:      dbURL,

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:  getEnv("JWT_SECRET", "dev-only-secret"),
		AccessTTL:  getEnvDuration("ACCESS_TTL", 15*time.Minute),
		RefreshTTL: getEnvDuration("REFRESH_TTL", 7*24*time.Hour),

		RateLimit:  getEnvInt("RATE_LIMIT", 5),
		RateWindow: getEnvDuration("RATE_WINDOW", time.Minute),
		// Fail-closed unless explicitly opened: unchecked signup abuse is
		// worse than a transient 429 while the counter store is down.
		RateFailOpen: getEnvBool("RATE_FAIL_OPEN", false),

		LoanPeriod:  getEnvDuration("LOAN_PERIOD", 7*24*time.Hour),
		NotifierURL: getEnv("NOTIFIER_URL", ""),

		AllowedOrigins: []string{getEnv("CORS_ORIGIN", "http://localhost:3000")},
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", ""),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "lendhub")
	pass := getEnv("DB_PASSWORD", "lendhub")
	name := getEnv("DB_NAME", "lendhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			return fallback
		}

		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			return fallback
		}

		return d
	}
	return fallback
}
