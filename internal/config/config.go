package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Email    EmailConfig
	Otp      OtpConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

// OtpConfig carries the lifecycle tunables: expiry bounds for issuance,
// the failed-attempt lockout threshold, the reconciliation sweep cadence
// and the webhook fallback lookback window.
type OtpConfig struct {
	DefaultExpiry    time.Duration
	MinExpiry        time.Duration
	MaxExpiry        time.Duration
	LockoutThreshold int
	SweepInterval    time.Duration
	WebhookLookback  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "otpsender"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
		Otp: OtpConfig{
			DefaultExpiry:    getEnvAsDuration("OTP_DEFAULT_EXPIRY", 30*time.Minute),
			MinExpiry:        getEnvAsDuration("OTP_MIN_EXPIRY", 6*time.Minute),
			MaxExpiry:        getEnvAsDuration("OTP_MAX_EXPIRY", 24*time.Hour),
			LockoutThreshold: getEnvAsInt("OTP_LOCKOUT_THRESHOLD", 3),
			SweepInterval:    getEnvAsDuration("OTP_SWEEP_INTERVAL", 60*time.Second),
			WebhookLookback:  getEnvAsDuration("WEBHOOK_LOOKBACK_WINDOW", 2*time.Hour),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required")
	}

	if err := validateOtpConfig(&cfg.Otp); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateOtpConfig enforces sane lifecycle tunables at startup
func validateOtpConfig(otp *OtpConfig) error {
	if otp.MinExpiry <= 0 || otp.MaxExpiry <= 0 {
		return fmt.Errorf("OTP expiry bounds must be positive")
	}
	if otp.MinExpiry > otp.MaxExpiry {
		return fmt.Errorf("OTP_MIN_EXPIRY (%s) must not exceed OTP_MAX_EXPIRY (%s)",
			otp.MinExpiry, otp.MaxExpiry)
	}
	if otp.DefaultExpiry < otp.MinExpiry || otp.DefaultExpiry > otp.MaxExpiry {
		return fmt.Errorf("OTP_DEFAULT_EXPIRY (%s) must be within [%s, %s]",
			otp.DefaultExpiry, otp.MinExpiry, otp.MaxExpiry)
	}
	if otp.LockoutThreshold < 1 {
		return fmt.Errorf("OTP_LOCKOUT_THRESHOLD must be at least 1 (got %d)", otp.LockoutThreshold)
	}
	if otp.SweepInterval < time.Second {
		return fmt.Errorf("OTP_SWEEP_INTERVAL must be at least 1s (got %s)", otp.SweepInterval)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
