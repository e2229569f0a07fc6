/**
 * @description
 * This package handles the configuration management for the bank API. It uses
 * Viper to read settings from environment variables or an optional .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading and env binding.
 */
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the service.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	JWTSigningKey        string        `mapstructure:"JWT_SIGNING_KEY"`
	AccessTokenLifetime  time.Duration `mapstructure:"ACCESS_TOKEN_LIFETIME"`
	RefreshTokenLifetime time.Duration `mapstructure:"REFRESH_TOKEN_LIFETIME"`
	CookiePath           string        `mapstructure:"COOKIE_PATH"`
	CookieSecure         bool          `mapstructure:"COOKIE_SECURE"`
	CookieSameSite       string        `mapstructure:"COOKIE_SAMESITE"`

	LoginAttempts           int           `mapstructure:"LOGIN_ATTEMPTS"`
	LockoutDuration         time.Duration `mapstructure:"LOCKOUT_DURATION"`
	OTPExpiration           time.Duration `mapstructure:"OTP_EXPIRATION"`
	LoginRateLimitPerMinute int           `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	RedisRateLimitPrefix    string        `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`

	BankCode   string `mapstructure:"BANK_CODE"`
	BranchCode string `mapstructure:"BRANCH_CODE"`
	SiteName   string `mapstructure:"SITE_NAME"`

	StorageUploadURL  string        `mapstructure:"STORAGE_UPLOAD_URL"`
	StorageAPIKey     string        `mapstructure:"STORAGE_API_KEY"`
	UploadTempDir     string        `mapstructure:"UPLOAD_TEMP_DIR"`
	UploadMaxRetries  int           `mapstructure:"UPLOAD_MAX_RETRIES"`
	UploadRetryDelay  time.Duration `mapstructure:"UPLOAD_RETRY_DELAY"`

	CORSAllowedOrigins  string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	OTPCleanupSchedule  string `mapstructure:"OTP_CLEANUP_SCHEDULE"`
	UploadSweepSchedule string `mapstructure:"UPLOAD_SWEEP_SCHEDULE"`
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// LoadConfig reads configuration from the environment and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ACCESS_TOKEN_LIFETIME", 30*time.Minute)
	viper.SetDefault("REFRESH_TOKEN_LIFETIME", 24*time.Hour)
	viper.SetDefault("COOKIE_PATH", "/")
	viper.SetDefault("COOKIE_SECURE", true)
	viper.SetDefault("COOKIE_SAMESITE", "lax")
	viper.SetDefault("LOGIN_ATTEMPTS", 3)
	viper.SetDefault("LOCKOUT_DURATION", time.Minute)
	viper.SetDefault("OTP_EXPIRATION", time.Minute)
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "bank_api:rate_limit")
	viper.SetDefault("BANK_CODE", "0123")
	viper.SetDefault("BRANCH_CODE", "0001")
	viper.SetDefault("SITE_NAME", "OneGen Bank")
	viper.SetDefault("UPLOAD_TEMP_DIR", "tmp/uploads")
	viper.SetDefault("UPLOAD_MAX_RETRIES", 3)
	viper.SetDefault("UPLOAD_RETRY_DELAY", time.Minute)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("OTP_CLEANUP_SCHEDULE", "@every 10m")
	viper.SetDefault("UPLOAD_SWEEP_SCHEDULE", "@hourly")

	for _, key := range []string{
		"SERVER_PORT", "DATABASE_URL", "REDIS_URL", "RABBITMQ_URL",
		"JWT_SIGNING_KEY", "ACCESS_TOKEN_LIFETIME", "REFRESH_TOKEN_LIFETIME",
		"COOKIE_PATH", "COOKIE_SECURE", "COOKIE_SAMESITE",
		"LOGIN_ATTEMPTS", "LOCKOUT_DURATION", "OTP_EXPIRATION",
		"LOGIN_RATE_LIMIT_PER_MINUTE", "REDIS_RATE_LIMIT_PREFIX",
		"BANK_CODE", "BRANCH_CODE", "SITE_NAME",
		"STORAGE_UPLOAD_URL", "STORAGE_API_KEY", "UPLOAD_TEMP_DIR",
		"UPLOAD_MAX_RETRIES", "UPLOAD_RETRY_DELAY",
		"CORS_ALLOWED_ORIGINS", "OTP_CLEANUP_SCHEDULE", "UPLOAD_SWEEP_SCHEDULE",
	} {
		_ = viper.BindEnv(key)
	}
	// Platforms like Railway/Render inject PORT.
	_ = viper.BindEnv("SERVER_PORT", "SERVER_PORT", "PORT")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"error reading config file\" err=%v", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if strings.TrimSpace(config.DatabaseURL) == "" {
		return config, fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(config.JWTSigningKey) == "" {
		return config, fmt.Errorf("JWT_SIGNING_KEY is required")
	}
	if config.LoginAttempts < 1 {
		return config, fmt.Errorf("LOGIN_ATTEMPTS must be at least 1, got %d", config.LoginAttempts)
	}
	if config.UploadMaxRetries < 0 {
		config.UploadMaxRetries = 0
	}

	return config, nil
}
