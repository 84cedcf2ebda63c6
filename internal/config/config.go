package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port           string
	DBConn         string
	LogLevel       string
	JWTSecret      string
	HMACSecret     string
	IdentitySalt   string
	SaltVersion    string
	OwnerPrincipal string
	MomoURL        string

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string
	OpsEmail string

	FeeBps             int64
	MinAmount          int64
	MaxAmount          int64
	DailyLimit         int64
	CollateralRatioBps int64
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DBConn:         getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=ledger sslmode=disable"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:      getEnv("JWT_SECRET", "secret"),
		HMACSecret:     getEnv("HMAC_SECRET", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		IdentitySalt:   getEnv("IDENTITY_SALT", "kwacha-dev-salt"),
		SaltVersion:    getEnv("SALT_VERSION", "v1"),
		OwnerPrincipal: getEnv("OWNER_PRINCIPAL", "treasury"),
		MomoURL:        getEnv("MOMO_URL", ""), // empty selects the in-memory settler
		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getEnv("SMTP_PORT", "587"),
		SMTPUser:       getEnv("SMTP_USER", ""),
		SMTPPass:       getEnv("SMTP_PASS", ""),
		SMTPFrom:       getEnv("SMTP_FROM", "ops@kwachapay.local"),
		OpsEmail:       getEnv("OPS_EMAIL", ""),
	}

	var err error
	if cfg.FeeBps, err = getEnvInt64("FEE_BPS", 50); err != nil {
		return nil, err
	}
	if cfg.MinAmount, err = getEnvInt64("MIN_AMOUNT", 1000); err != nil {
		return nil, err
	}
	if cfg.MaxAmount, err = getEnvInt64("MAX_AMOUNT", 10_000_000_000); err != nil {
		return nil, err
	}
	if cfg.DailyLimit, err = getEnvInt64("DAILY_LIMIT", 50_000_000_000); err != nil {
		return nil, err
	}
	if cfg.CollateralRatioBps, err = getEnvInt64("COLLATERAL_RATIO_BPS", 15000); err != nil {
		return nil, err
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SECRET is required")
	}
	if cfg.IdentitySalt == "" {
		return nil, fmt.Errorf("IDENTITY_SALT is required")
	}
	if cfg.MinAmount >= cfg.MaxAmount {
		return nil, fmt.Errorf("MIN_AMOUNT must be below MAX_AMOUNT")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
