package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/vertabase/verta-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// Config holds application configuration values
type Config struct {
	ServerPort      string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
	DataDir         string
	DBFile          string
	AdminEmail      string
	AdminPassword   string
	CORSOrigins     []string
	RateLimitPerMin int
}

// LoadConfig loads configuration from environment variables.
// It uses a .env file for local development if present (ignores it for production).
func LoadConfig() (*Config, error) {
	customLog.Println("Loading configuration from environment variables...")

	// Attempt to load .env file if in development environment (skip in production)
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			customLog.Warnf("Warning: Error loading .env file: %v", err)
		}
	}

	// Read values from environment variables, providing defaults where appropriate
	port := getEnv("SERVER_PORT", ":8080") // Default to :8080
	jwtSecret := getEnv("JWT_SECRET", "")  // No sensible default for secret!
	accessMinutes := getEnvInt("ACCESS_TOKEN_MINUTES", 15)
	refreshDays := getEnvInt("REFRESH_TOKEN_DAYS", 30)
	bcryptCost := getEnvInt("BCRYPT_COST", 12)
	dataDir := getEnv("DATA_DIRECTORY", "data")
	dbFile := getEnv("DATABASE_FILE", "verta.db")
	adminEmail := getEnv("ADMIN_EMAIL", "")
	adminPassword := getEnv("ADMIN_PASSWORD", "")
	corsOrigins := getEnv("CORS_ORIGINS", "*")
	rateLimit := getEnvInt("RATE_LIMIT_PER_MINUTE", 300)

	// --- Validation and Parsing ---
	// Critical: Ensure JWT Secret is set
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable must be set")
	}
	if jwtSecret == "!!replace_this_with_a_real_secret_key!!" {
		customLog.Warnln("WARNING: JWT_SECRET is set to the default placeholder!")
	}

	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		customLog.Warnf("Invalid BCRYPT_COST %d. Using default 12.", bcryptCost)
		bcryptCost = 12
	}

	// Return final Config struct
	cfg := &Config{
		ServerPort:      port,
		JWTSecret:       jwtSecret,
		AccessTokenTTL:  time.Duration(accessMinutes) * time.Minute,
		RefreshTokenTTL: time.Duration(refreshDays) * 24 * time.Hour,
		BcryptCost:      bcryptCost,
		DataDir:         dataDir,
		DBFile:          dbFile,
		AdminEmail:      adminEmail,
		AdminPassword:   adminPassword,
		CORSOrigins:     splitOrigins(corsOrigins),
		RateLimitPerMin: rateLimit,
	}

	customLog.Printf("Configuration loaded successfully. Port: %s, Access TTL: %v, Refresh TTL: %v",
		cfg.ServerPort, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	return cfg, nil
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt reads an integer environment variable, falling back on parse
// failure or non-positive values.
func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		customLog.Warnf("Invalid %s '%s'. Using default %d. Error: %v", key, raw, fallback, err)
		return fallback
	}
	return n
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}
