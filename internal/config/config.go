// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// セッションの保存先。
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Identity token
	FirebaseProjectID  string
	FirebaseAPIKey     string
	FirebaseAuthDomain string
	JWKSURL            string
	TokenIssuer        string
	VerifyTimeout      time.Duration
	JWKSCacheTTL       time.Duration

	// Storage
	LogDirectory string
	StaticDir    string

	// Session
	SessionSecret          string // 空の場合は起動時に生成する
	SessionMaxAge          int
	SessionEnforceExpiry   bool
	SessionCleanupInterval time.Duration
	SessionBackend         string
	RedisURL               string
	RedisKeyPrefix         string
	DatabaseURL            string

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitLogin int
	RateLimitLog   int

	// Server
	ServerPort        string
	BaseURL           string
	TrustProxyHeaders bool
	MetricsEnabled    bool

	// Logging
	LogLevel string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	if cfg.FirebaseProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}

	cfg.SessionBackend = strings.ToLower(getEnvString("SESSION_BACKEND", BackendMemory))
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	switch cfg.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported SESSION_BACKEND: %q (want memory, redis or postgres)", cfg.SessionBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FirebaseAPIKey = getEnvString("FIREBASE_API_KEY", "")
	cfg.FirebaseAuthDomain = getEnvString("FIREBASE_AUTH_DOMAIN", "")
	cfg.JWKSURL = getEnvString("ID_TOKEN_JWKS_URL", "")
	cfg.TokenIssuer = getEnvString("ID_TOKEN_ISSUER", "")
	cfg.VerifyTimeout = getEnvDuration("VERIFY_TIMEOUT", 5*time.Second)
	cfg.JWKSCacheTTL = getEnvDuration("JWKS_CACHE_TTL", time.Hour)
	cfg.LogDirectory = getEnvString("LOG_DIRECTORY", ".")
	cfg.StaticDir = getEnvString("STATIC_DIR", "static")
	cfg.SessionSecret = getEnvString("SESSION_SECRET", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionEnforceExpiry = getEnvBool("SESSION_ENFORCE_EXPIRY", false)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute)
	cfg.RedisKeyPrefix = getEnvString("REDIS_KEY_PREFIX", "loggate:session")
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.RateLimitLog = getEnvInt("RATE_LIMIT_LOG", 600)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = strings.TrimRight(getEnvString("BASE_URL", ""), "/")
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes, got %d", len(cfg.SessionSecret))
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
