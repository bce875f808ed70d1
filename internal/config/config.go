package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Upstream  UpstreamConfig
	Redis     RedisConfig
	MongoDB   MongoDBConfig
	SSO       SSOConfig
	Session   SessionConfig
	Logout    LogoutConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type UpstreamConfig struct {
	// BaseURL of the billing REST API the gateway fronts.
	BaseURL string
	Timeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type SSOConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
}

type SessionConfig struct {
	// CookieSecret signs the session-ID cookie.
	CookieSecret string
	CookieName   string
	CookieTTL    time.Duration
	// StoreTTL bounds persisted session keys in Redis.
	StoreTTL time.Duration
	// FetchTimeout bounds the background profile fetch.
	FetchTimeout time.Duration
}

type LogoutConfig struct {
	// RedirectURL is where navigation lands after the teardown.
	RedirectURL string
	// NavDelay is the fixed pause before the final navigation so the
	// asynchronous bucket/collection purges can progress.
	NavDelay time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("UPSTREAM_TIMEOUT", 15)
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("SESSION_COOKIE_NAME", "ledgerline_session")
	viper.SetDefault("SESSION_COOKIE_TTL", 10080)
	viper.SetDefault("SESSION_STORE_TTL", 10080)
	viper.SetDefault("SESSION_FETCH_TIMEOUT", 10)
	viper.SetDefault("LOGOUT_REDIRECT_URL", "/login")
	viper.SetDefault("LOGOUT_NAV_DELAY_MS", 100)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL: getEnvOrPanic("UPSTREAM_API_URL"),
			Timeout: time.Duration(viper.GetInt("UPSTREAM_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		SSO: SSOConfig{
			IssuerURL:    viper.GetString("SSO_ISSUER_URL"),
			ClientID:     viper.GetString("SSO_CLIENT_ID"),
			ClientSecret: viper.GetString("SSO_CLIENT_SECRET"),
		},
		Session: SessionConfig{
			CookieSecret: os.Getenv("SESSION_COOKIE_SECRET"),
			CookieName:   viper.GetString("SESSION_COOKIE_NAME"),
			CookieTTL:    time.Duration(viper.GetInt("SESSION_COOKIE_TTL")) * time.Minute,
			StoreTTL:     time.Duration(viper.GetInt("SESSION_STORE_TTL")) * time.Minute,
			FetchTimeout: time.Duration(viper.GetInt("SESSION_FETCH_TIMEOUT")) * time.Second,
		},
		Logout: LogoutConfig{
			RedirectURL: viper.GetString("LOGOUT_REDIRECT_URL"),
			NavDelay:    time.Duration(viper.GetInt("LOGOUT_NAV_DELAY_MS")) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Basic validation
	if cfg.Session.CookieSecret == "" {
		log.Println("WARNING: SESSION_COOKIE_SECRET is not set; set a secure value in production")
	}

	return cfg, nil
}

// IsDebug reports whether the gateway runs a debug/development build, which
// enables the logout GC hint.
func (c *Config) IsDebug() bool {
	return c.Server.Environment == "development"
}

func getEnvOrPanic(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("environment variable %s is required", key)
	}
	return v
}
