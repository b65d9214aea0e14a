package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type SessionConfig struct {
	// Lifetime of the session JWT handed out after a successful sign-in
	TokenDuration time.Duration
	Issuer        string
	Audience      string
}

type RedisSettings struct {
	Address  string
	Password string
	DB       int
}

type AuthConfig struct {
	// Upper bound for every outbound call made during one authentication attempt
	// (token exchange, UserInfo fetch, eager user save).
	CallTimeout time.Duration
	// Local account used as the acting user when a new account is saved eagerly
	AdminUsername string
	// Size and TTL of the discovered issuer cache
	ProviderCacheSize int
	ProviderCacheTTL  time.Duration
	StateExpiry       time.Duration
}

type Config struct {
	// Server port
	Port     string
	AppEnv   string
	LogLevel string

	JWTSecret       string
	StateCookieName string
	Session         SessionConfig
	Auth            AuthConfig

	// memory, redis or sql (DATABASE_DRIVER picks sqlite3 or postgres)
	UserStore      string
	DatabaseDriver string
	// host=<host> port=<port> user=<user> dbname=<database> password=<pass> sslmode=<enable/disable>
	DatabaseSettings string
	RedisSettings    RedisSettings

	// Per-provider OpenID settings, read lazily for every attempt
	Providers ProviderSource
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STATE_COOKIE_NAME", "openid_state")
	v.SetDefault("SESSION_TOKEN_DURATION", time.Hour)
	v.SetDefault("SESSION_ISSUER", "scs-openid-bridge")
	v.SetDefault("SESSION_AUDIENCE", "scs-client-app")
	v.SetDefault("AUTH_CALL_TIMEOUT", 10*time.Second)
	v.SetDefault("AUTH_ADMIN_USERNAME", "admin")
	v.SetDefault("AUTH_PROVIDER_CACHE_SIZE", 32)
	v.SetDefault("AUTH_PROVIDER_CACHE_TTL", time.Hour)
	v.SetDefault("AUTH_STATE_EXPIRY", 10*time.Minute)
	v.SetDefault("USER_STORE", "memory")

	jwtSecret := v.GetString("JWT_SECRET")
	if jwtSecret == "" || jwtSecret == "a_very_secret_key_change_me" {
		log.Println("Warning: Using a weak JWT secret. Set JWT_SECRET environment variable or in config file.")
		if jwtSecret == "" {
			jwtSecret = "a_very_secret_key_change_me"
		}
	}

	callTimeout := v.GetDuration("AUTH_CALL_TIMEOUT")
	if callTimeout <= 0 {
		log.Printf("Invalid AUTH_CALL_TIMEOUT '%s', defaulting to 10s", v.GetString("AUTH_CALL_TIMEOUT"))
		callTimeout = 10 * time.Second
	}

	// Database Configuration
	databaseDriver := v.GetString("DATABASE_DRIVER")
	var databaseSettings string
	switch databaseDriver {
	case "sqlite3":
		databaseSettings = "file:users?mode=memory&cache=shared&_fk=1"
		if path := v.GetString("DB_PATH"); path != "" {
			databaseSettings = fmt.Sprintf("file:%s?_fk=1", path)
		}
	case "postgres":
		databaseSettings = fmt.Sprintf(
			"host=%s port=%d user=%s dbname=%s password=%s sslmode=%s",
			v.GetString("DB_HOST"),
			v.GetInt("DB_PORT"),
			v.GetString("DB_USER"),
			v.GetString("DB_NAME"),
			v.GetString("DB_PASS"),
			v.GetString("DB_SSL_MODE"),
		)
	}

	return &Config{
		Port:            v.GetString("APP_PORT"),
		AppEnv:          v.GetString("APP_ENV"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		JWTSecret:       jwtSecret,
		StateCookieName: v.GetString("STATE_COOKIE_NAME"),
		Session: SessionConfig{
			TokenDuration: v.GetDuration("SESSION_TOKEN_DURATION"),
			Issuer:        v.GetString("SESSION_ISSUER"),
			Audience:      v.GetString("SESSION_AUDIENCE"),
		},
		Auth: AuthConfig{
			CallTimeout:       callTimeout,
			AdminUsername:     v.GetString("AUTH_ADMIN_USERNAME"),
			ProviderCacheSize: v.GetInt("AUTH_PROVIDER_CACHE_SIZE"),
			ProviderCacheTTL:  v.GetDuration("AUTH_PROVIDER_CACHE_TTL"),
			StateExpiry:       v.GetDuration("AUTH_STATE_EXPIRY"),
		},
		UserStore:        v.GetString("USER_STORE"),
		DatabaseDriver:   databaseDriver,
		DatabaseSettings: databaseSettings,
		RedisSettings: RedisSettings{
			Address:  v.GetString("REDIS_ADDRESS"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Providers: NewViperProviderSource(v),
	}, nil
}
