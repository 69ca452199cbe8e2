// Package config reads the service configuration from the environment.
//
// A .env file in the working directory is loaded first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/pluk/internal/auth"
	"github.com/sakif/pluk/internal/collab"
	"github.com/sakif/pluk/internal/directory"
	"github.com/sakif/pluk/internal/realtime"
	"github.com/sakif/pluk/internal/recovery"
	"github.com/sakif/pluk/internal/session"
)

// Plant storage backends.
const (
	BackendSession = "session" // in-process, lost on restart
	BackendRemote  = "remote"  // sqlite documents with a change feed
)

// Account directories.
const (
	IdentityLocal  = "local"
	IdentityRemote = "remote"
)

type Config struct {
	Port     int
	LogLevel slog.Level

	Backend string
	DBPath  string

	// Redis carries the change feed between instances. Empty means a
	// single-process hub.
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisChannelPrefix string

	Identity        string
	IdentityBaseURL string
	IdentityAPIKey  string

	JWTSecret     string
	TokenTTL      time.Duration
	SecureCookies bool

	SessionIdleTimeout  time.Duration
	RecoveryIdleTimeout time.Duration

	WeatherBaseURL string
	OverpassURL    string
	SearchRadius   int
	CollabTimeout  time.Duration
	IdentifyDelay  time.Duration
}

// Load reads .env (if any) and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := Config{
		Port:     p.int("PORT", 8080),
		LogLevel: p.level("LOG_LEVEL", slog.LevelInfo),

		Backend: strings.ToLower(p.str("PLUK_BACKEND", BackendSession)),
		DBPath:  p.str("DB_PATH", "data/pluk.db"),

		RedisAddr:          p.str("REDIS_ADDR", ""),
		RedisPassword:      p.str("REDIS_PASSWORD", ""),
		RedisDB:            p.int("REDIS_DB", 0),
		RedisChannelPrefix: p.str("REDIS_CHANNEL_PREFIX", realtime.DefaultChannelPrefix),

		Identity:        strings.ToLower(p.str("PLUK_IDENTITY", IdentityLocal)),
		IdentityBaseURL: p.str("PLUK_IDENTITY_URL", directory.DefaultIdentityBaseURL),
		IdentityAPIKey:  p.str("PLUK_IDENTITY_API_KEY", ""),

		JWTSecret:     p.str("JWT_SECRET", ""),
		TokenTTL:      p.duration("TOKEN_TTL", auth.DefaultTokenTTL),
		SecureCookies: p.bool("SECURE_COOKIES", false),

		SessionIdleTimeout:  p.duration("SESSION_IDLE_TIMEOUT", session.DefaultIdleTimeout),
		RecoveryIdleTimeout: p.duration("RECOVERY_IDLE_TIMEOUT", recovery.DefaultIdleTimeout),

		WeatherBaseURL: p.str("WEATHER_BASE_URL", collab.DefaultWeatherBaseURL),
		OverpassURL:    p.str("OVERPASS_URL", collab.DefaultOverpassURL),
		SearchRadius:   p.int("STORE_SEARCH_RADIUS", collab.DefaultSearchRadius),
		CollabTimeout:  p.duration("COLLAB_TIMEOUT", collab.DefaultTimeout),
		IdentifyDelay:  p.duration("IDENTIFY_DELAY", collab.DefaultIdentifyDelay),
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the combinations FromEnv cannot check field by field.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	switch c.Backend {
	case BackendSession, BackendRemote:
	default:
		errs = append(errs, fmt.Errorf("config: PLUK_BACKEND must be %q or %q, got %q", BackendSession, BackendRemote, c.Backend))
	}
	switch c.Identity {
	case IdentityLocal:
	case IdentityRemote:
		if c.IdentityAPIKey == "" {
			errs = append(errs, errors.New("config: PLUK_IDENTITY_API_KEY is required with PLUK_IDENTITY=remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: PLUK_IDENTITY must be %q or %q, got %q", IdentityLocal, IdentityRemote, c.Identity))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("config: JWT_SECRET must be at least 16 characters"))
	}
	if c.Backend == BackendRemote && c.DBPath == "" {
		errs = append(errs, errors.New("config: DB_PATH is required with PLUK_BACKEND=remote"))
	}

	return errors.Join(errs...)
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs *[]error
}

func (p parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p parser) int(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("config: %s=%q is not an integer", key, raw))
		return def
	}
	return n
}

func (p parser) bool(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("config: %s=%q is not a boolean", key, raw))
		return def
	}
	return b
}

func (p parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		*p.errs = append(*p.errs, fmt.Errorf("config: %s=%q is not a duration", key, raw))
		return def
	}
	return d
}

func (p parser) level(key string, def slog.Level) slog.Level {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("config: %s=%q is not a log level", key, raw))
		return def
	}
	return l
}
