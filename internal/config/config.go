package config // package config loads application configuration from environment variables

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Token lifetimes are parsed from compact duration
// strings (e.g. "15m", "7d") so that a malformed value aborts startup instead
// of surfacing mid-request.
type Config struct {
	Env           string        // application environment (e.g. "dev", "prod")
	Port          string        // HTTP port to listen on
	DBUser        string        // database username
	DBPass        string        // database password (optional)
	DBHost        string        // database host address
	DBPort        string        // database port number
	DBName        string        // database name
	AccessSecret  string        // secret used to sign access tokens
	RefreshSecret string        // secret used to sign refresh tokens; must differ from AccessSecret
	AccessTTL     time.Duration // access token lifetime
	RefreshTTL    time.Duration // refresh token lifetime
	SlidingWindow time.Duration // rotation threshold; strictly shorter than RefreshTTL
	BcryptCost    int           // bcrypt cost for password hashing

	GoogleClientID     string // OAuth client id for federated login (optional)
	GoogleClientSecret string // OAuth client secret (optional)
	GoogleRedirectURL  string // OAuth redirect URL (optional)

	AMQPURL string // RabbitMQ connection URL for event publication (optional)

	CacheTTL time.Duration // lifetime of cached role listing responses
}

// expiryRe matches the compact duration grammar: an integer followed by a
// single unit letter.  Units: s seconds, m minutes, h hours, d days.
var expiryRe = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseExpiry converts a compact duration string into a time.Duration.  It
// returns an error for anything that does not match the grammar, including
// empty strings and composite values like "1h30m".
func ParseExpiry(s string) (time.Duration, error) {
	m := expiryRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid expiration format: %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid expiration format: %q", s)
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	return time.Duration(n) * unit, nil
}

// Load reads configuration from environment variables and validates it.  Any
// missing required variable or malformed duration is returned as an error;
// the caller is expected to treat that as fatal before serving traffic.
func Load() (Config, error) {
	cfg := Config{
		Env:                os.Getenv("APP_ENV"),
		Port:               getenvDefault("APP_PORT", "8080"),
		DBPass:             os.Getenv("DB_PASS"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URI"),
		AMQPURL:            os.Getenv("AMQP_URL"),
	}

	var err error
	if cfg.DBUser, err = must("DB_USER"); err != nil {
		return Config{}, err
	}
	if cfg.DBHost, err = must("DB_HOST"); err != nil {
		return Config{}, err
	}
	if cfg.DBPort, err = must("DB_PORT"); err != nil {
		return Config{}, err
	}
	if cfg.DBName, err = must("DB_NAME"); err != nil {
		return Config{}, err
	}
	if cfg.AccessSecret, err = must("JWT_ACCESS_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshSecret, err = must("JWT_REFRESH_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return Config{}, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.AccessTTL, err = mustExpiry("JWT_ACCESS_EXPIRATION"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = mustExpiry("JWT_REFRESH_EXPIRATION"); err != nil {
		return Config{}, err
	}
	if cfg.SlidingWindow, err = mustExpiry("JWT_REFRESH_SLIDING_WINDOW"); err != nil {
		return Config{}, err
	}
	if cfg.SlidingWindow >= cfg.RefreshTTL {
		return Config{}, fmt.Errorf("JWT_REFRESH_SLIDING_WINDOW (%s) must be shorter than JWT_REFRESH_EXPIRATION (%s)",
			cfg.SlidingWindow, cfg.RefreshTTL)
	}

	cfg.BcryptCost = 10
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid int for BCRYPT_COST: %q", v)
		}
		cfg.BcryptCost = n
	}

	cfg.CacheTTL = 5 * time.Minute
	if v := os.Getenv("ROLE_CACHE_TTL"); v != "" {
		d, err := ParseExpiry(v)
		if err != nil {
			return Config{}, err
		}
		cfg.CacheTTL = d
	}

	return cfg, nil
}

// must retrieves the value of a required environment variable.
func must(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return v, nil
}

// mustExpiry retrieves a required variable and parses it as a compact duration.
func mustExpiry(key string) (time.Duration, error) {
	s, err := must(key)
	if err != nil {
		return 0, err
	}
	d, err := ParseExpiry(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
