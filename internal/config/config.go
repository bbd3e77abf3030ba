// Package config loads runtime configuration from the environment.
//
// Values may also come from a .env file in the working directory; main calls
// godotenv.Load before Load so real environment variables still win.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration, grouped by concern.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Discord  DiscordConfig
	Stripe   StripeConfig
	Payments PaymentsConfig
	Notify   NotifyConfig
	Logging  LoggingConfig
}

type HTTPConfig struct {
	Port          int
	PublicBaseURL string
	StaticDir     string // served under /static/
}

type DatabaseConfig struct {
	URL  string // Postgres connection string; empty selects sqlite
	Path string // sqlite file path or ":memory:"
}

type AuthConfig struct {
	JWTSecret  string
	JWTIssuer  string
	SessionTTL time.Duration
	BaseURL    string
	// CookieName is derived from BaseURL, see SessionCookieName.
	CookieName string
}

type DiscordConfig struct {
	ClientID        string
	ClientSecret    string
	CallbackURL     string
	BotToken        string
	StaffChannelID  string
	GuildID         string
	ActivatedRoleID string
}

// RoleGrantEnabled reports whether approval should also grant a guild role.
func (d DiscordConfig) RoleGrantEnabled() bool {
	return d.GuildID != "" && d.ActivatedRoleID != ""
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type PaymentsConfig struct {
	LocalCurrency string
	LocalRate     decimal.Decimal // local units per 1 USD
}

type NotifyConfig struct {
	Workers     int
	QueueSize   int
	Timeout     time.Duration
	MaxAttempts int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment and performs minimal
// validation. The server needs JWT_SECRET; see LoadOperator for tools that
// never issue sessions.
func Load() (Config, error) {
	cfg, err := LoadOperator()
	if err != nil {
		return Config{}, err
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

// LoadOperator is Load without the session secret requirement.
func LoadOperator() (Config, error) {
	port, err := parseIntWithDefault("PORT", 8080)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Port:          port,
			PublicBaseURL: strings.TrimRight(fallback(os.Getenv("PUBLIC_BASE_URL"), fmt.Sprintf("http://localhost:%d", port)), "/"),
			StaticDir:     fallback(os.Getenv("STATIC_DIR"), "web/static"),
		},
		Database: DatabaseConfig{
			URL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
			Path: fallback(os.Getenv("DB_PATH"), "data/guildgate.db"),
		},
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(os.Getenv("JWT_SECRET")),
			JWTIssuer: fallback(os.Getenv("JWT_ISSUER"), "guildgate"),
		},
		Discord: DiscordConfig{
			ClientID:        strings.TrimSpace(os.Getenv("DISCORD_CLIENT_ID")),
			ClientSecret:    strings.TrimSpace(os.Getenv("DISCORD_CLIENT_SECRET")),
			BotToken:        strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
			StaffChannelID:  strings.TrimSpace(os.Getenv("DISCORD_STAFF_CHANNEL_ID")),
			GuildID:         strings.TrimSpace(os.Getenv("DISCORD_GUILD_ID")),
			ActivatedRoleID: strings.TrimSpace(os.Getenv("DISCORD_ACTIVATED_ROLE_ID")),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
			WebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		},
		Payments: PaymentsConfig{
			LocalCurrency: strings.ToUpper(fallback(os.Getenv("LOCAL_CURRENCY"), "EGP")),
		},
		Logging: LoggingConfig{
			Level:  fallback(os.Getenv("LOG_LEVEL"), "info"),
			Format: fallback(os.Getenv("LOG_FORMAT"), "text"),
		},
	}

	cfg.Auth.BaseURL = strings.TrimRight(fallback(os.Getenv("AUTH_BASE_URL"), cfg.HTTP.PublicBaseURL), "/")
	cfg.Discord.CallbackURL = fallback(os.Getenv("DISCORD_CALLBACK_URL"), cfg.HTTP.PublicBaseURL+"/auth/discord/callback")

	if cfg.Auth.SessionTTL, err = parseDurationWithDefault("SESSION_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}

	rate := fallback(os.Getenv("LOCAL_CURRENCY_RATE"), "50")
	cfg.Payments.LocalRate, err = decimal.NewFromString(rate)
	if err != nil || !cfg.Payments.LocalRate.IsPositive() {
		return Config{}, fmt.Errorf("LOCAL_CURRENCY_RATE must be a positive decimal, got %q", rate)
	}

	if cfg.Notify.Workers, err = parseIntWithDefault("NOTIFY_WORKERS", 2); err != nil {
		return Config{}, err
	}
	if cfg.Notify.QueueSize, err = parseIntWithDefault("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return Config{}, err
	}
	if cfg.Notify.MaxAttempts, err = parseIntWithDefault("NOTIFY_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.Notify.Timeout, err = parseDurationWithDefault("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}

	cfg.Auth.CookieName, err = SessionCookieName(cfg.Auth.BaseURL)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

// SessionCookieName derives the session cookie name from the auth service's
// base URL: "sb-<project>-auth-token", where <project> is the first label of
// the host. https://abcd.supabase.co gives "sb-abcd-auth-token".
func SessionCookieName(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("AUTH_BASE_URL must be an absolute URL, got %q", baseURL)
	}
	project, _, _ := strings.Cut(u.Hostname(), ".")
	return "sb-" + project + "-auth-token", nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseIntWithDefault(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func parseDurationWithDefault(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}
