// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken = "TELEGRAM_TOKEN"
	KeyAdminID       = "ADMIN_ID"
	KeyPagarmeSecret = "PAGARME_SECRET_KEY"
	KeyPagarmeAPI    = "PAGARME_API_BASE"
	KeyAppEnv        = "APP_ENV"
	KeyLogLevel      = "LOG_LEVEL"
	KeyHTTPPort      = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv         = EnvProduction
	DefaultLogLevel       = "info"
	DefaultHTTPPort       = 8080
	DefaultPagarmeAPIBase = "https://api.pagar.me/core/v5"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyAdminID,
		Example:     "123456789",
		Default:     "0",
		Description: "Telegram user_id allowed to stop the bot with /stop.",
		Notes:       "0 means nobody can stop the bot from chat.",
	},
	{
		Key:         KeyPagarmeSecret,
		Example:     "sk_test_xxx",
		Required:    true,
		Description: "Pagar.me secret key used for Basic authentication.",
	},
	{
		Key:         KeyPagarmeAPI,
		Example:     DefaultPagarmeAPIBase,
		Default:     DefaultPagarmeAPIBase,
		Description: "Pagar.me API base URL; orders are created at <base>/orders.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health port.",
		Notes:       "0 disables the health server.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken  string
	AdminID        int64
	PagarmeSecret  string
	PagarmeAPIBase string
	AppEnv         string
	LogLevel       string
	HTTPPort       int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:  strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		PagarmeSecret:  strings.TrimSpace(os.Getenv(KeyPagarmeSecret)),
		PagarmeAPIBase: firstNonEmpty(os.Getenv(KeyPagarmeAPI), DefaultPagarmeAPIBase),
		LogLevel:       firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:       DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	if missing := missingRequired(); len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if adminRaw := strings.TrimSpace(os.Getenv(KeyAdminID)); adminRaw != "" {
		adminID, parseErr := strconv.ParseInt(adminRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminID, parseErr)
		}
		cfg.AdminID = adminID
	}

	apiBase, err := normalizeAPIBase(cfg.PagarmeAPIBase)
	if err != nil {
		return Config{}, err
	}
	cfg.PagarmeAPIBase = apiBase

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// HealthEnabled reports whether the health server should be started.
func (c Config) HealthEnabled() bool {
	return c.HTTPPort > 0
}

// FormatRedacted renders the configuration as "key: value" lines with secrets masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"telegram_token: " + redactSecret(cfg.TelegramToken),
		"admin_id: " + strconv.FormatInt(cfg.AdminID, 10),
		"pagarme_secret_key: " + redactSecret(cfg.PagarmeSecret),
		"pagarme_api_base: " + redactURL(cfg.PagarmeAPIBase),
	}

	return strings.Join(lines, "\n")
}

// missingRequired lists the Contract keys marked required that are unset or blank.
func missingRequired() []string {
	missing := make([]string, 0)
	for _, entry := range Contract {
		if entry.Required && strings.TrimSpace(os.Getenv(entry.Key)) == "" {
			missing = append(missing, entry.Key)
		}
	}
	return missing
}

func redactSecret(value string) string {
	if value == "" {
		return "(unset)"
	}
	if len(value) <= 4 {
		return "...redacted"
	}

	return value[:4] + "...redacted"
}

func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}

	parsed.User = nil
	return parsed.String()
}

func normalizeAPIBase(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", KeyPagarmeAPI, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid %s: scheme must be http or https", KeyPagarmeAPI)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid %s: host is required", KeyPagarmeAPI)
	}

	return trimmed, nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
