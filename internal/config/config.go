package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the server and CLI.
type Config struct {
	Server struct {
		Port           string `mapstructure:"port"`
		AllowedOrigins string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`

	// AppURL is the frontend origin used for redirects and invitation links.
	AppURL string `mapstructure:"app_url"`

	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`

	Supabase struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"supabase"`

	QuickBooks struct {
		ClientID      string `mapstructure:"client_id"`
		ClientSecret  string `mapstructure:"client_secret"`
		RedirectURI   string `mapstructure:"redirect_uri"`
		EncryptionKey string `mapstructure:"encryption_key"`
		Environment   string `mapstructure:"environment"` // sandbox | production
	} `mapstructure:"quickbooks"`

	OpenAI struct {
		APIKey string `mapstructure:"api_key"`
		Model  string `mapstructure:"model"`
	} `mapstructure:"openai"`

	AI struct {
		InvoiceBackend string `mapstructure:"invoice_backend"` // memory | database
	} `mapstructure:"ai"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // json | console
	} `mapstructure:"log"`

	Token struct {
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"token"`
}

// Load reads configuration from the environment and an optional config file.
// Environment keys are the upper-cased dotted keys with "." replaced by "_",
// e.g. quickbooks.client_id -> QUICKBOOKS_CLIENT_ID.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.allowed_origins", "ALLOWED_ORIGINS")

	// Every key needs a default so Unmarshal sees values coming only from the environment.
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", "")
	v.SetDefault("app_url", "http://localhost:3000")
	v.SetDefault("database.url", "")
	v.SetDefault("supabase.jwt_secret", "")
	v.SetDefault("quickbooks.client_id", "")
	v.SetDefault("quickbooks.client_secret", "")
	v.SetDefault("quickbooks.redirect_uri", "")
	v.SetDefault("quickbooks.encryption_key", "")
	v.SetDefault("quickbooks.environment", "sandbox")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("ai.invoice_backend", "memory")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("token.sweep_interval", "0s")

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the HTTP server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.Supabase.JWTSecret) == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET")
	}
	if strings.TrimSpace(c.QuickBooks.ClientID) == "" {
		missing = append(missing, "QUICKBOOKS_CLIENT_ID")
	}
	if strings.TrimSpace(c.QuickBooks.ClientSecret) == "" {
		missing = append(missing, "QUICKBOOKS_CLIENT_SECRET")
	}
	if strings.TrimSpace(c.QuickBooks.RedirectURI) == "" {
		missing = append(missing, "QUICKBOOKS_REDIRECT_URI")
	}
	if strings.TrimSpace(c.QuickBooks.EncryptionKey) == "" {
		missing = append(missing, "QUICKBOOKS_ENCRYPTION_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.QuickBooks.Environment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("QUICKBOOKS_ENVIRONMENT must be sandbox or production, got %q", c.QuickBooks.Environment)
	}
	switch c.AI.InvoiceBackend {
	case "memory", "database":
	default:
		return fmt.Errorf("AI_INVOICE_BACKEND must be memory or database, got %q", c.AI.InvoiceBackend)
	}
	return nil
}
