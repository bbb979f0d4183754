package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// DefaultOverpassURLs are the public Overpass mirrors, tried in order.
var DefaultOverpassURLs = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass.openstreetmap.fr/api/interpreter",
}

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port int

	StorageDriver  string
	DatabaseURL    string
	SQLitePath     string
	MigrationsPath string

	ReasonerProvider   string
	ReasonerTimeout    time.Duration
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	TranscriptionModel string
	GeminiAPIKey       string
	GeminiModel        string

	RegistryFile string

	OverpassURLs    []string
	FacilityTimeout time.Duration
	FacilityBackoff time.Duration

	TelegramToken   string
	CaregiverChatID int64
	ReportFontPath  string

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over .env entries.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	return FromViper(NewViper())
}

// LoadDotEnv loads ./.env when present.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// NewViper returns a viper instance reading the process environment with all
// defaults applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("SQLITE_PATH", "symptosafe.db")
	v.SetDefault("REASONER_PROVIDER", ProviderOpenAI)
	v.SetDefault("REASONER_TIMEOUT", 25*time.Second)
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_TRANSCRIPTION_MODEL", "whisper-1")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("OVERPASS_URLS", strings.Join(DefaultOverpassURLs, ","))
	v.SetDefault("FACILITY_TIMEOUT", 30*time.Second)
	v.SetDefault("FACILITY_BACKOFF", 500*time.Millisecond)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	// Keys without defaults must be bound, otherwise AutomaticEnv alone
	// does not surface them through AllSettings/Unmarshal.
	for _, k := range []string{
		"DATABASE_URL", "STORAGE_DRIVER", "MIGRATIONS_PATH", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"GEMINI_API_KEY", "REGISTRY_FILE", "TELEGRAM_BOT_TOKEN",
		"CAREGIVER_CHAT_ID", "REPORT_FONT_PATH",
	} {
		_ = v.BindEnv(k)
	}
	return v
}

// FromViper builds a Config from an already populated viper instance. The CLI
// uses it after binding its own flags.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:               v.GetInt("PORT"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		StorageDriver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
		SQLitePath:         v.GetString("SQLITE_PATH"),
		MigrationsPath:     v.GetString("MIGRATIONS_PATH"),
		ReasonerProvider:   strings.ToLower(v.GetString("REASONER_PROVIDER")),
		ReasonerTimeout:    v.GetDuration("REASONER_TIMEOUT"),
		OpenAIAPIKey:       v.GetString("OPENAI_API_KEY"),
		OpenAIModel:        v.GetString("OPENAI_MODEL"),
		OpenAIBaseURL:      v.GetString("OPENAI_BASE_URL"),
		TranscriptionModel: v.GetString("OPENAI_TRANSCRIPTION_MODEL"),
		GeminiAPIKey:       v.GetString("GEMINI_API_KEY"),
		GeminiModel:        v.GetString("GEMINI_MODEL"),
		RegistryFile:       v.GetString("REGISTRY_FILE"),
		OverpassURLs:       splitList(v.GetString("OVERPASS_URLS")),
		FacilityTimeout:    v.GetDuration("FACILITY_TIMEOUT"),
		FacilityBackoff:    v.GetDuration("FACILITY_BACKOFF"),
		TelegramToken:      v.GetString("TELEGRAM_BOT_TOKEN"),
		CaregiverChatID:    v.GetInt64("CAREGIVER_CHAT_ID"),
		ReportFontPath:     v.GetString("REPORT_FONT_PATH"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
	}

	if cfg.StorageDriver == "" {
		cfg.StorageDriver = StorageSQLite
		if cfg.DatabaseURL != "" {
			cfg.StorageDriver = StoragePostgres
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres driver", ErrInvalidConfig)
		}
	case StorageSQLite:
	default:
		return fmt.Errorf("%w: unknown STORAGE_DRIVER %q", ErrInvalidConfig, c.StorageDriver)
	}

	switch c.ReasonerProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("%w: unknown REASONER_PROVIDER %q", ErrInvalidConfig, c.ReasonerProvider)
	}

	if c.ReasonerTimeout <= 0 {
		return fmt.Errorf("%w: REASONER_TIMEOUT must be positive", ErrInvalidConfig)
	}
	if len(c.OverpassURLs) == 0 {
		return fmt.Errorf("%w: OVERPASS_URLS must list at least one mirror", ErrInvalidConfig)
	}
	return nil
}

// CaregiverEnabled reports whether emergency alerts and report sharing can be
// delivered.
func (c *Config) CaregiverEnabled() bool {
	return c.TelegramToken != "" && c.CaregiverChatID != 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
