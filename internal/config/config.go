package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
)

const defaultDataDirName = "openai-todos"

type Config struct {
	// HTTP
	Port      string `env:"PORT" envDefault:"3000"`
	StaticDir string `env:"STATIC_DIR" envDefault:"public"`

	// Assistant provider
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	// Name and model override the values in the assistant profile when set.
	AssistantName        string `env:"ASSISTANT_NAME"`
	AssistantModel       string `env:"OPENAI_MODEL"`
	AssistantProfilePath string `env:"ASSISTANT_PROFILE_PATH" envDefault:"prompts/assistant.yaml"`

	// Access
	AllowedUsers      []string `env:"ALLOWED_USERS" envSeparator:","`
	AllowlistFilePath string   `env:"ALLOWLIST_FILE_PATH"`

	// Run orchestration
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	PollTimeout      time.Duration `env:"POLL_TIMEOUT" envDefault:"2m"`
	ApprovalTTL      time.Duration `env:"APPROVAL_TTL" envDefault:"15m"`
	MCPMaxToolRounds int           `env:"MCP_MAX_TOOL_ROUNDS" envDefault:"5"`

	// Storage
	DataDir            string `env:"DATA_DIR"`
	DatabasePath       string `env:"DATABASE_PATH"`
	InteractionLogPath string `env:"INTERACTION_LOG_PATH" envDefault:"logs/interactions.jsonl"`

	// Google Calendar
	GoogleClientID        string `env:"CLIENT_ID"`
	GoogleClientSecret    string `env:"CLIENT_SECRET"`
	GoogleRedirectURI     string `env:"GOOGLE_REDIRECT_URI"`
	GoogleTokenPath       string `env:"GOOGLE_TOKEN_PATH"`
	GoogleCredentialsPath string `env:"GOOGLE_CREDENTIALS_PATH"`
	GoogleTimeZone        string `env:"GOOGLE_TIME_ZONE"`

	// Scheduled jobs
	TokenRefreshSchedule string `env:"GOOGLE_TOKEN_REFRESH_SCHEDULE" envDefault:"@every 30m"`
	DailyReportSchedule  string `env:"DAILY_REPORT_SCHEDULE" envDefault:"0 21 * * *"`
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return cfg
}

// Validate checks the settings the chat server cannot start without.
// The stdio tool server only needs storage and calendar settings.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	return nil
}

// Parse reads the environment and fills in paths derived from DataDir.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, defaultDataDirName)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "todos.db")
	}
	if cfg.GoogleTokenPath == "" {
		cfg.GoogleTokenPath = filepath.Join(cfg.DataDir, "google-token.json")
	}
	if cfg.GoogleCredentialsPath == "" {
		cfg.GoogleCredentialsPath = filepath.Join(cfg.DataDir, "google-credentials.json")
	}
	if cfg.MCPMaxToolRounds <= 0 {
		cfg.MCPMaxToolRounds = 1
	}
	return cfg, nil
}

// HasGoogleClient reports whether OAuth client settings came from the environment.
func (c *Config) HasGoogleClient() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURI != ""
}
