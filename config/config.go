package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingSetting is returned by Validate when a required setting is empty.
var ErrMissingSetting = errors.New("missing required setting")

// Roster backends.
const (
	RosterSheets   = "sheets"
	RosterXLSX     = "xlsx"
	RosterPostgres = "postgres"
)

// Config struct to hold the configuration settings
type Config struct {
	Telegram      TelegramConfig      `yaml:"telegram"`
	Roster        RosterConfig        `yaml:"roster"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	NATS          NATSConfig          `yaml:"nats"`
	Sources       SourcesConfig       `yaml:"sources"`
	Sync          SyncConfig          `yaml:"sync"`
	Report        ReportConfig        `yaml:"report"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// TelegramConfig holds the delivery target.
type TelegramConfig struct {
	Token       string `yaml:"token"`
	ChatID      string `yaml:"chat_id"`
	APIEndpoint string `yaml:"api_endpoint"`
}

// RosterConfig selects where the roster and its watermarks live.
type RosterConfig struct {
	Backend         string `yaml:"backend"`
	SheetName       string `yaml:"sheet_name"`
	SheetURL        string `yaml:"sheet_url"`
	CredentialsFile string `yaml:"credentials_file"`
	CredentialsJSON string `yaml:"credentials_json"`
	SheetsEndpoint  string `yaml:"sheets_endpoint"`
	XLSXPath        string `yaml:"xlsx_path"`
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig holds NATS configuration. An empty URL disables run events.
type NATSConfig struct {
	URL   string `yaml:"url"`
	Topic string `yaml:"topic"`
}

// SourcesConfig holds the external judge endpoints.
type SourcesConfig struct {
	HTTPTimeout time.Duration    `yaml:"http_timeout"`
	UserAgent   string           `yaml:"user_agent"`
	Codeforces  CodeforcesConfig `yaml:"codeforces"`
	AtCoder     AtCoderConfig    `yaml:"atcoder"`
	VJudge      VJudgeConfig     `yaml:"vjudge"`
	CodeChef    CodeChefConfig   `yaml:"codechef"`
}

type CodeforcesConfig struct {
	BaseURL string `yaml:"base_url"`
	Count   int    `yaml:"count"`
}

type AtCoderConfig struct {
	BaseURL    string `yaml:"base_url"`
	FromSecond int64  `yaml:"from_second"`
}

type VJudgeConfig struct {
	BaseURL      string        `yaml:"base_url"`
	PageSize     int           `yaml:"page_size"`
	MaxPages     int           `yaml:"max_pages"`
	TitleTimeout time.Duration `yaml:"title_timeout"`
}

type CodeChefConfig struct {
	BaseURL   string        `yaml:"base_url"`
	MaxPages  int           `yaml:"max_pages"`
	PageDelay time.Duration `yaml:"page_delay"`
}

// SyncConfig controls the roster orchestrator.
type SyncConfig struct {
	WriteMaxAttempts int           `yaml:"write_max_attempts"`
	WriteBackoff     time.Duration `yaml:"write_backoff"`
	UserDelay        time.Duration `yaml:"user_delay"`
	Concurrency      int           `yaml:"concurrency"`
}

// ReportConfig controls rendering.
type ReportConfig struct {
	Title            string `yaml:"title"`
	UTCOffsetHours   int    `yaml:"utc_offset_hours"`
	MaxMessageLength int    `yaml:"max_message_length"`
}

// ScheduleConfig controls serve mode.
type ScheduleConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"run_on_start"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	Environment     string  `yaml:"environment"`
	LogLevel        string  `yaml:"log_level"`
	MetricsAddress  string  `yaml:"metrics_address"`
	PushgatewayURL  string  `yaml:"pushgateway_url"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint"`
	OTLPInsecure    bool    `yaml:"otlp_insecure"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// Default returns a configuration populated with the production defaults.
func Default() *Config {
	return &Config{
		Roster: RosterConfig{
			Backend:         RosterSheets,
			CredentialsFile: "credentials.json",
			SheetsEndpoint:  "https://sheets.googleapis.com/",
		},
		NATS: NATSConfig{Topic: "digest.run.completed"},
		Sources: SourcesConfig{
			HTTPTimeout: 20 * time.Second,
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			Codeforces:  CodeforcesConfig{BaseURL: "https://codeforces.com", Count: 200},
			AtCoder:     AtCoderConfig{BaseURL: "https://kenkoooo.com"},
			VJudge: VJudgeConfig{
				BaseURL:      "https://vjudge.net",
				PageSize:     20,
				MaxPages:     25,
				TitleTimeout: 5 * time.Second,
			},
			CodeChef: CodeChefConfig{
				BaseURL:   "https://www.codechef.com",
				MaxPages:  40,
				PageDelay: 500 * time.Millisecond,
			},
		},
		Sync: SyncConfig{
			WriteMaxAttempts: 10,
			WriteBackoff:     5 * time.Second,
			UserDelay:        1500 * time.Millisecond,
			Concurrency:      1,
		},
		Report: ReportConfig{
			Title:            "Daily CP Update",
			UTCOffsetHours:   6,
			MaxMessageLength: 4000,
		},
		Schedule: ScheduleConfig{Interval: 24 * time.Hour},
		Observability: ObservabilityConfig{
			LogLevel:        "info",
			TraceSampleRate: 0.1,
		},
	}
}

// LoadConfig loads the configuration from a YAML file.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	// Try reading configuration from the file first
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployment
	default:
		return nil, fmt.Errorf("failed to read config %q: %w", filename, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// --- OVERRIDE WITH ENV VARS IF PRESENT ---
func applyEnv(cfg *Config) error {
	if v := os.Getenv("TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TARGET_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("TELEGRAM_API_ENDPOINT"); v != "" {
		cfg.Telegram.APIEndpoint = v
	}
	if v := os.Getenv("ROSTER_BACKEND"); v != "" {
		cfg.Roster.Backend = v
	}
	if v := os.Getenv("SHEET_NAME"); v != "" {
		cfg.Roster.SheetName = v
	}
	if v := os.Getenv("SHEET_URL"); v != "" {
		cfg.Roster.SheetURL = v
	}
	if v := os.Getenv("GCP_CREDENTIALS"); v != "" {
		cfg.Roster.CredentialsJSON = v
	}
	if v := os.Getenv("ROSTER_XLSX_PATH"); v != "" {
		cfg.Roster.XLSXPath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Observability.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("METRICS_ADDRESS"); v != "" {
		cfg.Observability.MetricsAddress = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		cfg.Observability.PushgatewayURL = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Observability.OTLPEndpoint = v
	}
	if v := os.Getenv("OTLP_INSECURE"); v != "" {
		cfg.Observability.OTLPInsecure = v == "true"
	}
	if v := os.Getenv("SYNC_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SYNC_CONCURRENCY value: %v", err)
		}
		cfg.Sync.Concurrency = n
	}
	if v := os.Getenv("SCHEDULE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SCHEDULE_INTERVAL value: %v", err)
		}
		cfg.Schedule.Interval = d
	}
	return nil
}

// Validate checks the settings a run cannot start without. requireDelivery is
// false for dry runs, which print instead of sending.
func (c *Config) Validate(requireDelivery bool) error {
	var missing []string
	if requireDelivery {
		if c.Telegram.Token == "" {
			missing = append(missing, "telegram.token (TOKEN)")
		}
		if c.Telegram.ChatID == "" {
			missing = append(missing, "telegram.chat_id (TARGET_CHAT_ID)")
		}
	}

	switch c.Roster.Backend {
	case RosterSheets:
		if c.Roster.SheetURL == "" {
			missing = append(missing, "roster.sheet_url (SHEET_URL)")
		}
		if c.Roster.SheetName == "" {
			missing = append(missing, "roster.sheet_name (SHEET_NAME)")
		}
	case RosterXLSX:
		if c.Roster.XLSXPath == "" {
			missing = append(missing, "roster.xlsx_path (ROSTER_XLSX_PATH)")
		}
	case RosterPostgres:
		if c.Postgres.DSN == "" {
			missing = append(missing, "postgres.dsn (DATABASE_URL)")
		}
	default:
		return fmt.Errorf("unknown roster backend %q", c.Roster.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}
	if c.Sync.WriteMaxAttempts < 1 {
		return fmt.Errorf("sync.write_max_attempts must be at least 1, got %d", c.Sync.WriteMaxAttempts)
	}
	if c.Report.MaxMessageLength < 64 {
		return fmt.Errorf("report.max_message_length too small: %d", c.Report.MaxMessageLength)
	}
	return nil
}
