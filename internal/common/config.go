package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration. Secrets are never read
// from the TOML file, only from the environment.
type Config struct {
	Search   SearchConfig   `toml:"search"`
	LLM      LLMConfig      `toml:"llm"`
	Delivery DeliveryConfig `toml:"delivery"`
	Telegram TelegramConfig `toml:"telegram"`
	Email    EmailConfig    `toml:"email"`
	Logging  LoggingConfig  `toml:"logging"`
	Schedule ScheduleConfig `toml:"schedule"`
}

type SearchConfig struct {
	APIKey     string `toml:"-" validate:"required"`
	BaseURL    string `toml:"base_url" validate:"required,url"`
	Query      string `toml:"query" validate:"required"`
	Depth      string `toml:"depth" validate:"oneof=basic advanced"`
	MaxResults int    `toml:"max_results" validate:"min=1,max=20"`
	Days       int    `toml:"days" validate:"min=1"`
	Timeout    string `toml:"timeout"` // e.g. "30s"
}

type LLMConfig struct {
	Provider      string  `toml:"provider" validate:"oneof=groq openai gemini anthropic"`
	APIKey        string  `toml:"-" validate:"required"`
	BaseURL       string  `toml:"base_url"`
	Model         string  `toml:"model" validate:"required"`
	FallbackModel string  `toml:"fallback_model"` // defaults to Model
	Temperature   float64 `toml:"temperature" validate:"min=0,max=2"`
	MaxTokens     int     `toml:"max_tokens" validate:"min=1"`
	Timeout       string  `toml:"timeout"`
}

type DeliveryConfig struct {
	Channel string `toml:"channel" validate:"oneof=telegram email"`
}

type TelegramConfig struct {
	Token    string `toml:"-" validate:"required"`
	ChatID   string `toml:"-" validate:"required"`
	Endpoint string `toml:"endpoint"` // Bot API URL format, defaults to the public API
}

type EmailConfig struct {
	SMTPServer string `toml:"smtp_server" validate:"required"`
	SMTPPort   int    `toml:"smtp_port" validate:"required"`
	SMTPUser   string `toml:"-" validate:"required"`
	SMTPPass   string `toml:"-" validate:"required"`
	FromEmail  string `toml:"from_email"`
	ToEmail    string `toml:"-" validate:"required,email"`
}

type LoggingConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
	File  string `toml:"file"`  // append-only run log, empty disables
}

type ScheduleConfig struct {
	Cron     string `toml:"cron"` // empty runs once
	Timezone string `toml:"timezone"`
}

// Environment variable names for secrets, reported back when missing.
var envNames = map[string]string{
	"Search.APIKey":   "TAVILY_API_KEY",
	"Telegram.Token":  "TELEGRAM_BOT_TOKEN",
	"Telegram.ChatID": "TELEGRAM_CHAT_ID",
	"Email.SMTPUser":  "SMTP_USER",
	"Email.SMTPPass":  "SMTP_PASS",
	"Email.ToEmail":   "TO_EMAIL",
}

var providerKeyEnv = map[string]string{
	"groq":      "GROQ_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

var providerDefaultModel = map[string]string{
	"groq":      "llama-3.1-8b-instant",
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-2.5-flash",
	"anthropic": "claude-haiku-4-5",
}

const GroqBaseURL = "https://api.groq.com/openai/v1/"

// NewDefaultConfig returns the configuration used when no file is given.
func NewDefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			BaseURL:    "https://api.tavily.com",
			Query:      "today US stock market summary, S&P 500, Nasdaq, Dow Jones, major movers",
			Depth:      "advanced",
			MaxResults: 5,
			Days:       1,
			Timeout:    "30s",
		},
		LLM: LLMConfig{
			Provider:    "groq",
			Temperature: 0.7,
			MaxTokens:   900,
			Timeout:     "30s",
		},
		Delivery: DeliveryConfig{Channel: "telegram"},
		Email: EmailConfig{
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "marketwrap.log",
		},
		Schedule: ScheduleConfig{Timezone: "America/New_York"},
	}
}

// Load reads the optional .env file, the optional TOML file, applies
// environment overrides and validates the result.
func Load(envFile, configPath string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	config := NewDefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(config)
	applyDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	config.Search.APIKey = os.Getenv("TAVILY_API_KEY")

	if provider := os.Getenv("MARKETWRAP_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = strings.ToLower(provider)
	}
	if model := os.Getenv("MARKETWRAP_LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if model := os.Getenv("MARKETWRAP_LLM_FALLBACK_MODEL"); model != "" {
		config.LLM.FallbackModel = model
	}
	if keyEnv, ok := providerKeyEnv[config.LLM.Provider]; ok {
		config.LLM.APIKey = os.Getenv(keyEnv)
	}

	if channel := os.Getenv("MARKETWRAP_DELIVERY_CHANNEL"); channel != "" {
		config.Delivery.Channel = strings.ToLower(channel)
	}
	config.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	config.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")

	config.Email.SMTPUser = os.Getenv("SMTP_USER")
	config.Email.SMTPPass = os.Getenv("SMTP_PASS")
	config.Email.ToEmail = os.Getenv("TO_EMAIL")
	if server := os.Getenv("SMTP_SERVER"); server != "" {
		config.Email.SMTPServer = server
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Email.SMTPPort = p
		}
	}

	if level := os.Getenv("MARKETWRAP_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if file, ok := os.LookupEnv("MARKETWRAP_LOG_FILE"); ok {
		config.Logging.File = file
	}
	if cron := os.Getenv("MARKETWRAP_SCHEDULE"); cron != "" {
		config.Schedule.Cron = cron
	}
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = providerDefaultModel[config.LLM.Provider]
	}
	if config.LLM.FallbackModel == "" {
		config.LLM.FallbackModel = config.LLM.Model
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "groq" {
		config.LLM.BaseURL = GroqBaseURL
	}
	if config.Email.FromEmail == "" {
		config.Email.FromEmail = config.Email.SMTPUser
	}
}

// Validate checks the sections needed for the configured provider and
// delivery channel. Missing secrets are reported by environment variable name.
func (c *Config) Validate() error {
	validate := validator.New()

	type section struct {
		name string
		v    interface{}
	}
	sections := []section{
		{"Search", &c.Search},
		{"LLM", &c.LLM},
		{"Delivery", &c.Delivery},
	}
	switch c.Delivery.Channel {
	case "telegram":
		sections = append(sections, section{"Telegram", &c.Telegram})
	case "email":
		sections = append(sections, section{"Email", &c.Email})
	}

	var problems []string
	for _, sec := range sections {
		err := validate.Struct(sec.v)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid %s config: %w", sec.name, err)
		}
		for _, fe := range verrs {
			if problem := c.describe(sec.name, fe); problem != "" {
				problems = append(problems, problem)
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) describe(section string, fe validator.FieldError) string {
	key := section + "." + fe.StructField()
	if fe.Tag() == "required" {
		if env, ok := envNames[key]; ok {
			return fmt.Sprintf("missing required environment variable %s", env)
		}
		if key == "LLM.APIKey" {
			// An unknown provider has no key variable and is reported on LLM.Provider.
			env := providerKeyEnv[c.LLM.Provider]
			if env == "" {
				return ""
			}
			return fmt.Sprintf("missing required environment variable %s", env)
		}
	}
	return fmt.Sprintf("%s failed %q validation (value %v)", key, fe.Tag(), fe.Value())
}

// Location returns the schedule timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseDuration parses a duration string, returning fallback when empty or invalid.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
