package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ForecastMailer/internal/logger"
	"ForecastMailer/internal/model"
)

const DefaultPath = "configs/config.yaml"

// DefaultTicker is used when no ticker list is configured.
var DefaultTicker = model.Ticker{Symbol: "MSFT", Name: "Microsoft"}

var validate = validator.New()

// Config holds all application configuration.
type Config struct {
	Tickers     []model.Ticker `yaml:"tickers" validate:"unique=Symbol,dive"`
	QuoteSource QuoteSource    `yaml:"quote_source"`
	Forecast    Forecast       `yaml:"forecast"`
	Pipeline    struct {
		ItemDelay time.Duration `yaml:"item_delay" default:"5s" validate:"gte=0"`
	} `yaml:"pipeline"`
	Schedule Schedule `yaml:"schedule"`
	Email    Email    `yaml:"email"`
	Telegram Telegram `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path" default:"data/forecastmailer.db"`
	} `yaml:"database"`
	Server     Server        `yaml:"server"`
	Log        logger.Config `yaml:"log"`
	Proxy      string        `yaml:"proxy"`
	RunOnStart bool          `yaml:"run_on_start"`
}

type QuoteSource struct {
	Provider string        `yaml:"provider" default:"yahoo" validate:"oneof=yahoo vstrader static"`
	BaseURL  string        `yaml:"base_url" validate:"required_if=Provider vstrader"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout" default:"15s" validate:"gt=0"`

	// StaticPrice backs every symbol when Provider is "static".
	StaticPrice float64 `yaml:"static_price" default:"100" validate:"gte=0"`
	Breaker     struct {
		Enabled     bool          `yaml:"enabled" default:"true"`
		MaxFailures uint32        `yaml:"max_failures" default:"3" validate:"min=1"`
		Cooldown    time.Duration `yaml:"cooldown" default:"60s" validate:"gte=0"`
	} `yaml:"breaker"`
}

type Forecast struct {
	APIKey      string        `yaml:"api_key" validate:"required"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model" default:"gemini-2.5-flash"`
	Timeout     time.Duration `yaml:"timeout" default:"60s" validate:"gt=0"`
	MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"min=1"`
	BaseDelay   time.Duration `yaml:"base_delay" default:"5s" validate:"gt=0"`
}

type Schedule struct {
	Cron       string `yaml:"cron" default:"0 30 8 * * 1-5" validate:"required"`
	Timezone   string `yaml:"timezone" default:"America/New_York" validate:"required"`
	MarketOpen string `yaml:"market_open" default:"9:30 AM EST"`
}

// Location resolves Timezone.
func (s Schedule) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

type Email struct {
	SMTPHost string   `yaml:"smtp_host" default:"smtp.gmail.com"`
	SMTPPort int      `yaml:"smtp_port" default:"587" validate:"min=1,max=65535"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to" validate:"dive,email"`
}

// Enabled reports whether every field needed to send mail is set.
func (e Email) Enabled() bool {
	return e.SMTPHost != "" && e.Username != "" && e.Password != "" && len(e.To) > 0
}

// Sender returns From, falling back to Username.
func (e Email) Sender() string {
	if e.From != "" {
		return e.From
	}
	return e.Username
}

type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	BaseURL  string `yaml:"base_url" default:"https://api.telegram.org"`
}

func (t Telegram) Enabled() bool { return t.BotToken != "" && t.ChatID != "" }

type Server struct {
	Port            int           `yaml:"port" default:"3000" validate:"min=1,max=65535"`
	TriggerInterval time.Duration `yaml:"trigger_interval" default:"1m" validate:"gt=0"`
	TriggerBurst    int           `yaml:"trigger_burst" default:"1" validate:"min=1"`
	RunTimeout      time.Duration `yaml:"run_timeout" default:"10m" validate:"gt=0"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if len(cfg.Tickers) == 0 {
		cfg.Tickers = []model.Ticker{DefaultTicker}
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"GOOGLE_API_KEY":     &c.Forecast.APIKey,
		"GEMINI_MODEL":       &c.Forecast.Model,
		"EMAIL_USER":         &c.Email.Username,
		"EMAIL_PASSWORD":     &c.Email.Password,
		"EMAIL_FROM":         &c.Email.From,
		"SMTP_HOST":          &c.Email.SMTPHost,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"HTTPS_PROXY":        &c.Proxy,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"CRON_SCHEDULE":      &c.Schedule.Cron,
		"LOG_LEVEL":          &c.Log.Level,
		"QUOTE_PROVIDER":     &c.QuoteSource.Provider,
		"VSTRADER_BASE_URL":  &c.QuoteSource.BaseURL,
		"VSTRADER_API_KEY":   &c.QuoteSource.APIKey,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SMTP_PORT": &c.Email.SMTPPort,
		"PORT":      &c.Server.Port,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("EMAIL_RECIPIENT"); v != "" {
		c.Email.To = splitList(v)
	}
	if v := os.Getenv("TICKERS"); v != "" {
		c.Tickers = ParseTickers(v)
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		c.RunOnStart = v == "true"
	}
	return nil
}

// ParseTickers parses "SYM:Name,SYM:Name". The name part is optional.
func ParseTickers(s string) []model.Ticker {
	var out []model.Ticker
	for _, item := range splitList(s) {
		sym, name, _ := strings.Cut(item, ":")
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		out = append(out, model.Ticker{Symbol: sym, Name: strings.TrimSpace(name)})
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidatePipeline checks everything a run needs apart from delivery.
func (c *Config) ValidatePipeline() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if len(c.Tickers) == 0 {
		return errors.New("at least one ticker is required")
	}
	if _, err := c.Schedule.Location(); err != nil {
		return err
	}
	return nil
}

// Validate checks all required fields, including at least one complete delivery channel.
func (c *Config) Validate() error {
	if err := c.ValidatePipeline(); err != nil {
		return err
	}
	if !c.Email.Enabled() && !c.Telegram.Enabled() {
		return errors.New("no delivery channel configured: set email username/password/to or telegram bot_token/chat_id")
	}
	return nil
}
