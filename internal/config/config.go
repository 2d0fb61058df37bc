package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"esther-voice/internal/calls"
	"esther-voice/internal/sonic"
)

// Config holds all configuration required by the API process.
// All values come from env; no other package reads environment variables.
type Config struct {
	App     AppConfig
	Nova    NovaConfig
	Vonage  VonageConfig
	Redis   RedisConfig
	Calls   CallsConfig
	Prompts PromptsConfig
}

type AppConfig struct {
	Env             string        `env:"APP_ENV"`
	Port            int           `env:"APP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"20s"`
}

type NovaConfig struct {
	Region      string  `env:"AWS_REGION" envDefault:"us-east-1"`
	ModelID     string  `env:"NOVA_MODEL_ID" envDefault:"amazon.nova-sonic-v1:0"`
	VoiceID     string  `env:"NOVA_VOICE_ID" envDefault:"matthew"`
	MaxTokens   int     `env:"NOVA_MAX_TOKENS" envDefault:"1024"`
	TopP        float64 `env:"NOVA_TOP_P" envDefault:"0.9"`
	Temperature float64 `env:"NOVA_TEMPERATURE" envDefault:"0.7"`

	// AudioQueueMax bounds buffered model audio per call; the oldest chunk is dropped on overflow.
	AudioQueueMax int           `env:"AUDIO_QUEUE_MAX" envDefault:"512"`
	DrainTimeout  time.Duration `env:"NOVA_DRAIN_TIMEOUT" envDefault:"5s"`
}

type VonageConfig struct {
	ApplicationID   string `env:"VONAGE_APPLICATION_ID"`
	PrivateKey      string `env:"VONAGE_PRIVATE_KEY"`
	PrivateKeyPath  string `env:"VONAGE_PRIVATE_KEY_PATH"`
	OutboundNumber  string `env:"VONAGE_OUTBOUND_NUMBER"`
	APIBaseURL      string `env:"VONAGE_API_BASE_URL" envDefault:"https://api.nexmo.com"`
	InboundGreeting string `env:"VONAGE_INBOUND_GREETING" envDefault:"Hello, I am Esther from Mike Lawrence Productions. How may I help you today?"`
	RecordCalls     bool   `env:"VONAGE_RECORD_CALLS" envDefault:"false"`

	// WebhookBaseURL is the public base the provider reaches this service on.
	WebhookBaseURL string `env:"WEBHOOK_BASE_URL"`
}

// RedisConfig is optional. Without an address the process keeps call history,
// concurrency slots and call events in memory.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type CallsConfig struct {
	MaxConcurrent     int           `env:"MAX_CONCURRENT_CALLS" envDefault:"20"`
	FrequencyLookback time.Duration `env:"CALL_FREQUENCY_LOOKBACK" envDefault:"24h"`
	FrequencyExempt   []string      `env:"CALL_FREQUENCY_EXEMPT" envSeparator:"," envDefault:"13472005533"`
	MaxDuration       time.Duration `env:"CALL_MAX_DURATION" envDefault:"1h"`
	PendingTimeout    time.Duration `env:"CALL_PENDING_TIMEOUT" envDefault:"2m"`
	ReaperSchedule    string        `env:"CALL_REAPER_SCHEDULE" envDefault:"* * * * *"`
	InboundPrompt     string        `env:"DEFAULT_INBOUND_PROMPT"`
}

type PromptsConfig struct {
	S3Bucket         string        `env:"PROMPT_S3_BUCKET"`
	File             string        `env:"PROMPT_FILE"`
	CacheTTL         time.Duration `env:"PROMPT_CACHE_TTL" envDefault:"5m"`
	DefaultAssistant string        `env:"PROMPT_DEFAULT_ASSISTANT" envDefault:"esther"`
	Preload          []string      `env:"PROMPT_PRELOAD" envSeparator:","`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if c.Vonage.PrivateKey == "" && c.Vonage.PrivateKeyPath != "" {
		b, err := os.ReadFile(c.Vonage.PrivateKeyPath)
		if err != nil {
			return Config{}, fmt.Errorf("VONAGE_PRIVATE_KEY_PATH: %w", err)
		}
		c.Vonage.PrivateKey = string(b)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills derived defaults.
func (c *Config) Validate() error {
	var errs []error

	c.App.Env = strings.TrimSpace(c.App.Env)
	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 20 * time.Second
	}

	if c.Nova.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("NOVA_MAX_TOKENS must be > 0, got %d", c.Nova.MaxTokens))
	}
	if c.Nova.TopP <= 0 || c.Nova.TopP > 1 {
		errs = append(errs, fmt.Errorf("NOVA_TOP_P must be in (0, 1], got %v", c.Nova.TopP))
	}
	if c.Nova.Temperature < 0 || c.Nova.Temperature > 1 {
		errs = append(errs, fmt.Errorf("NOVA_TEMPERATURE must be in [0, 1], got %v", c.Nova.Temperature))
	}
	if c.Nova.AudioQueueMax <= 0 {
		errs = append(errs, fmt.Errorf("AUDIO_QUEUE_MAX must be > 0, got %d", c.Nova.AudioQueueMax))
	}
	if c.Nova.DrainTimeout <= 0 {
		c.Nova.DrainTimeout = 5 * time.Second
	}

	if c.Vonage.WebhookBaseURL == "" {
		errs = append(errs, errors.New("WEBHOOK_BASE_URL is required"))
	} else if u, err := url.Parse(c.Vonage.WebhookBaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("WEBHOOK_BASE_URL must be an absolute url, got %q", c.Vonage.WebhookBaseURL))
	}
	if c.IsProduction() {
		if c.Vonage.ApplicationID == "" {
			errs = append(errs, errors.New("VONAGE_APPLICATION_ID is required in production"))
		}
		if c.Vonage.PrivateKey == "" {
			errs = append(errs, errors.New("VONAGE_PRIVATE_KEY or VONAGE_PRIVATE_KEY_PATH is required in production"))
		}
		if c.Vonage.OutboundNumber == "" {
			errs = append(errs, errors.New("VONAGE_OUTBOUND_NUMBER is required in production"))
		}
	}

	if c.Calls.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_CALLS must be >= 0, got %d", c.Calls.MaxConcurrent))
	}
	if c.Calls.FrequencyLookback <= 0 {
		c.Calls.FrequencyLookback = 24 * time.Hour
	}
	if _, err := calls.ScheduleParser.Parse(c.Calls.ReaperSchedule); err != nil {
		errs = append(errs, fmt.Errorf("CALL_REAPER_SCHEDULE is invalid: %v", err))
	}

	if c.Prompts.S3Bucket != "" && c.Prompts.File != "" {
		errs = append(errs, errors.New("set only one of PROMPT_S3_BUCKET and PROMPT_FILE"))
	}
	if c.Prompts.CacheTTL <= 0 {
		c.Prompts.CacheTTL = 5 * time.Minute
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// Inference is the default model sampling configuration for new calls.
func (c Config) Inference() sonic.InferenceConfig {
	return sonic.InferenceConfig{
		MaxTokens:   c.Nova.MaxTokens,
		TopP:        c.Nova.TopP,
		Temperature: c.Nova.Temperature,
	}
}

// VonageEnabled reports whether outbound dialing and hangup can be signed.
func (c Config) VonageEnabled() bool {
	return c.Vonage.ApplicationID != "" && c.Vonage.PrivateKey != ""
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
