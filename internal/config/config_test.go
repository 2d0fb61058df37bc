package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:     AppConfig{Env: "local", Port: 8080},
		Nova:    NovaConfig{MaxTokens: 1024, TopP: 0.9, Temperature: 0.7, AudioQueueMax: 512},
		Vonage:  VonageConfig{WebhookBaseURL: "https://voice.example.com"},
		Calls:   CallsConfig{ReaperSchedule: "* * * * *"},
		Prompts: PromptsConfig{},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.HasPrefix(err.Error(), "config errors:") {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if !strings.Contains(err.Error(), "WEBHOOK_BASE_URL is required") {
		t.Fatalf("expected webhook base url error, got %v", err)
	}
}

func TestValidate_LocalFillsDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.App.ShutdownTimeout != 20*time.Second || c.Nova.DrainTimeout != 5*time.Second {
		t.Fatalf("expected timeouts defaulted: %+v %+v", c.App, c.Nova)
	}
	if c.Calls.FrequencyLookback != 24*time.Hour || c.Prompts.CacheTTL != 5*time.Minute {
		t.Fatalf("expected lookback and cache ttl defaulted")
	}
	if c.VonageEnabled() {
		t.Fatalf("expected vonage disabled without credentials")
	}
}

func TestValidate_ProductionRequiresVonage(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for production without vonage credentials")
	}
	if !strings.Contains(err.Error(), "VONAGE_APPLICATION_ID") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestValidate_RejectsBadScheduleAndSampling(t *testing.T) {
	c := validLocal()
	c.Calls.ReaperSchedule = "whenever"
	c.Nova.TopP = 1.5
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "CALL_REAPER_SCHEDULE") || !strings.Contains(err.Error(), "NOVA_TOP_P") {
		t.Fatalf("expected schedule and top_p errors, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "private.key")
	if err := os.WriteFile(keyPath, []byte("PEM"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("WEBHOOK_BASE_URL", "https://voice.example.com")
	t.Setenv("VONAGE_APPLICATION_ID", "app")
	t.Setenv("VONAGE_PRIVATE_KEY_PATH", keyPath)
	t.Setenv("CALL_FREQUENCY_EXEMPT", "13472005533,15551234567")
	t.Setenv("NOVA_TEMPERATURE", "0.5")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9090" {
		t.Fatalf("unexpected addr %s", c.HTTPAddr())
	}
	if c.Vonage.PrivateKey != "PEM" || !c.VonageEnabled() {
		t.Fatalf("expected private key read from path")
	}
	if len(c.Calls.FrequencyExempt) != 2 {
		t.Fatalf("unexpected exempt list %v", c.Calls.FrequencyExempt)
	}
	inf := c.Inference()
	if inf.MaxTokens != 1024 || inf.TopP != 0.9 || inf.Temperature != 0.5 {
		t.Fatalf("unexpected inference %+v", inf)
	}
	if c.Vonage.InboundGreeting == "" || c.Prompts.DefaultAssistant != "esther" {
		t.Fatalf("expected defaults applied")
	}
}
