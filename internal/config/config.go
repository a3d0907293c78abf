package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Simple email check - not exhaustive but catches obvious mistakes.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	envLLMBaseURL       = "TLDRIST_LLM_BASE_URL"
	envLLMModel         = "TLDRIST_LLM_MODEL"
	envLLMAPIKey        = "TLDRIST_LLM_API_KEY"
	envTodoistToken     = "TLDRIST_TODOIST_TOKEN"
	envTodoistProjectID = "TLDRIST_TODOIST_PROJECT_ID"
	envGmailAddress     = "TLDRIST_GMAIL_ADDRESS"
	envGmailPassword    = "TLDRIST_GMAIL_APP_PASSWORD"
	envRecipientEmail   = "TLDRIST_RECIPIENT_EMAIL"
)

// Config holds runtime configuration for the application.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Todoist  TodoistConfig  `yaml:"todoist"`
	Mail     MailConfig     `yaml:"mail"`
	Pipeline PipelineConfig `yaml:"pipeline"`

	// OutputPath receives the composed digest HTML so runs are
	// inspectable without email delivery.
	OutputPath string `yaml:"outputPath"`
	Verbose    bool   `yaml:"verbose"`
}

// LLMConfig describes the OpenAI-compatible generation backend.
type LLMConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"apiKey"`
}

// TodoistConfig wires the task source.
type TodoistConfig struct {
	Token     string `yaml:"token"`
	ProjectID string `yaml:"projectId"`
}

// MailConfig describes digest delivery over SMTP.
type MailConfig struct {
	GmailAddress   string `yaml:"gmailAddress"`
	AppPassword    string `yaml:"appPassword"`
	RecipientEmail string `yaml:"recipientEmail"`
	SMTPHost       string `yaml:"smtpHost"`
	SMTPPort       int    `yaml:"smtpPort"`
}

// PipelineConfig holds the orchestration knobs.
type PipelineConfig struct {
	// MinItems skips the whole run when fewer eligible tasks exist.
	// Zero disables the threshold.
	MinItems int `yaml:"minItems"`
	// MaxItems bounds how many processed items are surfaced; all eligible
	// tasks are still attempted. Zero disables the cap.
	MaxItems int `yaml:"maxItems"`
	// Concurrency bounds the per-task fan-out.
	Concurrency  int           `yaml:"concurrency"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
}

// Load reads YAML configuration (if a path is given) and applies
// environment overrides on top of defaults.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		LLM: LLMConfig{Model: "gpt-4o-mini"},
		Mail: MailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Pipeline: PipelineConfig{
			Concurrency:  8,
			FetchTimeout: 30 * time.Second,
		},
		OutputPath: "digest.html",
	}
}

func (c *Config) applyEnvOverrides() {
	setIfEnv(&c.LLM.BaseURL, envLLMBaseURL)
	setIfEnv(&c.LLM.Model, envLLMModel)
	setIfEnv(&c.LLM.APIKey, envLLMAPIKey)
	setIfEnv(&c.Todoist.Token, envTodoistToken)
	setIfEnv(&c.Todoist.ProjectID, envTodoistProjectID)
	setIfEnv(&c.Mail.GmailAddress, envGmailAddress)
	setIfEnv(&c.Mail.AppPassword, envGmailPassword)
	setIfEnv(&c.Mail.RecipientEmail, envRecipientEmail)
}

func setIfEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate checks the fields required for a non-dry run. Dry runs only need
// the LLM and Todoist settings.
func (c *Config) Validate(dryRun bool) error {
	if strings.TrimSpace(c.Todoist.Token) == "" {
		return fmt.Errorf("%s is required", envTodoistToken)
	}
	if strings.TrimSpace(c.Todoist.ProjectID) == "" {
		return fmt.Errorf("%s is required", envTodoistProjectID)
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}
	if c.Pipeline.MinItems < 0 || c.Pipeline.MaxItems < 0 {
		return fmt.Errorf("pipeline thresholds must not be negative")
	}
	if dryRun {
		return nil
	}
	if c.Mail.GmailAddress != "" && !emailPattern.MatchString(c.Mail.GmailAddress) {
		return fmt.Errorf("mail.gmailAddress %q is not a valid email address", c.Mail.GmailAddress)
	}
	if c.Mail.RecipientEmail != "" && !emailPattern.MatchString(c.Mail.RecipientEmail) {
		return fmt.Errorf("mail.recipientEmail %q is not a valid email address", c.Mail.RecipientEmail)
	}
	return nil
}

// SMTPAddr returns the host:port pair for the configured SMTP server.
func (c MailConfig) SMTPAddr() string {
	return c.SMTPHost + ":" + strconv.Itoa(c.SMTPPort)
}
