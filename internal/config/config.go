package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level dealradar configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Provider ProviderConfig `yaml:"provider"`
	CRM      CRMConfig      `yaml:"crm"`
	Plan     PlanConfig     `yaml:"plan"`
	Calendar CalendarConfig `yaml:"calendar"`
	Mailbox  MailboxConfig  `yaml:"mailbox"`
	Slack    SlackConfig    `yaml:"slack"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Search   SearchConfig   `yaml:"search"`
	API      APIConfig      `yaml:"api"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type    string `yaml:"type"` // "anthropic" (default) or "openai"
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// CRMConfig holds the deal-record store settings.
type CRMConfig struct {
	APIKey   string   `yaml:"api_key"`
	BaseURL  string   `yaml:"base_url"`
	Object   string   `yaml:"object"`
	CacheTTL Duration `yaml:"cache_ttl"`
}

// Duration parses YAML strings like "5m" or "1h30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// PlanConfig holds the production-calendar document store settings.
type PlanConfig struct {
	APIKey     string `yaml:"api_key"`
	DatabaseID string `yaml:"database_id"`
	BaseURL    string `yaml:"base_url"`
}

// CalendarConfig holds the team calendar settings.
type CalendarConfig struct {
	APIKey     string `yaml:"api_key"`
	CalendarID string `yaml:"calendar_id"`
	HomeDomain string `yaml:"home_domain"`
	BaseURL    string `yaml:"base_url"`
}

// MailboxConfig holds the IMAP mailbox settings. Empty host disables
// the mailbox and every feature built on it.
type MailboxConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
	Folder   string `yaml:"folder"`
}

// SlackConfig holds the Slack connection. Socket mode needs both
// tokens.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
	Channel  string `yaml:"channel"` // default channel for automation posts
}

// WebhookConfig holds inbound webhook settings.
type WebhookConfig struct {
	Secret string `yaml:"secret"` // HMAC signing secret; empty disables the endpoint
}

// SearchConfig holds web search settings for the research agent.
type SearchConfig struct {
	BraveAPIKey string `yaml:"brave_api_key"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Key  string `yaml:"api_key"`
}

// JobsConfig controls the automation schedule. Schedules maps job name
// to a cron expression, overriding the job's default.
type JobsConfig struct {
	Disabled  []string          `yaml:"disabled"`
	Schedules map[string]string `yaml:"schedules"`
}

// JobDisabled reports whether a job name is on the disabled list.
func (j JobsConfig) JobDisabled(name string) bool {
	for _, d := range j.Disabled {
		if d == name {
			return true
		}
	}
	return false
}

// Load reads a YAML config file, expands ${ENV} references, applies
// defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references with environment values.
// Unset variables expand to the empty string, which validation then
// catches for required fields. Bare $VAR is left alone so passwords
// survive.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "/data"
	}
	if c.Provider.Type == "" {
		c.Provider.Type = "anthropic"
	}
	if c.Provider.Model == "" {
		switch c.Provider.Type {
		case "openai":
			c.Provider.Model = "gpt-4o"
		default:
			c.Provider.Model = "claude-sonnet-4-20250514"
		}
	}
	if c.CRM.Object == "" {
		c.CRM.Object = "deals"
	}
	if c.CRM.CacheTTL == 0 {
		c.CRM.CacheTTL = Duration(5 * time.Minute)
	}
	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = "primary"
	}
	if c.Mailbox.Port == 0 {
		c.Mailbox.Port = 993
	}
	if c.Mailbox.Folder == "" {
		c.Mailbox.Folder = "INBOX"
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Provider.APIKey == "" {
		errs = append(errs, "provider.api_key is required")
	}
	switch c.Provider.Type {
	case "anthropic", "openai":
	default:
		errs = append(errs, fmt.Sprintf("provider.type %q is not supported", c.Provider.Type))
	}

	if c.CRM.APIKey == "" {
		errs = append(errs, "crm.api_key is required")
	}
	if c.CRM.CacheTTL < 0 {
		errs = append(errs, "crm.cache_ttl must not be negative")
	}

	if c.Plan.APIKey != "" && c.Plan.DatabaseID == "" {
		errs = append(errs, "plan.database_id is required when plan.api_key is set")
	}

	if c.Mailbox.Host != "" {
		if c.Mailbox.Username == "" {
			errs = append(errs, "mailbox.username is required when mailbox.host is set")
		}
		if c.Mailbox.Password == "" {
			errs = append(errs, "mailbox.password is required when mailbox.host is set")
		}
	}

	if c.Slack.BotToken != "" && c.Slack.AppToken == "" {
		errs = append(errs, "slack.app_token is required when slack.bot_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
