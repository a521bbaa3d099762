// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mail-to-chat pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxMessageLength = 3000
	minMaxMessageLength     = 16

	defaultNoticeSender  = "Amazon Web Services <no-reply-aws@amazon.com>"
	defaultNoticeSubject = "Amazon SES Setup Notification"

	defaultSecretName = "MailSlack/SlackBotToken"
	defaultSecretKey  = "SLACK_BOT_TOKEN"
)

// Chat providers.
const (
	ProviderSlack      = "slack"
	ProviderMattermost = "mattermost"
	ProviderStdout     = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Routing RoutingConfig `yaml:"routing"`
	Notice  NoticeConfig  `yaml:"notice"`
	Chat    ChatConfig    `yaml:"chat"`
	Secret  SecretConfig  `yaml:"secret"`
	AWS     AWSConfig     `yaml:"aws"`
	Logging LoggingConfig `yaml:"logging"`
	Sentry  SentryConfig  `yaml:"sentry"`
}

// RoutingConfig holds recipient routing and dispatch settings.
type RoutingConfig struct {
	Domain           string `yaml:"domain"`
	ErrorChannel     string `yaml:"error_channel"`
	MaxMessageLength int    `yaml:"max_message_length"`
}

// NoticeConfig holds the provider-notice signature. Both fields must match
// exactly for a message to be skipped.
type NoticeConfig struct {
	Sender  string `yaml:"sender"`
	Subject string `yaml:"subject"`
}

// ChatConfig holds chat backend configuration.
type ChatConfig struct {
	Provider   string           `yaml:"provider"`
	APIURL     string           `yaml:"api_url"`
	Token      string           `yaml:"token"`
	Mattermost MattermostConfig `yaml:"mattermost"`
}

// MattermostConfig holds Mattermost server settings.
type MattermostConfig struct {
	URL  string `yaml:"url"`
	Team string `yaml:"team"`
}

// SecretConfig locates the bot credential in Secrets Manager.
type SecretConfig struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// AWSConfig holds optional AWS overrides. Empty values use the SDK's
// default chain.
type AWSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SentryConfig holds error reporting configuration.
type SentryConfig struct {
	DSN string `yaml:"dsn"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// Validate reports every missing or invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Routing.Domain == "" {
		errs = append(errs, errors.New("routing.domain (DOMAIN_NAME) is required"))
	}
	if c.Routing.ErrorChannel == "" {
		errs = append(errs, errors.New("routing.error_channel (SLACK_ERROR_CHANNEL) is required"))
	}
	if c.Routing.MaxMessageLength < minMaxMessageLength {
		errs = append(errs, fmt.Errorf("routing.max_message_length must be at least %d, got %d",
			minMaxMessageLength, c.Routing.MaxMessageLength))
	}

	switch c.Chat.Provider {
	case ProviderSlack, ProviderStdout:
	case ProviderMattermost:
		if c.Chat.Mattermost.URL == "" || c.Chat.Mattermost.Team == "" {
			errs = append(errs, errors.New("chat.mattermost.url and chat.mattermost.team are required for the mattermost provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown chat provider %q", c.Chat.Provider))
	}

	return errors.Join(errs...)
}

// StaticToken returns true if the bot credential is configured directly
// instead of being read from Secrets Manager.
func (c *Config) StaticToken() bool {
	return c.Chat.Token != ""
}

// StaticAWSCredentials returns true if both AWS access key fields are set.
func (c *Config) StaticAWSCredentials() bool {
	return c.AWS.AccessKeyID != "" && c.AWS.SecretAccessKey != ""
}

// SentryEnabled returns true if a Sentry DSN is configured.
func (c *Config) SentryEnabled() bool {
	return c.Sentry.DSN != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Routing.MaxMessageLength = defaultMaxMessageLength
	c.Notice.Sender = defaultNoticeSender
	c.Notice.Subject = defaultNoticeSubject
	c.Chat.Provider = ProviderSlack
	c.Secret.Name = defaultSecretName
	c.Secret.Key = defaultSecretKey
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("DOMAIN_NAME"); v != "" {
		c.Routing.Domain = v
	}
	if v := firstEnv("SLACK_ERROR_CHANNEL", "ERROR_CHANNEL"); v != "" {
		c.Routing.ErrorChannel = v
	}
	if v := os.Getenv("MAX_MESSAGE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Routing.MaxMessageLength = n
		}
	}

	if v := os.Getenv("PROVIDER_NOTICE_SENDER"); v != "" {
		c.Notice.Sender = v
	}
	if v := os.Getenv("PROVIDER_NOTICE_SUBJECT"); v != "" {
		c.Notice.Subject = v
	}

	if v := os.Getenv("CHAT_PROVIDER"); v != "" {
		c.Chat.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("SLACK_API_URL"); v != "" {
		c.Chat.APIURL = v
	}
	if v := os.Getenv("CHAT_TOKEN"); v != "" {
		c.Chat.Token = v
	}
	if v := os.Getenv("MATTERMOST_URL"); v != "" {
		c.Chat.Mattermost.URL = v
	}
	if v := os.Getenv("MATTERMOST_TEAM"); v != "" {
		c.Chat.Mattermost.Team = v
	}

	if v := os.Getenv("SLACK_BOT_TOKEN_SECRET_NAME"); v != "" {
		c.Secret.Name = v
	}
	if v := os.Getenv("SLACK_BOT_TOKEN_SECRET_KEY"); v != "" {
		c.Secret.Key = v
	}

	if v := os.Getenv("AWS_REGION"); v != "" {
		c.AWS.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		c.AWS.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		c.AWS.SecretAccessKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		c.Sentry.DSN = v
	}
}

// firstEnv returns the value of the first non-empty variable in names.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
