package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultSlackChannel is used when no channel is configured.
const DefaultSlackChannel = "#monologue"

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app" toml:"app"`
	Archive ArchiveConfig     `yaml:"archive" toml:"archive"`
	SQLite  SQLiteConfig      `yaml:"sqlite" toml:"sqlite"`
	Links   LinksConfig       `yaml:"links" toml:"links"`
	Auth    AuthConfig        `yaml:"auth" toml:"auth"`
	Targets TargetsConfig     `yaml:"targets" toml:"targets"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Archive.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Targets.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level" toml:"log_level"`
	LogFormat string     `yaml:"log_format" toml:"log_format"`
	HTTP      HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatText
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatText, LogFormatJSON)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ArchiveConfig holds the archive and inbox directories. An empty Inbox
// disables import and watch.
type ArchiveConfig struct {
	Path  string `yaml:"path" toml:"path"`
	Inbox string `yaml:"inbox" toml:"inbox"`
}

// Validate validates the archive configuration.
func (c *ArchiveConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	); err != nil {
		return err
	}
	if c.Inbox != "" && filepath.Clean(c.Inbox) == filepath.Clean(c.Path) {
		return fmt.Errorf("archive: inbox must differ from the archive directory")
	}
	return nil
}

// SQLiteConfig holds SQLite index configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// LinksConfig controls how content-service links are made public.
type LinksConfig struct {
	Workspace string `yaml:"workspace" toml:"workspace"`
}

// AuthConfig holds API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// TargetsConfig holds per-target credentials. A target whose credentials are
// empty is reported as skipped rather than failing the configuration.
type TargetsConfig struct {
	Notion     NotionConfig     `yaml:"notion" toml:"notion"`
	Buttondown ButtondownConfig `yaml:"buttondown" toml:"buttondown"`
	Slack      SlackConfig      `yaml:"slack" toml:"slack"`
}

// Validate validates every target's configuration.
func (c *TargetsConfig) Validate() error {
	if err := c.Notion.Validate(); err != nil {
		return fmt.Errorf("notion: %w", err)
	}
	if err := c.Buttondown.Validate(); err != nil {
		return fmt.Errorf("buttondown: %w", err)
	}
	if err := c.Slack.Validate(); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}

// NotionConfig configures the content-page target.
type NotionConfig struct {
	Token        string `yaml:"token" toml:"token"`
	ParentPageID string `yaml:"parent_page_id" toml:"parent_page_id"`
	BaseURL      string `yaml:"base_url" toml:"base_url"`
}

// Enabled reports whether both the token and the parent page are configured.
func (c *NotionConfig) Enabled() bool { return c.Token != "" && c.ParentPageID != "" }

// Missing names the environment variable that keeps the target disabled, or ""
// when it is enabled.
func (c *NotionConfig) Missing() string {
	switch {
	case c.Token == "":
		return "NOTION_TOKEN"
	case c.ParentPageID == "":
		return "NOTION_PARENT_PAGE_ID"
	}
	return ""
}

// Validate validates the Notion configuration. Missing credentials are not an
// error; the target is reported as skipped.
func (c *NotionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
	)
}

// ButtondownConfig configures the newsletter target.
type ButtondownConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// Enabled reports whether credentials are configured.
func (c *ButtondownConfig) Enabled() bool { return c.APIKey != "" }

// Validate validates the Buttondown configuration.
func (c *ButtondownConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
	)
}

var slackChannelRe = regexp.MustCompile(`^(#[a-z0-9_-]+|[CGD][A-Z0-9]+)$`)

// SlackConfig configures the chat target. Channel is "#name" or a
// conversation id.
type SlackConfig struct {
	Token   string `yaml:"token" toml:"token"`
	Channel string `yaml:"channel" toml:"channel"`
	APIURL  string `yaml:"api_url" toml:"api_url"`
}

// Enabled reports whether credentials are configured.
func (c *SlackConfig) Enabled() bool { return c.Token != "" }

// Validate validates the Slack configuration.
func (c *SlackConfig) Validate() error {
	if c.Channel == "" {
		c.Channel = DefaultSlackChannel
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Channel, validation.Match(slackChannelRe)),
		validation.Field(&c.APIURL, is.URL),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
// Target credentials default to their environment variables.
func NewDefaultConfig() *Config {
	channel := os.Getenv("SLACK_CHANNEL")
	if channel == "" {
		channel = DefaultSlackChannel
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatText,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Archive: ArchiveConfig{
			Path:  "./archive",
			Inbox: "./inbox",
		},
		SQLite: SQLiteConfig{
			Path: "./monologue.db",
		},
		Links: LinksConfig{
			Workspace: os.Getenv("NOTION_WORKSPACE"),
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Targets: TargetsConfig{
			Notion: NotionConfig{
				Token:        os.Getenv("NOTION_TOKEN"),
				ParentPageID: os.Getenv("NOTION_PARENT_PAGE_ID"),
			},
			Buttondown: ButtondownConfig{
				APIKey: os.Getenv("BUTTONDOWN_API_KEY"),
			},
			Slack: SlackConfig{
				Token:   os.Getenv("SLACK_BOT_TOKEN"),
				Channel: channel,
			},
		},
	}
}
