package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigReadsEnvironment(t *testing.T) {
	t.Setenv("NOTION_TOKEN", "secret_n")
	t.Setenv("NOTION_PARENT_PAGE_ID", "parent")
	t.Setenv("BUTTONDOWN_API_KEY", "bd")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-1")
	t.Setenv("SLACK_CHANNEL", "")

	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if !cfg.Targets.Notion.Enabled() || !cfg.Targets.Buttondown.Enabled() || !cfg.Targets.Slack.Enabled() {
		t.Errorf("targets = %+v", cfg.Targets)
	}
	if cfg.Targets.Slack.Channel != DefaultSlackChannel {
		t.Errorf("channel = %q", cfg.Targets.Slack.Channel)
	}
}

func TestTargetsConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *TargetsConfig)
		wantErr string
	}{
		{"all empty", func(c *TargetsConfig) {}, ""},
		{"notion without parent", func(c *TargetsConfig) { c.Notion.Token = "t" }, ""},
		{"notion with parent", func(c *TargetsConfig) { c.Notion.Token = "t"; c.Notion.ParentPageID = "p" }, ""},
		{"bad base url", func(c *TargetsConfig) { c.Buttondown.BaseURL = "not a url" }, "buttondown"},
		{"channel id", func(c *TargetsConfig) { c.Slack.Channel = "C012ABC" }, ""},
		{"bad channel", func(c *TargetsConfig) { c.Slack.Channel = "general chat" }, "slack"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c TargetsConfig
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestNotionConfig_TokenWithoutParentIsDisabled(t *testing.T) {
	t.Setenv("NOTION_TOKEN", "secret_n")
	t.Setenv("NOTION_PARENT_PAGE_ID", "")

	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("missing parent page should not invalidate config: %v", err)
	}
	if cfg.Targets.Notion.Enabled() {
		t.Error("notion should be disabled without a parent page")
	}
	if got := cfg.Targets.Notion.Missing(); got != "NOTION_PARENT_PAGE_ID" {
		t.Errorf("Missing() = %q", got)
	}

	cfg.Targets.Notion.Token = ""
	if got := cfg.Targets.Notion.Missing(); got != "NOTION_TOKEN" {
		t.Errorf("Missing() = %q", got)
	}
}

func TestArchiveConfig_InboxMustDiffer(t *testing.T) {
	c := ArchiveConfig{Path: "./archive", Inbox: "archive"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when inbox is the archive")
	}
	c.Inbox = ""
	if err := c.Validate(); err != nil {
		t.Fatalf("empty inbox should pass: %v", err)
	}
}

func TestApplicationConfig_LogFormat(t *testing.T) {
	c := ApplicationConfig{HTTP: HTTPConfig{Port: 1}}
	if err := c.Validate(); err != nil || c.LogFormat != LogFormatText {
		t.Fatalf("default format: %v %q", err, c.LogFormat)
	}
	c.LogFormat = "xml"
	if err := c.Validate(); err == nil {
		t.Fatal("xml format should fail")
	}
}
