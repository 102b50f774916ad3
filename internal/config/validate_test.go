package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	issues := Validate(&cfg)
	assert.Empty(t, issues)
}

func TestValidate_BaseURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"http://localhost:5000/api", true},
		{"https://pbx.example.com/api", true},
		{"", false},
		{"localhost:5000", false},
		{"ftp://pbx/api", false},
		{"/api", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := Defaults()
			cfg.API.BaseURL = tt.url
			issues := Validate(&cfg)
			if tt.valid {
				assert.Empty(t, issues)
			} else {
				assert.NotEmpty(t, issues)
				assert.Equal(t, "api.baseUrl", issues[0].Path)
			}
		})
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.API.TimeoutSeconds = -1
	issues := Validate(&cfg)
	assert.NotEmpty(t, issues)
	assert.Equal(t, "api.timeoutSeconds", issues[0].Path)
}

func TestValidate_HubPaths(t *testing.T) {
	cfg := Defaults()
	cfg.Hubs.SIPPath = "hubs/sip"
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "hubs.sipPath", issues[0].Path)
}

func TestValidate_NegativeDelay(t *testing.T) {
	cfg := Defaults()
	cfg.Hubs.ReconnectDelaysMs = []int{0, -5}
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "hubs.reconnectDelaysMs[1]", issues[0].Path)
}

func TestValidate_Connect(t *testing.T) {
	cfg := Defaults()
	cfg.Connect.MaxAttempts = -1
	cfg.Connect.BaseDelayMs = -1
	issues := Validate(&cfg)
	assert.Len(t, issues, 2)
}

func TestValidate_StateStore(t *testing.T) {
	for _, store := range []string{"sqlite", "memory", ""} {
		cfg := Defaults()
		cfg.State.Store = store
		assert.Empty(t, Validate(&cfg), "store %q should be valid", store)
	}

	cfg := Defaults()
	cfg.State.Store = "redis"
	issues := Validate(&cfg)
	assert.NotEmpty(t, issues)
	assert.Equal(t, "state.store", issues[0].Path)
}

func TestValidate_LogLevel(t *testing.T) {
	for _, level := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"} {
		cfg := Defaults()
		cfg.Logging.Level = level
		assert.Empty(t, Validate(&cfg), "level %q should be valid", level)
	}

	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	issues := Validate(&cfg)
	assert.NotEmpty(t, issues)
	assert.Equal(t, "logging.level", issues[0].Path)
}

func TestValidate_ConsoleStyle(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.ConsoleStyle = "fancy"
	issues := Validate(&cfg)
	assert.NotEmpty(t, issues)
	assert.Equal(t, "logging.consoleStyle", issues[0].Path)
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "api.baseUrl", Message: "bad"}
	assert.Equal(t, "api.baseUrl: bad", issue.String())
}
