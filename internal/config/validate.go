package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// API validation
	if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		issues = append(issues, ValidationIssue{
			Path:    "api.baseUrl",
			Message: fmt.Sprintf("must be an absolute http(s) URL, got %q", cfg.API.BaseURL),
		})
	}
	if cfg.API.TimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "api.timeoutSeconds",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.API.TimeoutSeconds),
		})
	}

	// Hub validation
	for name, p := range map[string]string{"hubs.sipPath": cfg.Hubs.SIPPath, "hubs.chatPath": cfg.Hubs.ChatPath} {
		if p != "" && !strings.HasPrefix(p, "/") {
			issues = append(issues, ValidationIssue{
				Path:    name,
				Message: fmt.Sprintf("must start with '/', got %q", p),
			})
		}
	}
	for i, d := range cfg.Hubs.ReconnectDelaysMs {
		if d < 0 {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("hubs.reconnectDelaysMs[%d]", i),
				Message: fmt.Sprintf("must be >= 0, got %d", d),
			})
		}
	}

	// Connect validation
	if cfg.Connect.MaxAttempts < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "connect.maxAttempts",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Connect.MaxAttempts),
		})
	}
	if cfg.Connect.BaseDelayMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "connect.baseDelayMs",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Connect.BaseDelayMs),
		})
	}

	// State validation
	validStores := []string{"sqlite", "memory"}
	if cfg.State.Store != "" && !slices.Contains(validStores, cfg.State.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "state.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.State.Store),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	return issues
}
