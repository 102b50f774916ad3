package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// DefaultReconnectDelaysMs is the steady-state reconnect schedule. The last
// entry repeats until the hub reconnects or is closed.
var DefaultReconnectDelaysMs = []int{0, 2000, 5000, 10000, 15000, 30000}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:5000/api",
			TimeoutSeconds: 30,
		},
		Hubs: HubsConfig{
			SIPPath:           "/hubs/sip",
			ChatPath:          "/hubs/chat",
			ReconnectDelaysMs: append([]int(nil), DefaultReconnectDelaysMs...),
		},
		Connect: ConnectConfig{
			MaxAttempts: 3,
			BaseDelayMs: 1000,
		},
		State: StateConfig{
			Store: "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// Timeout returns the REST timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReconnectDelays returns the reconnect schedule as durations.
func (c HubsConfig) ReconnectDelays() []time.Duration {
	out := make([]time.Duration, len(c.ReconnectDelaysMs))
	for i, ms := range c.ReconnectDelaysMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// BaseDelay returns the linear backoff unit.
func (c ConnectConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}
