package config

// Config is the root configuration for sipdash.
type Config struct {
	API     APIConfig     `yaml:"api,omitempty"`
	Hubs    HubsConfig    `yaml:"hubs,omitempty"`
	Connect ConnectConfig `yaml:"connect,omitempty"`
	State   StateConfig   `yaml:"state,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// APIConfig points the client at the backend REST API.
type APIConfig struct {
	BaseURL        string `yaml:"baseUrl,omitempty"`        // e.g. http://localhost:5000/api
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"` // per-request client timeout
	Token          string `yaml:"token,omitempty"`          // bearer token; supports ${ENV_VAR}
}

// HubsConfig locates the push hubs. Paths are resolved against the API
// origin, not against BaseURL's path.
type HubsConfig struct {
	SIPPath           string `yaml:"sipPath,omitempty"`
	ChatPath          string `yaml:"chatPath,omitempty"`
	ReconnectDelaysMs []int  `yaml:"reconnectDelaysMs,omitempty"`
}

// ConnectConfig controls first-time connection establishment.
type ConnectConfig struct {
	MaxAttempts int `yaml:"maxAttempts,omitempty"`
	BaseDelayMs int `yaml:"baseDelayMs,omitempty"`
}

// StateConfig selects where persisted client state lives.
type StateConfig struct {
	Store string `yaml:"store,omitempty"` // "sqlite" | "memory"
	Path  string `yaml:"path,omitempty"`  // sqlite file; defaults to <data>/state.db
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// MetricsConfig exposes Prometheus metrics while watching.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // empty disables the endpoint
}
