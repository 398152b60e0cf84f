package config

import (
	"encoding/json"
	"time"
)

// Config is the top-level service configuration.
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Upstream UpstreamConfig `json:"upstream" mapstructure:"upstream"`
	Session  SessionConfig  `json:"session" mapstructure:"session"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`

	// DataDir holds the sqlite database and log files.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	TemplateDir  string `json:"template_dir" mapstructure:"template_dir"`
	StaticDir    string `json:"static_dir" mapstructure:"static_dir"`
	TickInterval int    `json:"tick_interval" mapstructure:"tick_interval"` // seconds
}

// UpstreamConfig selects and credentials the completion backend.
type UpstreamConfig struct {
	Provider       string  `json:"provider" mapstructure:"provider"` // qianfan, openai, anthropic
	APIKey         string  `json:"api_key" mapstructure:"api_key"`
	BaseURL        string  `json:"base_url" mapstructure:"base_url"`
	Model          string  `json:"model" mapstructure:"model"`
	MaxTokens      int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	RequestTimeout int     `json:"request_timeout" mapstructure:"request_timeout"` // seconds
	ProbeTimeout   int     `json:"probe_timeout" mapstructure:"probe_timeout"`     // seconds
}

// SessionConfig holds session storage settings.
type SessionConfig struct {
	Backend       string `json:"backend" mapstructure:"backend"` // memory, sqlite
	Path          string `json:"path" mapstructure:"path"`       // sqlite file, relative to data_dir
	TTLHours      int    `json:"ttl_hours" mapstructure:"ttl_hours"`
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"` // cron expression
	CookieName    string `json:"cookie_name" mapstructure:"cookie_name"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
}

// TTL returns the session lifetime as a duration.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			TemplateDir:  "web/templates",
			StaticDir:    "web/static",
			TickInterval: 30,
		},
		Upstream: UpstreamConfig{
			Provider:       "qianfan",
			BaseURL:        "https://qianfan.baidubce.com/v2",
			Model:          "ernie-3.5-8k",
			MaxTokens:      1024,
			Temperature:    0.7,
			RequestTimeout: 60,
			ProbeTimeout:   10,
		},
		Session: SessionConfig{
			Backend:       "memory",
			Path:          "sessions.db",
			TTLHours:      24,
			SweepSchedule: "@hourly",
			CookieName:    "shitan_session",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// String returns a JSON representation of the config. The API key is masked
// so the result is safe to log.
func (c *Config) String() string {
	clone := *c
	if clone.Upstream.APIKey != "" {
		clone.Upstream.APIKey = "***"
	}
	data, _ := json.MarshalIndent(&clone, "", "  ")
	return string(data)
}
