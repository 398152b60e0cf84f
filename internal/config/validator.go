package config

import (
	"fmt"
	"strings"
)

var validProviders = []string{"qianfan", "openai", "anthropic"}

var validBackends = []string{"memory", "sqlite"}

// Validate checks the configuration for values the service cannot start with.
// A missing API key is allowed here: the server then runs in degraded mode
// and answers chat requests with a fixed unavailable reply.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if !contains(validProviders, c.Upstream.Provider) {
		return fmt.Errorf("invalid upstream provider %q (must be: %s)",
			c.Upstream.Provider, strings.Join(validProviders, ", "))
	}
	if c.Upstream.Model == "" {
		return fmt.Errorf("upstream model is required")
	}
	if c.Upstream.MaxTokens <= 0 {
		return fmt.Errorf("upstream max_tokens must be positive")
	}
	if c.Upstream.Temperature < 0 || c.Upstream.Temperature > 2 {
		return fmt.Errorf("upstream temperature must be in [0, 2]")
	}
	if c.Upstream.APIKey != "" {
		if err := validateAPIKey(c.Upstream.APIKey, c.Upstream.Provider); err != nil {
			return err
		}
	}

	if !contains(validBackends, c.Session.Backend) {
		return fmt.Errorf("invalid session backend %q (must be: %s)",
			c.Session.Backend, strings.Join(validBackends, ", "))
	}
	if c.Session.Backend == "sqlite" && c.Session.Path == "" {
		return fmt.Errorf("session path is required for the sqlite backend")
	}
	if c.Session.TTLHours <= 0 {
		return fmt.Errorf("session ttl_hours must be positive")
	}

	return nil
}

func validateAPIKey(key, provider string) error {
	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "qianfan":
		// Qianfan issues both bce-v3/ bearer keys and legacy AK/SK pairs,
		// no prefix check is reliable.
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
