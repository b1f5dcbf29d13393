// Package config handles the JoyTrunk global configuration document
// (<root>/config.json) and its per-field legacy migration.
//
// Loading never fails: a missing, malformed, or legacy-shaped document is
// always normalized into a structurally complete Config. The migration rule
// per field is new nested location → legacy flat field → schema default.
package config

import (
	"encoding/json"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Schema defaults shared with the dispatcher.
const (
	DefaultModel     = "gpt-3.5-turbo"
	DefaultMaxTokens = 2048
	DefaultHost      = "localhost"
	DefaultPort      = 32890
)

// Config is the global JoyTrunk configuration document.
type Config struct {
	Version      int                `json:"version"`
	JoytrunkRoot *string            `json:"joytrunkRoot"`
	OwnerID      *string            `json:"ownerId"`
	Server       ServerConfig       `json:"server"`
	Agents       AgentsConfig       `json:"agents"`
	Channels     map[string]Channel `json:"channels"`
	Providers    ProvidersConfig    `json:"providers"`
}

// ServerConfig is the local gateway listen address.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// AgentsConfig wraps the fallback generation parameters.
type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

// AgentDefaults holds fallback generation parameters. Pointer fields
// distinguish "unset, inherit the built-in default" from an explicit value.
type AgentDefaults struct {
	DefaultEmployeeID *string  `json:"defaultEmployeeId"`
	Model             string   `json:"model,omitempty"`
	MaxTokens         *int     `json:"maxTokens,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
}

// Channel enables or disables a message channel.
type Channel struct {
	Enabled bool `json:"enabled"`
}

// ProvidersConfig holds LLM provider settings.
type ProvidersConfig struct {
	// Joytrunk is the remote router endpoint, opaque to the gateway.
	Joytrunk map[string]any `json:"joytrunk"`
	// Custom is the owner's own OpenAI-compatible endpoint.
	Custom CustomProvider `json:"custom"`
}

// CustomProvider is the owner-supplied LLM credential set. Empty APIKey and
// nil APIBase mean "unset"; the dispatcher then falls back to a placeholder.
type CustomProvider struct {
	APIKey  string  `json:"apiKey"`
	APIBase *string `json:"apiBase"`
	Model   string  `json:"model"`
}

// HasCredentials reports whether at least one credential field is set.
func (p CustomProvider) HasCredentials() bool {
	return p.APIKey != "" || (p.APIBase != nil && *p.APIBase != "")
}

// DefaultConfig returns a fresh, structurally complete configuration.
func DefaultConfig() *Config {
	maxTokens := DefaultMaxTokens
	temperature := 0.1
	return &Config{
		Version: 1,
		Server:  ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Agents: AgentsConfig{Defaults: AgentDefaults{
			Model:       DefaultModel,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		}},
		Channels: map[string]Channel{
			"cli":      {Enabled: true},
			"web":      {Enabled: true},
			"feishu":   {Enabled: false},
			"telegram": {Enabled: false},
			"qq":       {Enabled: false},
		},
		Providers: ProvidersConfig{
			Joytrunk: map[string]any{},
			Custom:   DefaultCustomProvider(),
		},
	}
}

// DefaultCustomProvider returns the empty-credential provider value.
func DefaultCustomProvider() CustomProvider {
	return CustomProvider{APIKey: "", APIBase: nil, Model: DefaultModel}
}

// MaxTokens returns the effective completion budget with the schema default.
func (c *Config) MaxTokens() int {
	if c != nil && c.Agents.Defaults.MaxTokens != nil {
		return *c.Agents.Defaults.MaxTokens
	}
	return DefaultMaxTokens
}

// DefaultAgentModel returns the fallback model name with the schema default.
func (c *Config) DefaultAgentModel() string {
	if c != nil && c.Agents.Defaults.Model != "" {
		return c.Agents.Defaults.Model
	}
	return DefaultModel
}

// OwnedBy reports whether the document's owner matches ownerID.
func (c *Config) OwnedBy(ownerID string) bool {
	return c != nil && c.OwnerID != nil && *c.OwnerID == ownerID
}

// Clone returns a deep copy via a JSON round trip.
func (c *Config) Clone() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		return DefaultConfig()
	}
	out := &Config{}
	if err := json.Unmarshal(data, out); err != nil {
		return DefaultConfig()
	}
	return out
}

// ToMap renders the configuration as a generic JSON object, the shape used
// for deep-merging employee overrides.
func (c *Config) ToMap() map[string]any {
	data, err := json.Marshal(c)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Migrate normalizes an arbitrary decoded JSON document into the current
// schema. It is total (any input yields a complete Config, nil included) and
// idempotent (migrating an already-current document is a no-op).
func Migrate(data map[string]any) *Config {
	cfg := DefaultConfig()
	if data == nil {
		return cfg
	}

	if v, ok := asInt(data["version"]); ok {
		cfg.Version = v
	}
	if s, ok := asString(data["joytrunkRoot"]); ok {
		cfg.JoytrunkRoot = &s
	}
	if s, ok := asString(data["ownerId"]); ok {
		cfg.OwnerID = &s
	}

	// Server address: nested server object, else legacy flat gatewayPort or
	// gateway.port.
	if srv, ok := asObject(data["server"]); ok {
		if s, ok := asString(srv["host"]); ok {
			cfg.Server.Host = s
		}
		if p, ok := asInt(srv["port"]); ok {
			cfg.Server.Port = p
		}
	} else if p, ok := asInt(data["gatewayPort"]); ok {
		cfg.Server.Port = p
	} else if gw, ok := asObject(data["gateway"]); ok {
		if p, ok := asInt(gw["port"]); ok {
			cfg.Server.Port = p
		}
	}

	// Generation defaults: nested agents.defaults, else legacy flat
	// defaultEmployeeId with schema defaults for the rest.
	if defaults, ok := nestedObject(data, "agents", "defaults"); ok {
		cfg.Agents.Defaults = migrateDefaults(defaults)
	} else if s, ok := asString(data["defaultEmployeeId"]); ok {
		cfg.Agents.Defaults.DefaultEmployeeID = &s
	}

	if channels, ok := asObject(data["channels"]); ok {
		out := make(map[string]Channel, len(channels))
		for name, v := range channels {
			ch := Channel{}
			if obj, ok := asObject(v); ok {
				if enabled, ok := obj["enabled"].(bool); ok {
					ch.Enabled = enabled
				}
			}
			out[name] = ch
		}
		cfg.Channels = out
	}

	// Custom provider: legacy flat customLLM wins over providers.custom;
	// either apiBase or baseUrl is accepted, output is always apiBase.
	raw, ok := asObject(data["customLLM"])
	if !ok {
		raw, ok = nestedObject(data, "providers", "custom")
	}
	if ok {
		custom := DefaultCustomProvider()
		if s, has := asString(raw["apiKey"]); has {
			custom.APIKey = s
		}
		if s, has := asString(raw["apiBase"]); has {
			custom.APIBase = &s
		} else if s, has := asString(raw["baseUrl"]); has {
			custom.APIBase = &s
		}
		if s, has := asString(raw["model"]); has {
			custom.Model = s
		}
		cfg.Providers.Custom = custom
	}
	if providers, ok := asObject(data["providers"]); ok {
		if jt, ok := asObject(providers["joytrunk"]); ok {
			cfg.Providers.Joytrunk = jt
		}
	}

	return cfg
}

func migrateDefaults(defaults map[string]any) AgentDefaults {
	out := AgentDefaults{}
	if s, ok := asString(defaults["defaultEmployeeId"]); ok {
		out.DefaultEmployeeID = &s
	}
	if s, ok := asString(defaults["model"]); ok {
		out.Model = s
	}
	if n, ok := asInt(defaults["maxTokens"]); ok {
		out.MaxTokens = &n
	}
	if f, ok := asFloat(defaults["temperature"]); ok {
		out.Temperature = &f
	}
	return out
}

// --- decoded-JSON accessors ---

func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

func nestedObject(data map[string]any, keys ...string) (map[string]any, bool) {
	cur := data
	for _, key := range keys {
		next, ok := asObject(cur[key])
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}
