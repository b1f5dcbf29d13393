package employee

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joytrunk/joytrunk/internal/config"
	"github.com/joytrunk/joytrunk/internal/paths"
)

// overrideKeys are the only top-level keys an override document may carry.
var overrideKeys = []string{"agents", "providers"}

// ConfigStore manages per-employee override documents and merges them onto
// the global configuration.
type ConfigStore struct {
	layout *paths.Layout
	logger *slog.Logger
}

// NewConfigStore creates a ConfigStore over the given layout.
func NewConfigStore(layout *paths.Layout, logger *slog.Logger) *ConfigStore {
	return &ConfigStore{layout: layout, logger: logger}
}

// Load reads the employee's override document. Returns nil on a missing
// file, a parse error, or non-object content; callers treat nil as "no
// override".
func (s *ConfigStore) Load(employeeID string) map[string]any {
	data, err := os.ReadFile(s.layout.EmployeeConfigPath(employeeID))
	if err != nil {
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// Save writes the agents and providers keys from data as the employee's
// override document. Any other top-level key is dropped. The employee
// directory is created when absent.
func (s *ConfigStore) Save(employeeID string, data map[string]any) error {
	out := map[string]any{}
	for _, key := range overrideKeys {
		if v, ok := data[key]; ok {
			out[key] = v
		}
	}
	if err := os.MkdirAll(s.layout.EmployeeDir(employeeID), 0750); err != nil {
		return fmt.Errorf("creating employee directory: %w", err)
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding employee config: %w", err)
	}
	if err := os.WriteFile(s.layout.EmployeeConfigPath(employeeID), append(encoded, '\n'), 0600); err != nil {
		return fmt.Errorf("writing employee config: %w", err)
	}
	return nil
}

// EnsureExists writes an empty override document only when none exists.
func (s *ConfigStore) EnsureExists(employeeID string) error {
	path := s.layout.EmployeeConfigPath(employeeID)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(s.layout.EmployeeDir(employeeID), 0750); err != nil {
		return fmt.Errorf("creating employee directory: %w", err)
	}
	if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
		return fmt.Errorf("writing employee config: %w", err)
	}
	return nil
}

// Merged returns the global configuration with the employee's override
// deep-applied. getGlobal supplies the current global document; a nil
// result short-circuits to nil. Without an effective override the global
// config is returned as-is. The merge never mutates the global document:
// the result is built from a generic-map copy and re-normalized through
// migration, so legacy field names inside an override are also accepted.
func (s *ConfigStore) Merged(employeeID string, getGlobal func() *config.Config) *config.Config {
	global := getGlobal()
	if global == nil {
		return nil
	}
	override := s.Load(employeeID)
	if override == nil {
		return global
	}

	restricted := map[string]any{}
	for _, key := range overrideKeys {
		if obj, ok := override[key].(map[string]any); ok && len(obj) > 0 {
			restricted[key] = obj
		}
	}
	if len(restricted) == 0 {
		return global
	}
	merged := DeepMerge(global.ToMap(), restricted)
	return config.Migrate(merged)
}

// DeepMerge merges source onto target and returns a new map. Object values
// merge recursively; every other value, arrays included, replaces the target
// value wholesale. Neither input is mutated.
func DeepMerge(target, source map[string]any) map[string]any {
	out := make(map[string]any, len(target))
	for k, v := range target {
		out[k] = v
	}
	for k, sv := range source {
		so, sourceIsObject := sv.(map[string]any)
		to, targetIsObject := out[k].(map[string]any)
		if sourceIsObject && targetIsObject {
			out[k] = DeepMerge(to, so)
			continue
		}
		if sourceIsObject {
			out[k] = DeepMerge(map[string]any{}, so)
			continue
		}
		out[k] = sv
	}
	return out
}
