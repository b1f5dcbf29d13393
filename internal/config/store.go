package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/joytrunk/joytrunk/internal/paths"
)

// ErrNotPermitted is returned by mutating operations when the caller's owner
// ID does not match the document's owner. Distinct from not-found: the
// document exists but the caller may not change it.
var ErrNotPermitted = errors.New("owner does not match configuration")

// CustomLLMPayload carries a partial providers.custom update. Nil fields mean
// "keep the current value". BaseURL is the legacy alias for APIBase; both are
// accepted, APIBase wins when both are present.
type CustomLLMPayload struct {
	APIKey  *string `json:"apiKey"`
	APIBase *string `json:"apiBase"`
	BaseURL *string `json:"baseUrl"`
	Model   *string `json:"model"`
}

func (p CustomLLMPayload) baseURL() *string {
	if p.APIBase != nil {
		return p.APIBase
	}
	return p.BaseURL
}

func (p CustomLLMPayload) hasAny() bool {
	for _, f := range []*string{p.APIKey, p.APIBase, p.BaseURL, p.Model} {
		if f != nil && *f != "" {
			return true
		}
	}
	return false
}

// Store reads and writes the global configuration document.
//
// Every operation re-reads the file and whole-file rewrites on save; nothing
// is cached between calls. A store-wide mutex serializes read-modify-write
// cycles within this process. Writers in other processes still race with
// last-write-wins; this store is meant for a single local operator.
type Store struct {
	layout *paths.Layout
	logger *slog.Logger

	mu sync.Mutex
}

// NewStore creates a Store over the given layout.
func NewStore(layout *paths.Layout, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{layout: layout, logger: logger}
}

// Load reads the configuration, migrating whatever it finds. A missing or
// malformed file yields the schema defaults; Load never fails the caller.
func (s *Store) Load() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() *Config {
	path := s.layout.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return Migrate(nil)
	}
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("config file unreadable, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return Migrate(nil)
	}
	return Migrate(raw)
}

// Save normalizes cfg through migration and rewrites the config file whole.
func (s *Store) Save(cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(cfg)
}

func (s *Store) save(cfg *Config) error {
	if err := os.MkdirAll(s.layout.Root, 0750); err != nil {
		return fmt.Errorf("creating joytrunk root: %w", err)
	}
	out := Migrate(cfg.ToMap())
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(s.layout.ConfigPath(), append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SetOwner records ownerID as the single local owner and pins joytrunkRoot
// if it is not set yet.
func (s *Store) SetOwner(ownerID string) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.load()
	if cfg.JoytrunkRoot == nil {
		root := s.layout.Root
		cfg.JoytrunkRoot = &root
	}
	cfg.OwnerID = &ownerID
	if err := s.save(cfg); err != nil {
		return nil, err
	}
	s.logger.Info("owner recorded", slog.String("owner_id", ownerID))
	return cfg, nil
}

// SetDefaultEmployee records the default employee for new conversations.
func (s *Store) SetDefaultEmployee(employeeID string) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.load()
	cfg.Agents.Defaults.DefaultEmployeeID = &employeeID
	if err := s.save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetCustomLLM merges a partial providers.custom update. Supplied fields
// replace the current values; nil fields keep them. When the payload is
// empty and no credential exists yet, the provider resets to the
// empty-credential default. Returns ErrNotPermitted if ownerID does not
// match the stored owner; the on-disk document is left unchanged.
func (s *Store) SetCustomLLM(ownerID string, payload CustomLLMPayload) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.load()
	if !cfg.OwnedBy(ownerID) {
		return nil, ErrNotPermitted
	}

	cur := cfg.Providers.Custom
	curHasAny := cur.APIKey != "" || (cur.APIBase != nil && *cur.APIBase != "") || cur.Model != ""
	if !payload.hasAny() && !curHasAny {
		cfg.Providers.Custom = DefaultCustomProvider()
	} else {
		next := cur
		if payload.APIKey != nil {
			next.APIKey = *payload.APIKey
		}
		if base := payload.baseURL(); base != nil {
			next.APIBase = base
		}
		if payload.Model != nil {
			next.Model = *payload.Model
		}
		cfg.Providers.Custom = next
	}

	if err := s.save(cfg); err != nil {
		return nil, err
	}
	s.logger.Info("custom llm updated",
		slog.String("owner_id", ownerID),
		slog.Bool("has_key", cfg.Providers.Custom.APIKey != ""),
		slog.String("model", cfg.Providers.Custom.Model),
	)
	return cfg, nil
}

// ClearCustomLLM resets providers.custom to the empty-credential default.
// Same ownership check as SetCustomLLM.
func (s *Store) ClearCustomLLM(ownerID string) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.load()
	if !cfg.OwnedBy(ownerID) {
		return nil, ErrNotPermitted
	}
	cfg.Providers.Custom = DefaultCustomProvider()
	if err := s.save(cfg); err != nil {
		return nil, err
	}
	s.logger.Info("custom llm cleared", slog.String("owner_id", ownerID))
	return cfg, nil
}
