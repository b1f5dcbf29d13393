// Package employee manages employee business records and their per-employee
// configuration overrides.
//
// Each employee owns a directory under <root>/workspace/employees/<id>:
//
//	employee.json    business record (identity, role, status)
//	config.json      override document, restricted to agents and providers
//	memory/MEMORY.md long-term memory
//	skills/<name>/   skill documents
//
// The business record and the override document are deliberately separate
// files: the override never carries identity fields and the record never
// carries provider credentials.
package employee

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joytrunk/joytrunk/internal/paths"
)

// Employee is the business record persisted in employee.json.
type Employee struct {
	ID             string  `json:"id"`
	OwnerID        string  `json:"ownerId"`
	Name           string  `json:"name"`
	Persona        *string `json:"persona"`
	Role           *string `json:"role"`
	Specialty      *string `json:"specialty"`
	BusinessModule *string `json:"businessModule"`
	Focus          *string `json:"focus"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"createdAt"`
}

// Owner is the single local owner, derived from the global configuration
// rather than persisted on its own.
type Owner struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email"`
}

// CreateRequest carries the caller-supplied fields for a new employee.
// Name falls back to a generic label; everything else is optional.
type CreateRequest struct {
	Name           string  `json:"name"`
	Persona        *string `json:"persona"`
	Role           *string `json:"role"`
	Specialty      *string `json:"specialty"`
	BusinessModule *string `json:"businessModule"`
	Focus          *string `json:"focus"`
}

// UpdateRequest carries a partial employee update. Nil fields are left
// untouched. Agents and Providers are routed to the override document, not
// the business record.
type UpdateRequest struct {
	Name           *string        `json:"name"`
	Persona        *string        `json:"persona"`
	Role           *string        `json:"role"`
	Specialty      *string        `json:"specialty"`
	BusinessModule *string        `json:"businessModule"`
	Focus          *string        `json:"focus"`
	Status         *string        `json:"status"`
	Agents         map[string]any `json:"agents"`
	Providers      map[string]any `json:"providers"`
}

// Store manages employee records on disk. TemplatesDir, when set, points at
// a bundled template tree copied into each new employee workspace.
type Store struct {
	layout       *paths.Layout
	configs      *ConfigStore
	logger       *slog.Logger
	templatesDir string

	mu sync.Mutex
}

// NewStore creates a Store over the given layout. templatesDir may be empty.
func NewStore(layout *paths.Layout, logger *slog.Logger, templatesDir string) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		layout:       layout,
		configs:      NewConfigStore(layout, logger),
		logger:       logger,
		templatesDir: templatesDir,
	}
}

// Configs exposes the override-document store for the same layout.
func (s *Store) Configs() *ConfigStore {
	return s.configs
}

// Create registers a new employee for ownerID and initializes its workspace
// directory, memory, skills, and an empty override document.
func (s *Store) Create(ownerID string, req CreateRequest) (*Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := req.Name
	if name == "" {
		name = "员工"
	}
	emp := &Employee{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Name:           name,
		Persona:        req.Persona,
		Role:           req.Role,
		Specialty:      req.Specialty,
		BusinessModule: req.BusinessModule,
		Focus:          req.Focus,
		Status:         "active",
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.writeRecord(emp); err != nil {
		return nil, err
	}
	if err := s.initWorkspace(emp.ID); err != nil {
		return nil, err
	}
	if err := s.configs.EnsureExists(emp.ID); err != nil {
		return nil, err
	}

	s.logger.Info("employee created",
		slog.String("employee_id", emp.ID),
		slog.String("owner_id", ownerID),
		slog.String("name", emp.Name),
	)
	return emp, nil
}

// Update applies a partial update to the employee record. The ownerID must
// match the record's owner. Agents and Providers fields in the request are
// written to the override document instead of the record. Returns nil, nil
// when the employee does not exist or the owner does not match.
func (s *Store) Update(employeeID, ownerID string, req UpdateRequest) (*Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emp := s.find(employeeID)
	if emp == nil || emp.OwnerID != ownerID {
		return nil, nil
	}

	if req.Name != nil {
		emp.Name = *req.Name
	}
	if req.Persona != nil {
		emp.Persona = req.Persona
	}
	if req.Role != nil {
		emp.Role = req.Role
	}
	if req.Specialty != nil {
		emp.Specialty = req.Specialty
	}
	if req.BusinessModule != nil {
		emp.BusinessModule = req.BusinessModule
	}
	if req.Focus != nil {
		emp.Focus = req.Focus
	}
	if req.Status != nil {
		emp.Status = *req.Status
	}
	if err := s.writeRecord(emp); err != nil {
		return nil, err
	}

	if req.Agents != nil || req.Providers != nil {
		override := map[string]any{}
		if req.Agents != nil {
			override["agents"] = req.Agents
		}
		if req.Providers != nil {
			override["providers"] = req.Providers
		}
		if err := s.configs.Save(employeeID, override); err != nil {
			return nil, err
		}
	}
	return emp, nil
}

// Find returns the employee record, or nil when missing or unreadable.
func (s *Store) Find(employeeID string) *Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(employeeID)
}

func (s *Store) find(employeeID string) *Employee {
	data, err := os.ReadFile(s.layout.EmployeeRecordPath(employeeID))
	if err != nil {
		return nil
	}
	emp := &Employee{}
	if err := json.Unmarshal(data, emp); err != nil {
		return nil
	}
	if emp.ID == "" {
		emp.ID = employeeID
	}
	return emp
}

// List returns every readable employee record, sorted by creation time then
// ID for a stable order. Directories without a record are skipped.
func (s *Store) List() []*Employee {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.layout.EmployeesDir())
	if err != nil {
		return nil
	}
	out := []*Employee{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if emp := s.find(entry.Name()); emp != nil {
			out = append(out, emp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListByOwner returns the owner's employees in List order.
func (s *Store) ListByOwner(ownerID string) []*Employee {
	all := s.List()
	out := []*Employee{}
	for _, emp := range all {
		if emp.OwnerID == ownerID {
			out = append(out, emp)
		}
	}
	return out
}

func (s *Store) writeRecord(emp *Employee) error {
	dir := s.layout.EmployeeDir(emp.ID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating employee directory: %w", err)
	}
	data, err := json.MarshalIndent(emp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding employee record: %w", err)
	}
	if err := os.WriteFile(s.layout.EmployeeRecordPath(emp.ID), append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing employee record: %w", err)
	}
	return nil
}

// initWorkspace creates the memory and skills directories and copies bundled
// template files into the employee directory. Existing files are never
// overwritten.
func (s *Store) initWorkspace(employeeID string) error {
	empDir := s.layout.EmployeeDir(employeeID)
	for _, dir := range []string{
		filepath.Join(empDir, "memory"),
		s.layout.EmployeeSkillsDir(employeeID),
	} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating workspace directory: %w", err)
		}
	}
	if s.templatesDir == "" {
		return nil
	}
	if info, err := os.Stat(s.templatesDir); err != nil || !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(s.templatesDir)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		src := filepath.Join(s.templatesDir, entry.Name())
		if entry.IsDir() {
			if entry.Name() == "memory" {
				s.copyDirFiles(src, filepath.Join(empDir, "memory"))
			}
			continue
		}
		s.copyIfAbsent(src, filepath.Join(empDir, entry.Name()))
	}
	return nil
}

func (s *Store) copyDirFiles(srcDir, destDir string) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		s.copyIfAbsent(filepath.Join(srcDir, entry.Name()), filepath.Join(destDir, entry.Name()))
	}
}

func (s *Store) copyIfAbsent(src, dest string) {
	if _, err := os.Stat(dest); err == nil {
		return
	}
	data, err := os.ReadFile(src)
	if err != nil {
		s.logger.Warn("template unreadable", slog.String("path", src), slog.String("error", err.Error()))
		return
	}
	if err := os.WriteFile(dest, data, 0600); err != nil {
		s.logger.Warn("template copy failed", slog.String("path", dest), slog.String("error", err.Error()))
	}
}
