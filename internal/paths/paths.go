// Package paths computes the JoyTrunk on-disk layout. Everything the gateway
// persists lives under a single root (default ~/.joytrunk, overridable via the
// JOYTRUNK_ROOT environment variable):
//
//	<root>/config.json                         global configuration
//	<root>/workspace/memory/MEMORY.md          owner-level shared memory
//	<root>/workspace/skills/<name>/            owner-level shared skills
//	<root>/workspace/employees/<id>/           one directory per employee
//
// A Layout is a pure value: accessors compute paths and never touch the
// filesystem. Callers create directories on write.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// RootEnv overrides the JoyTrunk root directory when set.
const RootEnv = "JOYTRUNK_ROOT"

const defaultRelativePath = ".joytrunk"

// Layout resolves every JoyTrunk path from a single root.
type Layout struct {
	Root string
}

// New creates a Layout rooted at the given path. An empty root falls back to
// the JOYTRUNK_ROOT environment variable, then to ~/.joytrunk.
func New(root string) *Layout {
	if root == "" {
		root = os.Getenv(RootEnv)
	}
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			// No home directory: fall back to a relative root so the
			// gateway still runs in minimal environments.
			return &Layout{Root: defaultRelativePath}
		}
		root = filepath.Join(home, defaultRelativePath)
	}
	if resolved, err := filepath.Abs(root); err == nil {
		root = resolved
	}
	return &Layout{Root: root}
}

// ConfigPath returns <root>/config.json.
func (l *Layout) ConfigPath() string {
	return filepath.Join(l.Root, "config.json")
}

// WorkspaceRoot returns <root>/workspace.
func (l *Layout) WorkspaceRoot() string {
	return filepath.Join(l.Root, "workspace")
}

// EmployeesDir returns <root>/workspace/employees.
func (l *Layout) EmployeesDir() string {
	return filepath.Join(l.WorkspaceRoot(), "employees")
}

// EmployeeDir returns <root>/workspace/employees/<id>.
func (l *Layout) EmployeeDir(employeeID string) string {
	return filepath.Join(l.EmployeesDir(), sanitizeName(employeeID))
}

// EmployeeConfigPath returns the per-employee override document
// (<employee-dir>/config.json). Absent file means "inherit everything".
func (l *Layout) EmployeeConfigPath(employeeID string) string {
	return filepath.Join(l.EmployeeDir(employeeID), "config.json")
}

// EmployeeRecordPath returns the employee business record
// (<employee-dir>/employee.json).
func (l *Layout) EmployeeRecordPath(employeeID string) string {
	return filepath.Join(l.EmployeeDir(employeeID), "employee.json")
}

// EmployeeMemoryPath returns <employee-dir>/memory/MEMORY.md.
func (l *Layout) EmployeeMemoryPath(employeeID string) string {
	return filepath.Join(l.EmployeeDir(employeeID), "memory", "MEMORY.md")
}

// EmployeeSkillsDir returns <employee-dir>/skills.
func (l *Layout) EmployeeSkillsDir(employeeID string) string {
	return filepath.Join(l.EmployeeDir(employeeID), "skills")
}

// SharedMemoryDir returns <root>/workspace/memory, visible to all employees.
func (l *Layout) SharedMemoryDir() string {
	return filepath.Join(l.WorkspaceRoot(), "memory")
}

// SharedMemoryPath returns <root>/workspace/memory/MEMORY.md.
func (l *Layout) SharedMemoryPath() string {
	return filepath.Join(l.SharedMemoryDir(), "MEMORY.md")
}

// SharedSkillsDir returns <root>/workspace/skills, visible to all employees.
func (l *Layout) SharedSkillsDir() string {
	return filepath.Join(l.WorkspaceRoot(), "skills")
}

// sanitizeName replaces path separator characters to prevent directory traversal.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" {
		name = "_"
	}
	return name
}
