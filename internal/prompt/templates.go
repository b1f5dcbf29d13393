// Package prompt loads persona, memory, and skill documents from an employee
// workspace and assembles them into a system prompt.
package prompt

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joytrunk/joytrunk/internal/paths"
)

// Templates holds the raw building blocks of a system prompt. Empty strings
// and an empty Skills map mean "section absent".
type Templates struct {
	Soul   string
	User   string
	Agents string
	Memory string
	Skills map[string]string
}

// Loader reads prompt material from the workspace. All reads are best
// effort: a missing or unreadable file contributes nothing rather than an
// error, so a half-initialized workspace still produces a usable prompt.
type Loader struct {
	layout *paths.Layout
	logger *slog.Logger
}

// NewLoader creates a Loader over the given layout.
func NewLoader(layout *paths.Layout, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{layout: layout, logger: logger}
}

// SharedMemory reads the owner-level shared memory file. Missing file reads
// as empty.
func (l *Loader) SharedMemory() string {
	return readOptional(l.layout.SharedMemoryPath())
}

// EmployeeMemory reads the employee's private memory file. Missing file
// reads as empty.
func (l *Loader) EmployeeMemory(employeeID string) string {
	return readOptional(l.layout.EmployeeMemoryPath(employeeID))
}

// MergedSkills loads shared skills, then employee skills; a same-named
// employee skill replaces the shared one.
func (l *Loader) MergedSkills(employeeID string) map[string]string {
	out := l.skillsFromDir(l.layout.SharedSkillsDir())
	for name, body := range l.skillsFromDir(l.layout.EmployeeSkillsDir(employeeID)) {
		out[name] = body
	}
	return out
}

// skillsFromDir reads skills from one directory. Each subdirectory is one
// skill named after the directory; its body is SKILL.md, else the first .md
// file in name order. Hidden directories and skills with an empty body are
// skipped.
func (l *Loader) skillsFromDir(dir string) map[string]string {
	out := map[string]string{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		skillDir := filepath.Join(dir, entry.Name())
		body := readOptional(filepath.Join(skillDir, "SKILL.md"))
		if body == "" {
			body = firstMarkdown(skillDir)
		}
		if body != "" {
			out[entry.Name()] = body
		}
	}
	return out
}

func firstMarkdown(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	// os.ReadDir returns entries sorted by name.
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		return readOptional(filepath.Join(dir, entry.Name()))
	}
	return ""
}

// LoadTemplates assembles the employee's prompt material: SOUL.md, USER.md,
// and AGENTS.md from the employee directory, the labeled memory blocks, and
// the merged skills.
func (l *Loader) LoadTemplates(employeeID string) Templates {
	empDir := l.layout.EmployeeDir(employeeID)
	t := Templates{
		Soul:   readOptional(filepath.Join(empDir, "SOUL.md")),
		User:   readOptional(filepath.Join(empDir, "USER.md")),
		Agents: readOptional(filepath.Join(empDir, "AGENTS.md")),
		Skills: l.MergedSkills(employeeID),
	}

	parts := []string{}
	if shared := strings.TrimSpace(l.SharedMemory()); shared != "" {
		parts = append(parts, "【团队共享记忆】\n"+shared)
	}
	if own := strings.TrimSpace(l.EmployeeMemory(employeeID)); own != "" {
		parts = append(parts, "【本员工记忆】\n"+own)
	}
	t.Memory = strings.Join(parts, "\n\n")
	return t
}

func readOptional(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
