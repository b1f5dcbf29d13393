package employee

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joytrunk/joytrunk/internal/paths"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(paths.New(t.TempDir()), nil, "")
}

func strptr(s string) *string { return &s }

func TestCreateInitializesWorkspace(t *testing.T) {
	s := newTestStore(t)
	emp, err := s.Create("owner-1", CreateRequest{Name: "小助", Role: strptr("analyst")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if emp.ID == "" {
		t.Error("employee must get a generated id")
	}
	if emp.Status != "active" {
		t.Errorf("status = %q, want active", emp.Status)
	}
	if _, err := time.Parse(time.RFC3339, emp.CreatedAt); err != nil {
		t.Errorf("createdAt %q is not RFC3339: %v", emp.CreatedAt, err)
	}

	empDir := s.layout.EmployeeDir(emp.ID)
	for _, p := range []string{
		s.layout.EmployeeRecordPath(emp.ID),
		s.layout.EmployeeConfigPath(emp.ID),
		filepath.Join(empDir, "memory"),
		s.layout.EmployeeSkillsDir(emp.ID),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}

	// The override document starts empty, not as a copy of the record.
	override := s.configs.Load(emp.ID)
	if override == nil || len(override) != 0 {
		t.Errorf("fresh override = %v, want empty object", override)
	}
}

func TestCreateDefaultsName(t *testing.T) {
	s := newTestStore(t)
	emp, err := s.Create("owner-1", CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if emp.Name == "" {
		t.Error("empty request name should fall back to a default label")
	}
}

func TestCreateCopiesTemplates(t *testing.T) {
	tpl := t.TempDir()
	if err := os.WriteFile(filepath.Join(tpl, "SYSTEM_PROMPT.md"), []byte("prompt"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(tpl, "memory"), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tpl, "memory", "MEMORY.md"), []byte("seed"), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(paths.New(t.TempDir()), nil, tpl)
	emp, err := s.Create("owner-1", CreateRequest{Name: "n"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(s.layout.EmployeeDir(emp.ID), "SYSTEM_PROMPT.md"))
	if err != nil || string(data) != "prompt" {
		t.Errorf("template file not copied: %v %q", err, data)
	}
	data, err = os.ReadFile(s.layout.EmployeeMemoryPath(emp.ID))
	if err != nil || string(data) != "seed" {
		t.Errorf("memory seed not copied: %v %q", err, data)
	}
}

func TestFindMissing(t *testing.T) {
	s := newTestStore(t)
	if got := s.Find("nobody"); got != nil {
		t.Errorf("Find(missing) = %v, want nil", got)
	}
}

func TestUpdateOwnershipGate(t *testing.T) {
	s := newTestStore(t)
	emp, err := s.Create("owner-1", CreateRequest{Name: "n"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Update(emp.ID, "intruder", UpdateRequest{Name: strptr("stolen")})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("update by a non-owner must be refused")
	}
	if s.Find(emp.ID).Name != "n" {
		t.Error("refused update must not change the record")
	}
}

func TestUpdatePartialAndStatus(t *testing.T) {
	s := newTestStore(t)
	emp, err := s.Create("owner-1", CreateRequest{Name: "n", Role: strptr("analyst")})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Update(emp.ID, "owner-1", UpdateRequest{
		Name:   strptr("n2"),
		Status: strptr("paused"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "n2" || got.Status != "paused" {
		t.Errorf("update result = %+v", got)
	}
	if got.Role == nil || *got.Role != "analyst" {
		t.Error("untouched field must survive a partial update")
	}

	// Reactivation is just another status update.
	got, err = s.Update(emp.ID, "owner-1", UpdateRequest{Status: strptr("active")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "active" {
		t.Errorf("status = %q, want active", got.Status)
	}
}

func TestUpdateRoutesOverridesToConfig(t *testing.T) {
	s := newTestStore(t)
	emp, err := s.Create("owner-1", CreateRequest{Name: "n"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Update(emp.ID, "owner-1", UpdateRequest{
		Providers: map[string]any{"custom": map[string]any{"model": "m2"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	override := s.configs.Load(emp.ID)
	custom := override["providers"].(map[string]any)["custom"].(map[string]any)
	if custom["model"] != "m2" {
		t.Errorf("override model = %v, want m2", custom["model"])
	}
	// The business record stays free of provider data.
	data, err := os.ReadFile(s.layout.EmployeeRecordPath(emp.ID))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"providers"`) {
		t.Error("record must not carry providers")
	}
}

func TestListByOwnerSorted(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Create("owner-1", CreateRequest{Name: "a"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Create("owner-1", CreateRequest{Name: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create("owner-2", CreateRequest{Name: "c"}); err != nil {
		t.Fatal(err)
	}

	got := s.ListByOwner("owner-1")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	ids := map[string]bool{got[0].ID: true, got[1].ID: true}
	if !ids[a.ID] || !ids[b.ID] {
		t.Errorf("wrong employees listed: %v", got)
	}
}

func TestListSkipsBrokenRecords(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("owner-1", CreateRequest{Name: "ok"}); err != nil {
		t.Fatal(err)
	}
	broken := s.layout.EmployeeDir("broken")
	if err := os.MkdirAll(broken, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.layout.EmployeeRecordPath("broken"), []byte("{oops"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := s.List(); len(got) != 1 {
		t.Errorf("len = %d, want 1 (broken record skipped)", len(got))
	}
}
