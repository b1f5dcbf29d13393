package config

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMigrateNilYieldsDefaults(t *testing.T) {
	cfg := Migrate(nil)
	want := DefaultConfig()
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("Migrate(nil) = %+v, want defaults %+v", cfg, want)
	}
}

func TestMigrateEmptyObject(t *testing.T) {
	cfg := Migrate(map[string]any{})
	if cfg.Server.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Providers.Custom.Model != DefaultModel {
		t.Errorf("custom model = %q, want %q", cfg.Providers.Custom.Model, DefaultModel)
	}
	if cfg.Agents.Defaults.MaxTokens == nil || *cfg.Agents.Defaults.MaxTokens != DefaultMaxTokens {
		t.Errorf("maxTokens = %v, want %d", cfg.Agents.Defaults.MaxTokens, DefaultMaxTokens)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	inputs := []map[string]any{
		nil,
		{},
		{"gatewayPort": float64(9000), "defaultEmployeeId": "e1"},
		{
			"version": float64(1),
			"server":  map[string]any{"host": "0.0.0.0", "port": float64(8080)},
			"customLLM": map[string]any{
				"apiKey": "sk-x", "baseUrl": "https://llm.local/v1", "model": "m1",
			},
		},
	}
	for i, in := range inputs {
		once := Migrate(in)
		twice := Migrate(once.ToMap())
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("case %d: second migration changed the document\nonce:  %+v\ntwice: %+v", i, once, twice)
		}
	}
}

func TestMigrateLegacyFlatFields(t *testing.T) {
	cfg := Migrate(map[string]any{
		"gatewayPort":       float64(9001),
		"defaultEmployeeId": "emp-7",
		"customLLM": map[string]any{
			"apiKey":  "sk-legacy",
			"baseUrl": "https://old.example/v1",
		},
	})
	if cfg.Server.Port != 9001 {
		t.Errorf("port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Agents.Defaults.DefaultEmployeeID == nil || *cfg.Agents.Defaults.DefaultEmployeeID != "emp-7" {
		t.Errorf("defaultEmployeeId = %v, want emp-7", cfg.Agents.Defaults.DefaultEmployeeID)
	}
	if cfg.Providers.Custom.APIKey != "sk-legacy" {
		t.Errorf("apiKey = %q, want sk-legacy", cfg.Providers.Custom.APIKey)
	}
	if cfg.Providers.Custom.APIBase == nil || *cfg.Providers.Custom.APIBase != "https://old.example/v1" {
		t.Errorf("apiBase = %v, want https://old.example/v1", cfg.Providers.Custom.APIBase)
	}
}

func TestMigrateGatewayObjectPort(t *testing.T) {
	cfg := Migrate(map[string]any{
		"gateway": map[string]any{"port": float64(7777)},
	})
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.Server.Port)
	}
}

func TestMigrateNewShapeWinsOverLegacy(t *testing.T) {
	cfg := Migrate(map[string]any{
		"server":      map[string]any{"port": float64(1234)},
		"gatewayPort": float64(4321),
		"customLLM":   map[string]any{"model": "legacy-model"},
		"providers": map[string]any{
			"custom": map[string]any{"model": "new-model"},
		},
	})
	if cfg.Server.Port != 1234 {
		t.Errorf("port = %d, want nested server.port 1234", cfg.Server.Port)
	}
	// customLLM is the operator-facing legacy field and takes precedence.
	if cfg.Providers.Custom.Model != "legacy-model" {
		t.Errorf("model = %q, want legacy-model", cfg.Providers.Custom.Model)
	}
}

func TestMigrateAPIBasePrecedence(t *testing.T) {
	cfg := Migrate(map[string]any{
		"providers": map[string]any{
			"custom": map[string]any{
				"apiBase": "https://new.example/v1",
				"baseUrl": "https://old.example/v1",
			},
		},
	})
	if cfg.Providers.Custom.APIBase == nil || *cfg.Providers.Custom.APIBase != "https://new.example/v1" {
		t.Errorf("apiBase = %v, want new.example", cfg.Providers.Custom.APIBase)
	}
}

func TestMigrateIgnoresWrongTypes(t *testing.T) {
	cfg := Migrate(map[string]any{
		"version":     "not-a-number",
		"server":      "not-an-object",
		"gatewayPort": "9000",
		"channels":    []any{"cli"},
		"customLLM":   float64(3),
	})
	want := DefaultConfig()
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("wrong-typed fields should fall back to defaults\ngot:  %+v\nwant: %+v", cfg, want)
	}
}

func TestMigrateChannels(t *testing.T) {
	cfg := Migrate(map[string]any{
		"channels": map[string]any{
			"feishu": map[string]any{"enabled": true},
			"cli":    map[string]any{"enabled": false},
		},
	})
	if !cfg.Channels["feishu"].Enabled {
		t.Error("feishu should be enabled")
	}
	if cfg.Channels["cli"].Enabled {
		t.Error("cli should be disabled when the document says so")
	}
	if _, ok := cfg.Channels["web"]; ok {
		t.Error("explicit channels object replaces the default set")
	}
}

func TestHasCredentials(t *testing.T) {
	base := "https://llm.local/v1"
	tests := []struct {
		name string
		p    CustomProvider
		want bool
	}{
		{"empty", DefaultCustomProvider(), false},
		{"key only", CustomProvider{APIKey: "sk-x"}, true},
		{"base only", CustomProvider{APIBase: &base}, true},
		{"model only", CustomProvider{Model: "m"}, false},
	}
	for _, tc := range tests {
		if got := tc.p.HasCredentials(); got != tc.want {
			t.Errorf("%s: HasCredentials() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOwnedBy(t *testing.T) {
	owner := "o1"
	cfg := &Config{OwnerID: &owner}
	if !cfg.OwnedBy("o1") {
		t.Error("matching owner should pass")
	}
	if cfg.OwnedBy("o2") {
		t.Error("mismatched owner should fail")
	}
	if (&Config{}).OwnedBy("o1") {
		t.Error("unowned config matches nobody")
	}
}

func TestToMapRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	m := cfg.ToMap()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back := map[string]any{}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(Migrate(back), cfg) {
		t.Error("ToMap then Migrate should reproduce the document")
	}
}
