package model

import "testing"

func TestModelManagerRegisterAndResolve(t *testing.T) {
	mm := NewModelManager()
	mm.Register(LLMModelInfo{Name: "claude-sonnet", ToolCallSupported: true})
	mm.Register(LLMModelInfo{Name: "gpt-4o", ToolCallSupported: true})

	info, err := mm.Resolve("")
	if err != nil {
		t.Fatalf("Resolve(\"\") error: %v", err)
	}
	if info.Name != "claude-sonnet" {
		t.Fatalf("expected first-registered model as default, got %q", info.Name)
	}

	if _, err := mm.Resolve("gpt-4o"); err != nil {
		t.Fatalf("Resolve(\"gpt-4o\") error: %v", err)
	}

	if _, err := mm.Resolve("nonexistent"); err == nil {
		t.Fatal("expected an error resolving an unregistered model")
	}

	if !mm.SetDefault("gpt-4o") {
		t.Fatal("SetDefault should succeed for a registered model")
	}
	info, _ = mm.Resolve("")
	if info.Name != "gpt-4o" {
		t.Fatalf("expected default to switch to gpt-4o, got %q", info.Name)
	}

	if mm.SetDefault("missing") {
		t.Fatal("SetDefault should fail for an unregistered model")
	}

	names := mm.List()
	if len(names) != 2 || names[0] != "claude-sonnet" || names[1] != "gpt-4o" {
		t.Fatalf("expected sorted [claude-sonnet gpt-4o], got %v", names)
	}
}

func TestModelManagerResolveEmpty(t *testing.T) {
	mm := NewModelManager()
	if _, err := mm.Resolve(""); err == nil {
		t.Fatal("expected an error resolving with no models registered")
	}
}
