package config

import "testing"

func TestValidateUnknownBundleErrors(t *testing.T) {
	if err := Validate("not-a-bundle", map[string]any{}); err == nil {
		t.Fatalf("expected an error for an unknown bundle name")
	}
}

func TestValidateProviderRejectsUnknownProviderEnum(t *testing.T) {
	doc := map[string]any{
		"models": map[string]any{
			"m1": map[string]any{
				"provider":            "not-a-real-provider",
				"provider_model_name": "x",
			},
		},
	}
	if err := Validate("provider", doc); err == nil {
		t.Fatalf("expected a schema validation error for an unrecognized provider enum value")
	}
}

func TestValidateSystemAcceptsWellFormedDocument(t *testing.T) {
	doc := map[string]any{
		"session_concurrency": float64(3),
		"log_level":           "debug",
	}
	if err := Validate("system", doc); err != nil {
		t.Fatalf("expected a well-formed system bundle to validate, got %v", err)
	}
}
