package auth

import "testing"

func TestServiceValidateAPIKey(t *testing.T) {
	service := NewService(Config{APIKeys: []APIKeyConfig{{Key: "abc123", UserID: "admin-1", Email: "admin@example.com"}}})
	admin, err := service.ValidateAPIKey("abc123")
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if admin.ID != "admin-1" {
		t.Fatalf("expected admin id, got %q", admin.ID)
	}
	if admin.Email != "admin@example.com" {
		t.Fatalf("expected email, got %q", admin.Email)
	}
}

func TestServiceValidateAPIKeyRejectsUnknownKey(t *testing.T) {
	service := NewService(Config{APIKeys: []APIKeyConfig{{Key: "abc123", UserID: "admin-1"}}})
	if _, err := service.ValidateAPIKey("wrong"); err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestServiceEnabledReflectsConfig(t *testing.T) {
	if (&Service{}).Enabled() {
		t.Fatal("zero-value service should report disabled")
	}
	disabled := NewService(Config{})
	if disabled.Enabled() {
		t.Fatal("service with no secret or keys should be disabled")
	}
	withKey := NewService(Config{APIKeys: []APIKeyConfig{{Key: "k"}}})
	if !withKey.Enabled() {
		t.Fatal("service with an api key should be enabled")
	}
}

func TestServiceDeriveIDFromKeyWhenUserIDMissing(t *testing.T) {
	service := NewService(Config{APIKeys: []APIKeyConfig{{Key: "abc123"}}})
	admin, err := service.ValidateAPIKey("abc123")
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if admin.ID == "" {
		t.Fatal("expected derived admin id, got empty string")
	}
}
