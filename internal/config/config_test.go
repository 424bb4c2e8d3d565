package config

import "testing"

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := &Config{Env: "development", Store: "memory"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownStore(t *testing.T) {
	cfg := &Config{Env: "development", Store: "mongodb"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown store")
	}
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := &Config{Env: "development", Store: "postgres"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for postgres store without DATABASE_URL")
	}

	cfg.DatabaseURL = "postgres://localhost/clinic"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_ProductionNeedsSigningKey(t *testing.T) {
	cfg := &Config{Env: "production", Store: "memory"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for production without signing key")
	}

	cfg.JWTSigningKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port == "" {
		t.Error("expected default port")
	}
	if cfg.Store != "memory" {
		t.Errorf("expected default store memory, got %q", cfg.Store)
	}
}
