package config_test

import (
	"testing"

	"github.com/zalando/go-keyring"

	"scriptreel/internal/config"
)

func TestKeyringFallbackFillsMissingVendorKey(t *testing.T) {
	keyring.MockInit()
	store := config.Keyring()

	cfg := config.Default()
	if err := cfg.ApplyKeyringFallback(store); err != nil {
		t.Fatalf("empty keyring should not fail: %v", err)
	}
	if cfg.Vendor.APIKey != "" {
		t.Fatalf("unexpected key %q", cfg.Vendor.APIKey)
	}

	if err := config.StoreVendorKey(store, " sk-live "); err != nil {
		t.Fatalf("StoreVendorKey: %v", err)
	}
	if err := cfg.ApplyKeyringFallback(store); err != nil {
		t.Fatalf("ApplyKeyringFallback: %v", err)
	}
	if cfg.Vendor.APIKey != "sk-live" {
		t.Fatalf("expected keyring value, got %q", cfg.Vendor.APIKey)
	}
}

func TestKeyringFallbackKeepsConfiguredKey(t *testing.T) {
	keyring.MockInit()
	store := config.Keyring()
	if err := config.StoreVendorKey(store, "from-keyring"); err != nil {
		t.Fatalf("StoreVendorKey: %v", err)
	}
	cfg := config.Default()
	cfg.Vendor.APIKey = "from-env"
	if err := cfg.ApplyKeyringFallback(store); err != nil {
		t.Fatalf("ApplyKeyringFallback: %v", err)
	}
	if cfg.Vendor.APIKey != "from-env" {
		t.Fatalf("configured key was replaced: %q", cfg.Vendor.APIKey)
	}

	if err := config.StoreVendorKey(store, ""); err != nil {
		t.Fatalf("clearing the key: %v", err)
	}
	if err := config.StoreVendorKey(store, ""); err != nil {
		t.Fatalf("clearing twice should be a no-op: %v", err)
	}
}
