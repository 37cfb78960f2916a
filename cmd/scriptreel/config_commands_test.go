package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"scriptreel/internal/config"
)

func TestConfigInitWritesSample(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.baseDir, "fresh", "config.toml")

	out, _, err := runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("SCRIPTREEL_VENDOR_API_KEY", "sk-super-secret-value")

	out, _, err := runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "# "+env.configPath)
	requireContains(t, out, "sk-s…ue")
	if strings.Contains(out, "sk-super-secret-value") {
		t.Fatalf("vendor key leaked: %s", out)
	}
}

func TestConfigSetKeyStoresInKeyring(t *testing.T) {
	keyring.MockInit()
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "set-key", "vendor-key-1234")
	if err != nil {
		t.Fatalf("config set-key: %v", err)
	}
	requireContains(t, out, "stored in keyring")
	stored, err := keyring.Get(config.KeyringService, config.KeyringVendorKey)
	if err != nil || stored != "vendor-key-1234" {
		t.Fatalf("expected stored key, got %q (%v)", stored, err)
	}

	// The keyring fills the key when neither the file nor the environment set it.
	out, _, err = runCLI(t, env, "--json", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "vend…34")

	if _, _, err := runCLI(t, env, "config", "set-key", "--clear"); err != nil {
		t.Fatalf("config set-key --clear: %v", err)
	}
	if _, err := keyring.Get(config.KeyringService, config.KeyringVendorKey); err == nil {
		t.Fatal("expected the key to be removed")
	}
}

func TestConfigSetKeyReadsStdin(t *testing.T) {
	keyring.MockInit()
	cmd := newRootCommand()
	cmd.SetIn(strings.NewReader("from-stdin-key\n"))
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "set-key"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config set-key: %v", err)
	}
	stored, err := keyring.Get(config.KeyringService, config.KeyringVendorKey)
	if err != nil || stored != "from-stdin-key" {
		t.Fatalf("expected key from stdin, got %q (%v)", stored, err)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"short":             "********",
		"abcdefghijklmnop":  "abcd…op",
		"  padded-secret  ": "padd…et",
	}
	for in, want := range tests {
		if got := maskSecret(in); got != want {
			t.Fatalf("maskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}
