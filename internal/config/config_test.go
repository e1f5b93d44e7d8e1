package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/net/publicsuffix"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	content := `policy:
  afterServiceMoveAction: SetSubdomainToNewIpAddress
  afterServiceDeletionAction: deletesubdomain
providers:
  - id: 1
    type: cloudflare
    settings:
      api_token: "abc"
cacheFile: /var/cache/psl.dat
database: /var/lib/keeper.db
listen: "127.0.0.1:9000"
`
	cfg, err := LoadFromPath(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Policy.AfterServiceMoveAction != SetSubdomainToNewIpAddress {
		t.Errorf("expected move action SetSubdomainToNewIpAddress, got %v", cfg.Policy.AfterServiceMoveAction)
	}
	if cfg.Policy.AfterServiceDeletionAction != DeleteSubdomain {
		t.Errorf("expected deletion action DeleteSubdomain, got %v", cfg.Policy.AfterServiceDeletionAction)
	}
	if cfg.CacheFile != "/var/cache/psl.dat" {
		t.Errorf("expected cacheFile '/var/cache/psl.dat', got %q", cfg.CacheFile)
	}
	if cfg.Database != "/var/lib/keeper.db" {
		t.Errorf("expected database '/var/lib/keeper.db', got %q", cfg.Database)
	}
	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("expected listen '127.0.0.1:9000', got %q", cfg.Listen)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	content := `providers:
  - id: 3
    type: opnsense
`
	cfg, err := LoadFromPath(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Policy.AfterServiceMoveAction != DoNothing || cfg.Policy.AfterServiceDeletionAction != DoNothing {
		t.Errorf("expected DoNothing policy by default, got %+v", cfg.Policy)
	}
	if cfg.CacheFile != DefaultCacheFile {
		t.Errorf("expected default cacheFile, got %q", cfg.CacheFile)
	}
	if cfg.Database != DefaultDatabase {
		t.Errorf("expected default database, got %q", cfg.Database)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("expected default listen, got %q", cfg.Listen)
	}
}

func TestLoadConfig_InvalidAction(t *testing.T) {
	content := `policy:
  afterServiceMoveAction: Explode
providers:
  - id: 1
    type: cloudflare
`
	if _, err := LoadFromPath(writeConfig(t, content)); err == nil {
		t.Fatal("expected error for unknown action, got nil")
	}
}

func TestLoadConfig_APIKeyExpansion(t *testing.T) {
	t.Setenv("TEST_KEEPER_API_KEY", "from-env")
	content := `apiKey: "${TEST_KEEPER_API_KEY}"
providers:
  - id: 1
    type: cloudflare
`
	cfg, err := LoadFromPath(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("expected apiKey 'from-env', got %q", cfg.APIKey)
	}
}

func TestLoadConfig_FromEnvPath(t *testing.T) {
	path := writeConfig(t, "providers:\n  - id: 1\n    type: cloudflare\n")
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Providers) != 1 {
		t.Errorf("expected 1 provider, got %d", len(cfg.Providers))
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadFromPath("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"DoNothing", DoNothing, false},
		{"DeleteSubdomain", DeleteSubdomain, false},
		{"SetSubdomainToNewIpAddress", SetSubdomainToNewIpAddress, false},
		{"  setsubdomaintonewipaddress ", SetSubdomainToNewIpAddress, false},
		{"", DoNothing, true},
		{"Delete", DoNothing, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAction(%q): got err=%v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAction(%q): got %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("loading example config: %v", err)
	}
	if cfg.Policy.AfterServiceMoveAction != SetSubdomainToNewIpAddress {
		t.Errorf("unexpected move action %v", cfg.Policy.AfterServiceMoveAction)
	}

	// Subdomains are matched against their registrable domain, so a zone
	// listed below that level would never be found.
	for _, p := range cfg.Providers {
		if p.Settings["zones"] == "" {
			continue
		}
		for _, z := range strings.Split(p.Settings["zones"], ",") {
			z = strings.TrimSpace(z)
			etld1, err := publicsuffix.EffectiveTLDPlusOne(z)
			if err != nil || etld1 != z {
				t.Errorf("provider %d: zone %q is not a registrable domain", p.ID, z)
			}
		}
	}
}
