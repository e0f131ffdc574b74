package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Git.RemoteURL != "" || cfg.Git.InsecureSkipTLS {
		t.Errorf("defaults should be local-only with TLS verification: %+v", cfg.Git)
	}
	if cfg.Git.Timeout != 60*time.Second {
		t.Errorf("timeout = %s", cfg.Git.Timeout)
	}
}

func TestGitAuthConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GitAuthConfig
		wantErr bool
	}{
		{"empty defaults to none", GitAuthConfig{}, false},
		{"ssh with key", GitAuthConfig{Type: "ssh", PrivateKey: "/home/me/.ssh/id_ed25519"}, false},
		{"ssh without key", GitAuthConfig{Type: "ssh"}, true},
		{"password without password", GitAuthConfig{Type: "password", Username: "me"}, true},
		{"unknown type", GitAuthConfig{Type: "kerberos"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGitConfigTimeout(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Git.Timeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero timeout should fail")
	}
}

func TestGitConfigRepo(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Git.RemoteURL = "https://example.com/notes.git"
	rc := cfg.Git.Repo("/data/notes")
	if rc.Dir != "/data/notes" || rc.RemoteURL != cfg.Git.RemoteURL || rc.Branch != "master" {
		t.Errorf("repo config = %+v", rc)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("INKWELL_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "app:\n  http:\n    port: 9090\nnotes:\n  dir: /srv/notes\ngit:\n  remote_url: git@example.com:me/notes.git\n  timeout: 30s\nsync:\n  interval: 5m\nauth:\n  mode: token\n  token: ${INKWELL_TEST_TOKEN}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Notes.Dir != "/srv/notes" {
		t.Errorf("app/notes = %+v %+v", cfg.App, cfg.Notes)
	}
	if cfg.Git.Timeout != 30*time.Second || cfg.Git.Branch != "master" {
		t.Errorf("git = %+v", cfg.Git)
	}
	if cfg.Sync.Interval != 5*time.Minute || !cfg.Sync.OnStart {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q", cfg.Auth.Token)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Notes.Dir != "./notes" {
		t.Errorf("dir = %q", cfg.Notes.Dir)
	}
}
