package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" {
		t.Fatalf("unexpected listen addresses %q %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.Region.Backend != BackendMemory || cfg.Region.BucketPages != 128 || !cfg.Region.CommitEachWrite {
		t.Fatalf("unexpected region config %+v", cfg.Region)
	}
	if !cfg.Service.EnforceAuthorization || cfg.Service.ClosePolicy != "unchecked" {
		t.Fatalf("unexpected service config %+v", cfg.Service)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Fatalf("unexpected token ttl %v", cfg.Auth.TokenTTL)
	}
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := strings.Join([]string{
		"ADVISORY_REGION_BACKEND=file",
		"ADVISORY_REGION_PATH=/tmp/from-file.region",
		"ADVISORY_CLOSE_POLICY=monotonic",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ADVISORY_REGION_PATH", "/tmp/from-env.region")
	t.Setenv("ADVISORY_ENFORCE_AUTHORIZATION", "false")
	t.Setenv("ADVISORY_COMMIT_EACH_WRITE", "false")
	// godotenv sets process variables; make sure they are removed afterwards
	t.Setenv("ADVISORY_REGION_BACKEND", "")
	t.Setenv("ADVISORY_CLOSE_POLICY", "")
	os.Unsetenv("ADVISORY_REGION_BACKEND")
	os.Unsetenv("ADVISORY_CLOSE_POLICY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Region.Backend != BackendFile {
		t.Fatalf("expected file backend, got %q", cfg.Region.Backend)
	}
	if cfg.Region.Path != "/tmp/from-env.region" {
		t.Fatalf("environment must win, got %q", cfg.Region.Path)
	}
	if cfg.Region.CommitEachWrite {
		t.Fatal("expected batched commits")
	}
	if cfg.Service.ClosePolicy != "monotonic" || cfg.Service.EnforceAuthorization {
		t.Fatalf("unexpected service config %+v", cfg.Service)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ADVISORY_RATE_BURST", "many")
	t.Setenv("ADVISORY_REGION_BACKEND", "postgres")
	t.Setenv("ADVISORY_PG_DSN", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"ADVISORY_RATE_BURST", "ADVISORY_PG_DSN"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}
