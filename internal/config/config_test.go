package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "upparat.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dlDir := t.TempDir()
	path := writeTempConfig(t, `
service:
  download_location: `+dlDir+`
`)

	cfg, err := Load(path, false, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.Port != defaultBrokerPort {
		t.Errorf("Broker.Port = %d, want %d", cfg.Broker.Port, defaultBrokerPort)
	}
	if cfg.Broker.ClientID != defaultClientID {
		t.Errorf("Broker.ClientID = %q, want %q", cfg.Broker.ClientID, defaultClientID)
	}
	if cfg.Hooks.RetryInterval != defaultRetryInterval {
		t.Errorf("Hooks.RetryInterval = %d, want %d", cfg.Hooks.RetryInterval, defaultRetryInterval)
	}
	if cfg.Broker.ThingName == "" {
		t.Errorf("Broker.ThingName should default to hostname, got empty")
	}
}

func TestLoadAppendsAndCreatesServiceSubdirectory(t *testing.T) {
	dlDir := t.TempDir()
	path := writeTempConfig(t, `
service:
  download_location: `+dlDir+`
`)

	cfg, err := Load(path, false, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := filepath.Join(dlDir, "upparat")
	if cfg.Service.DownloadLocation != want {
		t.Errorf("Service.DownloadLocation = %q, want %q", cfg.Service.DownloadLocation, want)
	}

	info, err := os.Stat(want)
	if err != nil {
		t.Fatalf("service subdirectory was not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%q is not a directory", want)
	}
}

func TestLoadDownloadLocationAlreadyHasServiceSubdirectory(t *testing.T) {
	dlDir := t.TempDir()
	preexisting := filepath.Join(dlDir, "upparat")
	if err := os.MkdirAll(preexisting, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	path := writeTempConfig(t, `
service:
  download_location: `+dlDir+`
`)

	cfg, err := Load(path, false, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.DownloadLocation != preexisting {
		t.Errorf("Service.DownloadLocation = %q, want %q", cfg.Service.DownloadLocation, preexisting)
	}
}

func TestLoadVerboseOverridesLogLevel(t *testing.T) {
	dlDir := t.TempDir()
	path := writeTempConfig(t, `
service:
  download_location: `+dlDir+`
  log_level: info
`)

	cfg, err := Load(path, true, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("Service.LogLevel = %q, want debug", cfg.Service.LogLevel)
	}
}

func TestLoadThingNameOverrideWinsOverFile(t *testing.T) {
	dlDir := t.TempDir()
	path := writeTempConfig(t, `
service:
  download_location: `+dlDir+`
broker:
  thing_name: from-file
`)

	cfg, err := Load(path, false, "from-flag")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.ThingName != "from-flag" {
		t.Errorf("Broker.ThingName = %q, want from-flag", cfg.Broker.ThingName)
	}
}

func TestLoadMissingDownloadLocation(t *testing.T) {
	path := writeTempConfig(t, `
service:
  log_level: info
`)
	if _, err := Load(path, false, ""); err == nil {
		t.Fatal("expected error for missing download_location")
	}
}

func TestLoadNonExecutableHook(t *testing.T) {
	dlDir := t.TempDir()
	hookPath := filepath.Join(dlDir, "hook.sh")
	if err := os.WriteFile(hookPath, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	path := writeTempConfig(t, `
service:
  download_location: `+dlDir+`
hooks:
  install: `+hookPath+`
`)
	if _, err := Load(path, false, ""); err == nil {
		t.Fatal("expected error for non-executable hook")
	}
}

func TestLoadTLSPartialTriplet(t *testing.T) {
	dlDir := t.TempDir()
	path := writeTempConfig(t, `
service:
  download_location: `+dlDir+`
broker:
  cafile: /tmp/ca.pem
`)
	if _, err := Load(path, false, ""); err == nil {
		t.Fatal("expected error for partial TLS triplet")
	}
}

func TestLoadTLSWrongPort(t *testing.T) {
	dlDir := t.TempDir()
	caFile := filepath.Join(dlDir, "ca.pem")
	certFile := filepath.Join(dlDir, "cert.pem")
	keyFile := filepath.Join(dlDir, "key.pem")
	for _, f := range []string{caFile, certFile, keyFile} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	path := writeTempConfig(t, `
service:
  download_location: `+dlDir+`
broker:
  port: 1883
  cafile: `+caFile+`
  certfile: `+certFile+`
  keyfile: `+keyFile+`
`)
	if _, err := Load(path, false, ""); err == nil {
		t.Fatal("expected error for TLS material with non-TLS port")
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	if _, err := ResolvePath(""); err == nil {
		t.Fatal("expected error when no flag or env set")
	}

	if got, err := ResolvePath("/explicit/path.yaml"); err != nil || got != "/explicit/path.yaml" {
		t.Errorf("ResolvePath(flag) = %q, %v", got, err)
	}

	t.Setenv(EnvConfigFile, "/env/path.yaml")
	if got, err := ResolvePath(""); err != nil || got != "/env/path.yaml" {
		t.Errorf("ResolvePath(env) = %q, %v", got, err)
	}
}

func TestResolveVerbose(t *testing.T) {
	t.Setenv(EnvVerbose, "")
	if ResolveVerbose(false) {
		t.Error("ResolveVerbose() = true, want false")
	}
	if !ResolveVerbose(true) {
		t.Error("ResolveVerbose(true) = false, want true")
	}

	t.Setenv(EnvVerbose, "1")
	if !ResolveVerbose(false) {
		t.Error("ResolveVerbose() with env set = false, want true")
	}
}
