package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skiff/docker/pkg/config"
	"skiff/docker/pkg/model"
)

// clearEnv blanks every variable Load reads, so ambient values from the
// host running the tests cannot leak in. Viper treats empty values as
// unset, which leaves the defaults in force.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DOCKER_HOST", "DOCKER_API_VERSION", "DOCKER_CERT_PATH",
		"REGISTRY_USERNAME", "REGISTRY_PASSWORD", "DEBUG_PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Engine.Host != "unix:///var/run/docker.sock" {
		t.Fatalf("default host = %q", cfg.Engine.Host)
	}
	if cfg.Engine.APIVersion != "" || cfg.Engine.CertPath != "" {
		t.Fatalf("default engine config not empty: %+v", cfg.Engine)
	}
	if cfg.DebugPort != model.DefaultDebugPort {
		t.Fatalf("default debug port = %d, want %d", cfg.DebugPort, model.DefaultDebugPort)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCKER_HOST", "tcp://10.0.0.5:2376")
	t.Setenv("DOCKER_API_VERSION", "1.47")
	t.Setenv("REGISTRY_USERNAME", "someuser")
	t.Setenv("REGISTRY_PASSWORD", "secret")
	t.Setenv("DEBUG_PORT", "9000")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Engine.Host != "tcp://10.0.0.5:2376" {
		t.Fatalf("host = %q", cfg.Engine.Host)
	}
	if cfg.Engine.APIVersion != "1.47" {
		t.Fatalf("api version = %q", cfg.Engine.APIVersion)
	}
	if cfg.Registry.Username != "someuser" || cfg.Registry.Password != "secret" {
		t.Fatalf("registry config = %+v", cfg.Registry)
	}
	if cfg.DebugPort != 9000 {
		t.Fatalf("debug port = %d", cfg.DebugPort)
	}
}

func TestLoadValidatesCertPath(t *testing.T) {
	clearEnv(t)
	certDir := t.TempDir()
	for _, name := range []string{"ca.pem", "cert.pem"} {
		if err := os.WriteFile(filepath.Join(certDir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("DOCKER_CERT_PATH", certDir)

	_, err := config.Load()
	if err == nil {
		t.Fatal("Load() accepted a cert directory without key.pem")
	}
	if !strings.Contains(err.Error(), "key.pem") {
		t.Fatalf("Load() error %q does not name the missing file", err)
	}
}

func TestLoadAcceptsCompleteCertPath(t *testing.T) {
	clearEnv(t)
	certDir := t.TempDir()
	for _, name := range []string{"ca.pem", "cert.pem", "key.pem"} {
		if err := os.WriteFile(filepath.Join(certDir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("DOCKER_CERT_PATH", certDir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Engine.CertPath != certDir {
		t.Fatalf("cert path = %q, want %q", cfg.Engine.CertPath, certDir)
	}
}

func TestApplyToFillsOnlyEmptyFields(t *testing.T) {
	cfg := &config.Config{
		Engine:    config.EngineConfig{Host: "unix:///var/run/docker.sock", CertPath: "/certs"},
		Registry:  config.RegistryConfig{Username: "someuser", Password: "secret"},
		DebugPort: 5005,
	}

	d := model.BuildDescriptor{
		Name:      "app:1.0",
		BaseImage: "ubuntu:20.04",
		Host:      "tcp://10.0.0.5:2376",
		Debug:     model.DebugOptions{Enabled: true},
	}
	cfg.ApplyTo(&d)

	if d.Host != "tcp://10.0.0.5:2376" {
		t.Fatalf("ApplyTo() overwrote the descriptor host: %q", d.Host)
	}
	if d.CertPath != "/certs" {
		t.Fatalf("ApplyTo() did not fill the empty cert path: %q", d.CertPath)
	}
	if d.Credentials == nil || d.Credentials.Username != "someuser" {
		t.Fatalf("ApplyTo() did not fill credentials: %+v", d.Credentials)
	}
	if d.Debug.Port != 5005 {
		t.Fatalf("ApplyTo() did not fill the debug port: %d", d.Debug.Port)
	}
}

func TestApplyToKeepsExistingCredentials(t *testing.T) {
	cfg := &config.Config{
		Registry: config.RegistryConfig{Username: "fallback", Password: "fallback"},
	}

	d := model.BuildDescriptor{
		Credentials: &model.RegistryCredentials{Username: "explicit", Password: "explicit"},
	}
	cfg.ApplyTo(&d)

	if d.Credentials.Username != "explicit" {
		t.Fatalf("ApplyTo() replaced caller credentials: %+v", d.Credentials)
	}
}
