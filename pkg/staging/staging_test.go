package staging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"skiff/docker/pkg/dockerfile"
	"skiff/docker/pkg/model"
	"skiff/docker/pkg/staging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStageWritesManifestAndFiles(t *testing.T) {
	src := t.TempDir()
	confPath := filepath.Join(src, "nested", "conf.toml")
	writeFile(t, confPath, "port = 8080\n")
	keyPath := filepath.Join(src, "service.key")
	writeFile(t, keyPath, "key material\n")

	d := model.BuildDescriptor{
		Name:         "app:1.0",
		BaseImage:    "ubuntu:20.04",
		ArtifactName: "app.bin",
		Files: []model.CopyEntry{
			{Source: confPath, Target: "/home/app/conf.toml", IsConfigFile: true},
			{Source: keyPath, Target: "/home/app/service.key"},
		},
	}

	dir := filepath.Join(t.TempDir(), "ctx")
	s := staging.NewStager(zap.NewNop())
	if err := s.Stage(context.Background(), d, dir); err != nil {
		t.Fatalf("Stage() = %v, want nil", err)
	}

	manifest, err := os.ReadFile(filepath.Join(dir, dockerfile.Filename))
	if err != nil {
		t.Fatalf("manifest not staged: %v", err)
	}
	if string(manifest) != dockerfile.Generate(d) {
		t.Fatalf("staged manifest does not match Generate():\n%s", manifest)
	}

	// Files land flat under their base names.
	conf, err := os.ReadFile(filepath.Join(dir, "conf.toml"))
	if err != nil {
		t.Fatalf("config file not staged: %v", err)
	}
	if string(conf) != "port = 8080\n" {
		t.Fatalf("staged config content = %q", conf)
	}
	if _, err := os.Stat(filepath.Join(dir, "service.key")); err != nil {
		t.Fatalf("second file not staged: %v", err)
	}
}

func TestStageOverwritesExistingManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, dockerfile.Filename), "FROM stale\n")

	d := model.BuildDescriptor{Name: "app:1.0", BaseImage: "ubuntu:20.04", ArtifactName: "app.bin"}
	s := staging.NewStager(zap.NewNop())
	if err := s.Stage(context.Background(), d, dir); err != nil {
		t.Fatalf("Stage() = %v, want nil", err)
	}

	manifest, err := os.ReadFile(filepath.Join(dir, dockerfile.Filename))
	if err != nil {
		t.Fatal(err)
	}
	if string(manifest) != dockerfile.Generate(d) {
		t.Fatal("Stage() kept a stale manifest")
	}
}

func TestStageRejectsInvalidDescriptor(t *testing.T) {
	s := staging.NewStager(zap.NewNop())
	d := model.BuildDescriptor{Name: "app:1.0"} // no base image

	if err := s.Stage(context.Background(), d, t.TempDir()); err == nil {
		t.Fatal("Stage() accepted a descriptor without a base image")
	}
}

func TestStageFailsOnMissingSourceFile(t *testing.T) {
	d := model.BuildDescriptor{
		Name:         "app:1.0",
		BaseImage:    "ubuntu:20.04",
		ArtifactName: "app.bin",
		Files: []model.CopyEntry{
			{Source: filepath.Join(t.TempDir(), "absent.toml"), Target: "/home/app/absent.toml"},
		},
	}

	s := staging.NewStager(zap.NewNop())
	if err := s.Stage(context.Background(), d, t.TempDir()); err == nil {
		t.Fatal("Stage() succeeded with a missing source file")
	}
}

func TestStageHonorsCancelledContext(t *testing.T) {
	src := filepath.Join(t.TempDir(), "conf.toml")
	writeFile(t, src, "x")

	d := model.BuildDescriptor{
		Name:         "app:1.0",
		BaseImage:    "ubuntu:20.04",
		ArtifactName: "app.bin",
		Files:        []model.CopyEntry{{Source: src, Target: "/home/app/conf.toml"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := staging.NewStager(zap.NewNop())
	if err := s.Stage(ctx, d, t.TempDir()); err == nil {
		t.Fatal("Stage() ignored a cancelled context")
	}
}

func TestResolveLocalDirectoryPassesThrough(t *testing.T) {
	dir := t.TempDir()
	s := staging.NewStager(zap.NewNop())

	got, cleanup, err := s.Resolve(context.Background(), dir)
	if err != nil {
		t.Fatalf("Resolve() = %v, want nil", err)
	}
	if got != dir {
		t.Fatalf("Resolve() = %q, want the directory back unchanged", got)
	}

	// Cleanup of a passthrough source must not touch the directory.
	cleanup()
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("Resolve() cleanup removed a caller-owned directory: %v", err)
	}
}

func TestResolveUnreachableGitSourceFails(t *testing.T) {
	s := staging.NewStager(zap.NewNop())

	before := cloneDirs(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, err := s.Resolve(ctx, "https://127.0.0.1:1/unreachable.git")
	if err == nil {
		t.Fatal("Resolve() succeeded against an unreachable git source")
	}

	// A failed clone must not leave its temporary directory behind.
	for dir := range cloneDirs(t) {
		if !before[dir] {
			t.Fatalf("Resolve() left clone directory %s behind", dir)
		}
	}
}

// cloneDirs returns the clone temp directories that currently exist, keyed
// for quick membership checks.
func cloneDirs(t *testing.T) map[string]bool {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "skiff-context-*"))
	if err != nil {
		t.Fatal(err)
	}
	dirs := make(map[string]bool, len(matches))
	for _, m := range matches {
		dirs[m] = true
	}
	return dirs
}
