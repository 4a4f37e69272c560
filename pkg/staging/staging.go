// Package staging materializes build contexts for engine operations: the
// rendered manifest plus the descriptor's files laid out flat, which is the
// layout the manifest's COPY instructions expect.
package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"skiff/docker/pkg/dockerfile"
	"skiff/docker/pkg/model"
)

// Stager prepares build context directories.
type Stager struct {
	logger *zap.Logger
}

// NewStager creates a Stager.
func NewStager(logger *zap.Logger) *Stager {
	return &Stager{logger: logger}
}

// Stage validates the descriptor and fills dir with its build context: the
// rendered manifest and every descriptor file copied under its base name.
// The caller places the primary artifact in dir itself. The directory is
// created if missing; an existing manifest is overwritten because the
// descriptor is authoritative.
func (s *Stager) Stage(ctx context.Context, d model.BuildDescriptor, dir string) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create context directory %s: %w", dir, err)
	}

	manifestPath := filepath.Join(dir, dockerfile.Filename)
	if err := os.WriteFile(manifestPath, []byte(dockerfile.Generate(d)), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	for _, f := range d.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFlat(f.Source, dir); err != nil {
			return err
		}
	}

	s.logger.Info("Staged build context",
		zap.String("image", d.Name),
		zap.String("dir", dir),
		zap.Int("files", len(d.Files)))
	return nil
}

// Resolve turns a context source into a local directory. Local directories
// pass through unchanged with a no-op cleanup; git sources are cloned into
// a temporary directory the returned cleanup removes.
func (s *Stager) Resolve(ctx context.Context, source string) (string, func(), error) {
	if !isGitSource(source) {
		return source, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "skiff-context-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create clone directory: %w", err)
	}

	s.logger.Info("Cloning build context", zap.String("source", source))
	if _, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: source}); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("failed to clone build context %s: %w", source, err)
	}

	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Failed to remove cloned context",
				zap.String("dir", dir),
				zap.Error(err))
		}
	}
	return dir, cleanup, nil
}

// isGitSource reports whether the context source names a git repository
// rather than a local directory.
func isGitSource(source string) bool {
	return strings.HasSuffix(source, ".git") ||
		strings.HasPrefix(source, "git@") ||
		strings.HasPrefix(source, "git://") ||
		strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://")
}

func copyFlat(source, dir string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", source, err)
	}
	defer in.Close()

	target := filepath.Join(dir, filepath.Base(source))
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", source, err)
	}
	return out.Close()
}
