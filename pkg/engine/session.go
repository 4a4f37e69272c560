// Package engine implements the artifact engine contracts against a Docker
// daemon using the Docker Engine API client.
package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	dockerregistry "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"skiff/docker/pkg/artifact"
	"skiff/docker/pkg/dockerfile"
)

var (
	_ artifact.Connector = (*Connector)(nil)
	_ artifact.Session   = (*Session)(nil)
)

// Connector opens Docker-backed engine sessions.
type Connector struct {
	// APIVersion pins the Engine API version. Empty negotiates the
	// version with the daemon.
	APIVersion string

	logger *zap.Logger
}

// NewConnector creates a Connector that negotiates the API version.
func NewConnector(logger *zap.Logger) *Connector {
	return &Connector{logger: logger}
}

// Connect builds a client for the endpoint and verifies the daemon answers
// a ping before handing the session out. An endpoint with a CertPath gets a
// TLS transport loaded from that directory; nothing is read from
// process-global state.
func (c *Connector) Connect(ctx context.Context, ep artifact.Endpoint, auth *artifact.AuthConfig) (artifact.Session, error) {
	opts := make([]client.Opt, 0, 3)
	if ep.Host != "" {
		opts = append(opts, client.WithHost(ep.Host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	if ep.CertPath != "" {
		httpClient, err := newTLSClient(ep.CertPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithHTTPClient(httpClient))
	}
	if c.APIVersion != "" {
		opts = append(opts, client.WithVersion(c.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("engine endpoint %s is not reachable: %w", cli.DaemonHost(), err)
	}

	c.logger.Debug("Engine session opened",
		zap.String("host", cli.DaemonHost()),
		zap.String("api_version", cli.ClientVersion()))

	return &Session{cli: cli, auth: auth, logger: c.logger}, nil
}

// Session wraps one verified client connection. It serves a single
// operation and is closed by that operation's owner.
type Session struct {
	cli    *client.Client
	auth   *artifact.AuthConfig
	logger *zap.Logger
}

// Build archives the staged context, submits the build, and streams the
// daemon's events to l from a separate goroutine. The build never reuses
// cached layers and always removes intermediate containers.
func (s *Session) Build(ctx context.Context, req artifact.BuildRequest, l artifact.EventListener) (artifact.Handle, error) {
	buildCtx, err := archiveContext(req.ContextDir)
	if err != nil {
		return nil, fmt.Errorf("failed to archive build context %s: %w", req.ContextDir, err)
	}

	resp, err := s.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Dockerfile:  dockerfile.Filename,
		Tags:        []string{req.Repository},
		NoCache:     true,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit image build: %w", err)
	}

	s.logger.Debug("Image build submitted", zap.String("image", req.Repository))

	h := newHandle(resp.Body)
	go pumpEvents(resp.Body, l)
	return h, nil
}

// Push submits an image push authenticated with the session's credentials
// and streams the daemon's events to l from a separate goroutine.
func (s *Session) Push(ctx context.Context, imageRef string, l artifact.EventListener) (artifact.Handle, error) {
	var encodedAuth string
	if s.auth != nil {
		var err error
		encodedAuth, err = dockerregistry.EncodeAuthConfig(dockerregistry.AuthConfig{
			Username:      s.auth.Username,
			Password:      s.auth.Password,
			ServerAddress: s.auth.ServerAddress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode registry auth: %w", err)
		}
	}

	body, err := s.cli.ImagePush(ctx, imageRef, image.PushOptions{RegistryAuth: encodedAuth})
	if err != nil {
		return nil, fmt.Errorf("failed to submit image push: %w", err)
	}

	s.logger.Debug("Image push submitted", zap.String("image", imageRef))

	h := newHandle(body)
	go pumpEvents(body, l)
	return h, nil
}

// Close releases the underlying client connection.
func (s *Session) Close() error {
	return s.cli.Close()
}

// archiveContext tars the staged context directory in memory. Staged
// contexts are small: the manifest, the artifact and its config files.
func archiveContext(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
