// Package model defines the build descriptor that drives manifest
// generation and engine operations.
package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DefaultDebugPort is exposed when debugging is enabled without an
// explicit port.
const DefaultDebugPort = 5005

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// CopyEntry describes one file copied into the image next to the primary
// artifact.
type CopyEntry struct {
	// Source is the path of the file on the machine running the build.
	// Only its base name is used inside the image's build context.
	Source string `validate:"required"`
	// Target is the absolute path the file ends up at inside the image.
	Target string `validate:"required"`
	// IsConfigFile marks the entry as a runtime configuration file, which
	// adds a --config flag for it to the image's run instruction.
	IsConfigFile bool
}

// DebugOptions enables remote debugging for the packaged application.
type DebugOptions struct {
	Enabled bool
	// Port the debugger listens on. Zero selects DefaultDebugPort.
	Port int
}

// RegistryCredentials authenticate a push against the image's registry.
type RegistryCredentials struct {
	Username string
	Password string
}

// BuildDescriptor describes a single image to build and optionally push.
//
// A descriptor is treated as read-only once handed to an operation; callers
// must not mutate it, or any slice it references, while an operation is in
// flight.
type BuildDescriptor struct {
	// Name is the image reference including tag, e.g. "app:1.0" or
	// "ghcr.io/org/app:1.0".
	Name string `validate:"required"`
	// BaseImage is the image the manifest's FROM instruction names.
	BaseImage string `validate:"required"`
	// ArtifactName is the file name of the primary executable artifact.
	ArtifactName string
	// Files are copied into the image in order; order is significant for
	// both the COPY instructions and the run instruction's config flags.
	Files []CopyEntry `validate:"dive"`
	// Ports the application listens on. Rendered deduplicated in
	// ascending order; callers may pass them in any order.
	Ports []int
	// IsService marks the application as long-running. Ports are only
	// exposed for services.
	IsService bool
	Debug     DebugOptions

	// Host is the engine endpoint the operations connect to, e.g.
	// "unix:///var/run/docker.sock" or "tcp://10.0.0.5:2376". Empty falls
	// back to the environment's default endpoint.
	Host string
	// CertPath points at the directory holding the TLS material for the
	// endpoint (ca.pem, cert.pem, key.pem). Empty means plain transport.
	CertPath string
	// Credentials are required for push operations only.
	Credentials *RegistryCredentials
}

// Validate checks the descriptor against its input contract: a non-empty
// image name and base image, and complete copy entries.
func (d *BuildDescriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid build descriptor: %w", err)
	}
	return nil
}

// DebugPort returns the configured debug port, falling back to
// DefaultDebugPort when unset.
func (d *BuildDescriptor) DebugPort() int {
	if d.Debug.Port > 0 {
		return d.Debug.Port
	}
	return DefaultDebugPort
}
