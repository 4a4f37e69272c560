package artifact

import "context"

// Endpoint identifies the engine daemon a session connects to. Connection
// settings travel with the call instead of living in process-global state,
// so concurrent operations can target different daemons.
type Endpoint struct {
	// Host is the daemon address, e.g. "unix:///var/run/docker.sock" or
	// "tcp://10.0.0.5:2376". Empty selects the environment's default.
	Host string
	// CertPath is the directory holding ca.pem, cert.pem and key.pem for
	// a TLS endpoint. Empty means plain transport.
	CertPath string
}

// AuthConfig carries registry credentials scoped to one session.
type AuthConfig struct {
	Username string
	Password string
	// ServerAddress is the registry endpoint the credentials belong to,
	// as resolved by registry.Extract.
	ServerAddress string
}

// EventListener receives engine notifications for one in-flight operation.
//
// Exactly one terminal notification is delivered per operation: OnSuccess,
// OnError with the engine's message, or OnFailure with an underlying cause.
// OnEvent may fire any number of times before the terminal one. Callbacks
// arrive from the session's streaming goroutine, never from the caller's
// goroutine.
type EventListener interface {
	// OnSuccess reports the operation finished. The message may be empty.
	OnSuccess(message string)
	// OnError reports a failure described by the engine. The message is
	// forwarded verbatim.
	OnError(message string)
	// OnFailure reports a failure with an underlying cause, such as a
	// broken event stream.
	OnFailure(err error)
	// OnEvent reports non-terminal progress.
	OnEvent(event string)
}

// BuildRequest submits one image build.
type BuildRequest struct {
	// Repository is the image reference the built image is tagged with.
	Repository string
	// ContextDir is the staged build context directory holding the
	// manifest and every file it copies.
	ContextDir string
}

// Handle is the engine-side resource backing one submitted operation.
// Closing it releases the operation's event stream; it is safe to close
// more than once.
type Handle interface {
	Close() error
}

// Session is one verified connection to an engine daemon. A session is
// owned by a single operation and closed when the operation finishes,
// whatever its outcome.
type Session interface {
	// Build submits an image build and streams its events to l until the
	// terminal notification.
	Build(ctx context.Context, req BuildRequest, l EventListener) (Handle, error)
	// Push submits an image push using the session's credentials and
	// streams its events to l until the terminal notification.
	Push(ctx context.Context, imageRef string, l EventListener) (Handle, error)
	Close() error
}

// Connector opens engine sessions. Connect must verify the endpoint is
// reachable before returning, so unreachable daemons surface immediately
// instead of mid-operation.
type Connector interface {
	Connect(ctx context.Context, ep Endpoint, auth *AuthConfig) (Session, error)
}
