// Package artifact builds and pushes application images against a container
// engine, turning the engine's callback-driven notifications into single
// blocking calls.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"skiff/docker/pkg/gate"
	"skiff/docker/pkg/model"
	"skiff/docker/pkg/registry"
)

// Handler executes build and push operations. Each call opens its own
// session, waits for the engine's terminal notification, and releases the
// session and its operation handle before returning, on every path.
//
// A Handler is safe for concurrent use; each operation carries its own
// session and completion gate.
type Handler struct {
	connector Connector
	logger    *zap.Logger
}

// NewHandler creates a Handler on top of an engine connector.
func NewHandler(connector Connector, logger *zap.Logger) *Handler {
	return &Handler{connector: connector, logger: logger}
}

// BuildImage builds the descriptor's image from a staged build context
// directory. It blocks until the engine reports a terminal result or ctx
// ends.
//
// Failures map to error codes: ErrCodeConnection when the endpoint is
// unreachable, ErrCodeEngine when the engine reports or causes a failure,
// and ErrCodeInterrupted when ctx ends first. Interruption abandons the
// wait but still releases the session and handle before returning.
func (h *Handler) BuildImage(ctx context.Context, d model.BuildDescriptor, contextDir string) error {
	h.logger.Info("Building image",
		zap.String("image", d.Name),
		zap.String("context_dir", contextDir))

	sess, err := h.connector.Connect(ctx, Endpoint{Host: d.Host, CertPath: d.CertPath}, nil)
	if err != nil {
		return NewErrorWithCause(ErrCodeConnection, "failed to connect to the container engine", err)
	}

	req := BuildRequest{Repository: d.Name, ContextDir: contextDir}
	err = h.run(ctx, sess, d.Name, "build", func(l EventListener) (Handle, error) {
		return sess.Build(ctx, req, l)
	})
	if err != nil {
		return err
	}

	h.logger.Info("Image built", zap.String("image", d.Name))
	return nil
}

// PushImage pushes the descriptor's image to its registry. Credentials are
// taken from the descriptor and scoped to the registry extracted from the
// image reference. It blocks until the engine reports a terminal result or
// ctx ends.
func (h *Handler) PushImage(ctx context.Context, d model.BuildDescriptor) error {
	if d.Credentials == nil {
		return NewError(ErrCodeDescriptor, "registry credentials are required for push")
	}

	reg, err := registry.Extract(d.Name)
	if err != nil {
		return NewErrorWithCause(ErrCodeDescriptor, "failed to resolve the target registry", err)
	}

	h.logger.Info("Pushing image",
		zap.String("image", d.Name),
		zap.String("registry", reg))

	auth := &AuthConfig{
		Username:      d.Credentials.Username,
		Password:      d.Credentials.Password,
		ServerAddress: reg,
	}
	sess, err := h.connector.Connect(ctx, Endpoint{Host: d.Host, CertPath: d.CertPath}, auth)
	if err != nil {
		return NewErrorWithCause(ErrCodeConnection, "failed to connect to the container engine", err)
	}

	err = h.run(ctx, sess, d.Name, "push", func(l EventListener) (Handle, error) {
		return sess.Push(ctx, d.Name, l)
	})
	if err != nil {
		return err
	}

	h.logger.Info("Image pushed", zap.String("image", d.Name))
	return nil
}

// run drives one submitted operation to completion: submit, wait for the
// gate, release the handle and session, then surface the captured outcome.
// Release happens before the outcome is read so engine resources never
// outlive the call, including when the wait is interrupted.
func (h *Handler) run(ctx context.Context, sess Session, image, action string, submit func(EventListener) (Handle, error)) error {
	done := gate.New()
	listener := &gateListener{
		gate:   done,
		logger: h.logger,
		action: action,
		image:  image,
	}

	handle, err := submit(listener)
	if err != nil {
		h.closeQuietly(sess, "session", image)
		return NewErrorWithCause(ErrCodeEngine, fmt.Sprintf("failed to submit image %s", action), err)
	}

	waitErr := done.Wait(ctx)

	h.closeQuietly(handle, "operation handle", image)
	h.closeQuietly(sess, "session", image)

	if waitErr == nil {
		return nil
	}
	if errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrCodeInterrupted,
			fmt.Sprintf("image %s interrupted while waiting for the engine", action), waitErr)
	}
	return waitErr
}

func (h *Handler) closeQuietly(c io.Closer, what, image string) {
	if err := c.Close(); err != nil {
		h.logger.Warn("Failed to release engine resource",
			zap.String("resource", what),
			zap.String("image", image),
			zap.Error(err))
	}
}

// gateListener funnels one operation's notifications into its gate. The
// terminal callbacks resolve the gate; only the first resolution counts.
// Progress events go to the log and nowhere else.
type gateListener struct {
	gate   *gate.Gate
	logger *zap.Logger
	action string
	image  string
}

func (l *gateListener) OnSuccess(message string) {
	l.gate.Succeed()
}

func (l *gateListener) OnError(message string) {
	l.gate.Fail(NewError(ErrCodeEngine, fmt.Sprintf("unable to %s image: %s", l.action, message)))
}

func (l *gateListener) OnFailure(err error) {
	l.gate.Fail(NewErrorWithCause(ErrCodeEngine, fmt.Sprintf("unable to %s image", l.action), err))
}

func (l *gateListener) OnEvent(event string) {
	l.logger.Debug("Engine event",
		zap.String("action", l.action),
		zap.String("image", l.image),
		zap.String("event", event))
}
