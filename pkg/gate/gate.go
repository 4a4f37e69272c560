// Package gate provides a single-resolution completion latch. It bridges
// callback-driven notifications into one blocking wait: whichever terminal
// callback fires first resolves the gate, and every later resolution attempt
// is a no-op.
package gate

import (
	"context"
	"sync"
)

// Gate is resolved exactly once with an optional error. The error is
// published before the done channel closes, so a waiter that observed the
// channel close always sees the final outcome.
//
// The zero value is not usable; create gates with New. A gate belongs to a
// single operation and is not reused after it resolves.
type Gate struct {
	once sync.Once
	done chan struct{}
	err  error
}

// New returns an unresolved gate.
func New() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Succeed resolves the gate without an error. No-op if already resolved.
func (g *Gate) Succeed() {
	g.resolve(nil)
}

// Fail resolves the gate with err. No-op if already resolved.
func (g *Gate) Fail(err error) {
	g.resolve(err)
}

func (g *Gate) resolve(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.done)
	})
}

// Done returns a channel that is closed once the gate resolves.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Resolved reports whether the gate has been resolved.
func (g *Gate) Resolved() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate resolves or ctx ends. It returns the resolution
// error, or ctx.Err() when the context ended first. A gate abandoned by a
// cancelled waiter still accepts its resolution later; it lands in a resolved
// gate nobody reads.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
