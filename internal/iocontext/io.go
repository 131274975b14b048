// Package iocontext carries the process streams through a context so
// commands can be driven with fake stdin/stdout in tests.
package iocontext

import (
	"context"
	"io"
	"os"
)

// IO holds the input/output streams for commands.
type IO struct {
	Out    io.Writer // stdout
	ErrOut io.Writer // stderr
	In     io.Reader // stdin
}

// DefaultIO returns the standard IO streams.
func DefaultIO() *IO {
	return &IO{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
		In:     os.Stdin,
	}
}

type ioKey struct{}

// WithIO adds IO streams to a context.
func WithIO(ctx context.Context, io *IO) context.Context {
	return context.WithValue(ctx, ioKey{}, io)
}

// GetIO retrieves IO streams from context, defaulting to standard streams.
// Unset fields of a stored IO fall back to the matching standard stream.
func GetIO(ctx context.Context) *IO {
	io, ok := ctx.Value(ioKey{}).(*IO)
	if !ok || io == nil {
		return DefaultIO()
	}
	out := *io
	def := DefaultIO()
	if out.Out == nil {
		out.Out = def.Out
	}
	if out.ErrOut == nil {
		out.ErrOut = def.ErrOut
	}
	if out.In == nil {
		out.In = def.In
	}
	return &out
}
