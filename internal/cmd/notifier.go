package cmd

import (
	"context"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/policy"
)

// terminalNotifier prints console notifications to stderr, green for
// success and red for failures.
type terminalNotifier struct {
	mu      sync.Mutex
	out     io.Writer
	quiet   bool
	success *color.Color
	failure *color.Color
}

func newTerminalNotifier(out io.Writer, quiet bool) *terminalNotifier {
	return &terminalNotifier{
		out:     out,
		quiet:   quiet,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed, color.Bold),
	}
}

// Notify implements policy.Notifier. Batch workers call it concurrently.
func (n *terminalNotifier) Notify(_ context.Context, note policy.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch note.Level {
	case policy.LevelSuccess:
		if n.quiet {
			return
		}
		_, _ = n.success.Fprintln(n.out, "✓ "+note.Message)
	case policy.LevelError:
		_, _ = n.failure.Fprintln(n.out, "✗ "+note.Message)
	}
}
