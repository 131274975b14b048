// Package dryrun previews mutating requests without sending them.
package dryrun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
)

type contextKey struct{}

// WithDryRun returns a context with dry-run mode enabled/disabled.
func WithDryRun(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, contextKey{}, enabled)
}

// IsEnabled returns true if dry-run mode is enabled.
func IsEnabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(contextKey{}).(bool)
	return v
}

// Preview describes the request a mutation would send.
type Preview struct {
	Method string
	Path   string
	Tenant string
	Opts   api.Options

	// Privileged reports whether the path needs the admin credential.
	Privileged bool
	Warnings   []string
}

// Write outputs the preview to the writer
func (p *Preview) Write(w io.Writer) {
	_, _ = fmt.Fprintf(w, "\n[DRY-RUN] Would send %s %s\n", p.Method, p.Path)
	_, _ = fmt.Fprintf(w, "───────────────────────────────────────\n")

	tenant := p.Tenant
	if tenant == "" {
		tenant = "(none)"
	}
	_, _ = fmt.Fprintf(w, "  tenant: %s\n", tenant)
	_, _ = fmt.Fprintf(w, "  privileged: %t\n", p.Privileged)
	if len(p.Opts.Query) > 0 {
		_, _ = fmt.Fprintf(w, "  query: %s\n", p.Opts.Query.Encode())
	}
	for _, line := range headerLines(p.Opts.Headers) {
		_, _ = fmt.Fprintf(w, "  header: %s\n", line)
	}
	if body := describeBody(p.Opts.Body); body != "" {
		_, _ = fmt.Fprintf(w, "  body: %s\n", body)
	}
	_, _ = fmt.Fprintln(w)

	if len(p.Warnings) > 0 {
		_, _ = fmt.Fprintln(w, "Warnings:")
		for _, warning := range p.Warnings {
			_, _ = fmt.Fprintf(w, "  ! %s\n", warning)
		}
		_, _ = fmt.Fprintln(w)
	}

	_, _ = fmt.Fprintf(w, "───────────────────────────────────────\n")
	_, _ = fmt.Fprintln(w, "No changes made (dry-run mode)")
}

func headerLines(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var lines []string
	for _, k := range keys {
		lines = append(lines, k+": "+strings.Join(h[k], ", "))
	}
	return lines
}

func describeBody(body any) string {
	switch b := body.(type) {
	case nil:
		return ""
	case *api.Multipart:
		parts := make([]string, 0, len(b.Fields)+len(b.Files))
		for k, v := range b.Fields {
			parts = append(parts, fmt.Sprintf("%s=%q", k, v))
		}
		sort.Strings(parts)
		for _, f := range b.Files {
			field := f.Field
			if field == "" {
				field = "file"
			}
			parts = append(parts, fmt.Sprintf("%s=@%s (%d bytes)", field, f.Name, len(f.Content)))
		}
		return "multipart " + strings.Join(parts, " ")
	case json.RawMessage:
		return string(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return fmt.Sprintf("%v", b)
		}
		return string(raw)
	}
}
