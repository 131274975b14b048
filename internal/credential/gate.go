// Package credential decides which backend paths need the privileged admin
// credential and attaches it to exactly those calls.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
)

// HeaderName is the single header carrying the admin credential.
const HeaderName = "X-Admin-Key"

// Rules is the declarative allow-list of privileged paths.
//
// Prefixes match whole path segments: "/api/admin" covers "/api/admin" and
// "/api/admin/x" but not "/api/administrator". Patterns use {name}
// placeholders for exactly one segment, e.g. "/api/admin/tenants/{id}".
type Rules struct {
	Prefixes []string
	Patterns []string
}

// DefaultRules returns the allow-list used when configuration supplies none.
func DefaultRules() Rules {
	return Rules{
		Prefixes: []string{"/api/admin"},
		Patterns: []string{
			"/api/admin/tenants/{id}",
			"/api/admin/tenants/{id}/users/{userId}",
			"/api/admin/companies/{id}",
		},
	}
}

// MatchKind tells whether a rule is a prefix or a pattern.
type MatchKind string

const (
	MatchPrefix  MatchKind = "prefix"
	MatchPattern MatchKind = "pattern"
)

// Match is the rule that made a path privileged.
type Match struct {
	Rule string
	Kind MatchKind
}

type rule struct {
	source   string
	kind     MatchKind
	prefix   string
	re       *regexp.Regexp
	literals int // literal segments, the specificity key
}

// Gate evaluates paths against compiled Rules.
type Gate struct {
	rules []rule
}

var placeholder = regexp.MustCompile(`^\{[A-Za-z_][A-Za-z0-9_]*\}$`)

// NewGate compiles rules. Rules are ordered most specific first so Match
// reports the resource-with-id rule over a bare prefix.
func NewGate(rules Rules) (*Gate, error) {
	g := &Gate{}
	for _, p := range rules.Prefixes {
		p = normalizePath(p)
		if p == "" {
			continue
		}
		g.rules = append(g.rules, rule{
			source:   p,
			kind:     MatchPrefix,
			prefix:   p,
			literals: len(segments(p)),
		})
	}
	for _, p := range rules.Patterns {
		r, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		if r != nil {
			g.rules = append(g.rules, *r)
		}
	}

	sort.SliceStable(g.rules, func(i, j int) bool {
		a, b := g.rules[i], g.rules[j]
		if a.kind != b.kind {
			return a.kind == MatchPattern
		}
		if a.literals != b.literals {
			return a.literals > b.literals
		}
		return len(a.source) > len(b.source)
	})
	return g, nil
}

// MustGate is NewGate for static rule sets; it panics on an invalid pattern.
func MustGate(rules Rules) *Gate {
	g, err := NewGate(rules)
	if err != nil {
		panic(err)
	}
	return g
}

func compilePattern(pattern string) (*rule, error) {
	p := normalizePath(pattern)
	if p == "" {
		return nil, nil
	}
	var b strings.Builder
	b.WriteString("^")
	literals := 0
	for _, seg := range segments(p) {
		b.WriteString("/")
		switch {
		case placeholder.MatchString(seg):
			b.WriteString("[^/]+")
		case strings.ContainsAny(seg, "{}"):
			return nil, fmt.Errorf("invalid admin path pattern %q: bad placeholder %q", pattern, seg)
		default:
			b.WriteString(regexp.QuoteMeta(seg))
			literals++
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid admin path pattern %q: %w", pattern, err)
	}
	return &rule{source: p, kind: MatchPattern, re: re, literals: literals}, nil
}

// Match returns the most specific rule covering path.
func (g *Gate) Match(path string) (Match, bool) {
	if g == nil {
		return Match{}, false
	}
	p := normalizePath(path)
	if p == "" {
		return Match{}, false
	}
	for _, r := range g.rules {
		switch r.kind {
		case MatchPattern:
			if r.re.MatchString(p) {
				return Match{Rule: r.source, Kind: r.kind}, true
			}
		case MatchPrefix:
			if p == r.prefix || strings.HasPrefix(p, r.prefix+"/") {
				return Match{Rule: r.source, Kind: r.kind}, true
			}
		}
	}
	return Match{}, false
}

// RequiresCredential reports whether path is on the allow-list.
func (g *Gate) RequiresCredential(path string) bool {
	_, ok := g.Match(path)
	return ok
}

// Wrap gates next:
//   - privileged path without a stored credential fails with
//     *api.CredentialRequiredError before any network call;
//   - privileged path with a credential gets HeaderName (caller headers
//     still win), and a 401/403 answer clears the store and becomes
//     *api.CredentialInvalidError;
//   - any other path never carries the credential.
func (g *Gate) Wrap(next api.ExecuteFunc, store *Store) api.ExecuteFunc {
	return func(ctx context.Context, path string, opts api.Options) (json.RawMessage, error) {
		if !g.RequiresCredential(path) {
			opts.Headers = withoutCredential(opts.Headers)
			return next(ctx, path, opts)
		}

		token, ok := store.Get()
		if !ok {
			return nil, &api.CredentialRequiredError{Path: path}
		}

		headers := http.Header{}
		headers.Set(HeaderName, token)
		for key, values := range opts.Headers {
			headers[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
		}
		opts.Headers = headers

		result, err := next(ctx, path, opts)
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) && (httpErr.Status == http.StatusUnauthorized || httpErr.Status == http.StatusForbidden) {
			store.clearIf(token)
			return nil, &api.CredentialInvalidError{Path: path, Status: httpErr.Status, Message: httpErr.Message}
		}
		return result, err
	}
}

// normalizePath strips the query, collapses duplicate slashes and drops a
// trailing slash so "/a/b/" and "/a/b?x=1" match like "/a/b".
// withoutCredential drops HeaderName under any spelling of its key. h is
// returned as is when it carries none.
func withoutCredential(h http.Header) http.Header {
	var out http.Header
	for key := range h {
		if http.CanonicalHeaderKey(key) != HeaderName {
			continue
		}
		if out == nil {
			out = h.Clone()
		}
		delete(out, key)
	}
	if out == nil {
		return h
	}
	return out
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segs := segments(path)
	if len(segs) == 0 {
		return ""
	}
	return "/" + strings.Join(segs, "/")
}

func segments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
