package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
)

func TestGate_RequiresCredential(t *testing.T) {
	g := MustGate(DefaultRules())

	tests := []struct {
		path string
		want bool
	}{
		{"/api/admin", true},
		{"/api/admin/", true},
		{"/api/admin/tenants", true},
		{"/api/admin/tenants/", true},
		{"/api/admin/tenants/42", true},
		{"/api/admin/tenants/42/", true},
		{"/api/admin/tenants/42?expand=users", true},
		{"//api//admin//tenants", true},
		{"/api/administrator", false},
		{"/api/adminx/tenants", false},
		{"/api/companies", false},
		{"/api/documents", false},
		{"/", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, g.RequiresCredential(tt.path))
		})
	}
}

func TestGate_MostSpecificRuleWins(t *testing.T) {
	g := MustGate(Rules{
		Prefixes: []string{"/api/admin", "/api/admin/tenants"},
		Patterns: []string{"/api/admin/tenants/{id}", "/api/admin/tenants/{id}/users/{userId}", "/api/admin/{section}/{id}"},
	})

	tests := []struct {
		path string
		want Match
	}{
		{"/api/admin/tenants/42", Match{Rule: "/api/admin/tenants/{id}", Kind: MatchPattern}},
		{"/api/admin/tenants/42/", Match{Rule: "/api/admin/tenants/{id}", Kind: MatchPattern}},
		{"/api/admin/tenants/42/users/7", Match{Rule: "/api/admin/tenants/{id}/users/{userId}", Kind: MatchPattern}},
		{"/api/admin/companies/9", Match{Rule: "/api/admin/{section}/{id}", Kind: MatchPattern}},
		{"/api/admin/tenants", Match{Rule: "/api/admin/tenants", Kind: MatchPrefix}},
		{"/api/admin/tenants/42/settings", Match{Rule: "/api/admin/tenants", Kind: MatchPrefix}},
		{"/api/admin/stats", Match{Rule: "/api/admin", Kind: MatchPrefix}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := g.Match(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGate_PatternOnly(t *testing.T) {
	g := MustGate(Rules{Patterns: []string{"/api/tenants/{id}/billing"}})
	assert.True(t, g.RequiresCredential("/api/tenants/acme/billing"))
	assert.True(t, g.RequiresCredential("/api/tenants/acme/billing/"))
	assert.False(t, g.RequiresCredential("/api/tenants/acme"))
	assert.False(t, g.RequiresCredential("/api/tenants/acme/billing/history"))
	assert.False(t, g.RequiresCredential("/api/tenants//billing"))
}

func TestNewGate_InvalidPattern(t *testing.T) {
	_, err := NewGate(Rules{Patterns: []string{"/api/admin/{id"}})
	assert.Error(t, err)

	_, err = NewGate(Rules{Patterns: []string{"/api/admin/{1bad}"}})
	assert.Error(t, err)
}

func TestGate_NilNeverRequires(t *testing.T) {
	var g *Gate
	assert.False(t, g.RequiresCredential("/api/admin"))
}

// countingExecutor records calls and the credential header it saw.
type countingExecutor struct {
	calls   int32
	headers []string
	status  int
}

func (c *countingExecutor) execute(_ context.Context, _ string, opts api.Options) (json.RawMessage, error) {
	atomic.AddInt32(&c.calls, 1)
	c.headers = append(c.headers, opts.Headers.Get(HeaderName))
	if c.status >= 400 {
		return nil, &api.HTTPError{Status: c.status, Message: http.StatusText(c.status)}
	}
	return json.RawMessage(`{}`), nil
}

func TestWrap_NoCredentialFailsWithoutNetwork(t *testing.T) {
	exec := &countingExecutor{}
	fn := MustGate(DefaultRules()).Wrap(exec.execute, NewStore(""))

	for _, path := range []string{"/api/admin/tenants", "/api/admin/tenants/42", "/api/admin"} {
		_, err := fn(context.Background(), path, api.Options{Method: http.MethodGet})
		require.Error(t, err)
		assert.True(t, api.IsCredentialRequired(err), path)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&exec.calls))
}

func TestWrap_InjectsCredentialOnPrivilegedPath(t *testing.T) {
	exec := &countingExecutor{}
	fn := MustGate(DefaultRules()).Wrap(exec.execute, NewStore("s3cret"))

	_, err := fn(context.Background(), "/api/admin/tenants/42", api.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3cret"}, exec.headers)
}

func TestWrap_CallerHeaderWins(t *testing.T) {
	exec := &countingExecutor{}
	fn := MustGate(DefaultRules()).Wrap(exec.execute, NewStore("s3cret"))

	_, err := fn(context.Background(), "/api/admin", api.Options{Headers: http.Header{"x-admin-key": []string{"explicit"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"explicit"}, exec.headers)
}

func TestWrap_NeverAttachesOnOrdinaryPath(t *testing.T) {
	exec := &countingExecutor{}
	fn := MustGate(DefaultRules()).Wrap(exec.execute, NewStore("s3cret"))

	paths := []string{"/api/companies", "/api/documents", "/api/administrator", "/health"}
	for _, path := range paths {
		_, err := fn(context.Background(), path, api.Options{})
		require.NoError(t, err)
	}
	_, err := fn(context.Background(), "/api/documents", api.Options{Headers: http.Header{HeaderName: []string{"leak"}}})
	require.NoError(t, err)

	for _, h := range exec.headers {
		assert.Empty(t, h)
	}
}

func TestWrap_StripsAnySpellingOnOrdinaryPath(t *testing.T) {
	var seen http.Header
	fn := MustGate(DefaultRules()).Wrap(func(_ context.Context, _ string, opts api.Options) (json.RawMessage, error) {
		seen = opts.Headers
		return json.RawMessage(`{}`), nil
	}, NewStore("s3cret"))

	caller := http.Header{"x-admin-key": {"leak"}, "X-Trace": {"abc"}}
	_, err := fn(context.Background(), "/api/documents", api.Options{Headers: caller})
	require.NoError(t, err)

	for key := range seen {
		assert.NotEqual(t, HeaderName, http.CanonicalHeaderKey(key), "credential header %q forwarded", key)
	}
	assert.Equal(t, "abc", seen.Get("X-Trace"))
	assert.Equal(t, []string{"leak"}, caller["x-admin-key"], "caller headers are not mutated")
}

func TestWrap_RejectionClearsCredential(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		exec := &countingExecutor{status: status}
		store := NewStore("stale")
		fn := MustGate(DefaultRules()).Wrap(exec.execute, store)

		_, err := fn(context.Background(), "/api/admin/tenants", api.Options{})
		require.Error(t, err)
		assert.True(t, api.IsCredentialInvalid(err))
		assert.False(t, api.IsRetryable(err))

		_, ok := store.Get()
		assert.False(t, ok, "credential should be cleared after %d", status)
	}
}

func TestWrap_OrdinaryPath401IsHTTPError(t *testing.T) {
	exec := &countingExecutor{status: http.StatusUnauthorized}
	store := NewStore("kept")
	fn := MustGate(DefaultRules()).Wrap(exec.execute, store)

	_, err := fn(context.Background(), "/api/documents", api.Options{})
	require.Error(t, err)
	assert.True(t, api.IsHTTPError(err))

	token, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "kept", token)
}

func TestWrap_WithExecutor(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Path+"="+r.Header.Get(HeaderName))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	exec := api.NewExecutor(server.URL, nil)
	fn := MustGate(DefaultRules()).Wrap(exec.Execute, NewStore("s3cret"))

	_, err := fn(context.Background(), "/api/admin/tenants/42", api.Options{})
	require.NoError(t, err)
	_, err = fn(context.Background(), "/api/companies", api.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"/api/admin/tenants/42=s3cret", "/api/companies="}, seen)
}
