package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/99designs/keyring"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/config"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/iocontext"
)

// testEnv is a backend plus an isolated environment for one test.
type testEnv struct {
	server *httptest.Server
	ring   keyring.Keyring

	mu       sync.Mutex
	requests []*http.Request
}

// setupTestEnv starts handler behind httptest and points CONSOLE_* at it:
// private URLs allowed, a per-test cache dir, a fast backoff and an
// in-memory keychain.
func setupTestEnv(t *testing.T, handler http.HandlerFunc) *testEnv {
	t.Helper()

	env := &testEnv{ring: keyring.NewArrayKeyring(nil)}
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.requests = append(env.requests, r.Clone(context.Background()))
		env.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(env.server.Close)

	t.Setenv("CONSOLE_BASE_URL", env.server.URL)
	t.Setenv("CONSOLE_ALLOW_PRIVATE", "true")
	t.Setenv("CONSOLE_CACHE_DIR", t.TempDir())
	t.Setenv("CONSOLE_RETRY_DELAY", "1ms")
	t.Setenv("CONSOLE_MAX_RETRIES", "3")
	t.Setenv("CONSOLE_TENANT", "")
	t.Setenv("CONSOLE_ADMIN_KEY", "")
	t.Setenv("CONSOLE_REDIS_URL", "")
	t.Setenv("CONSOLE_NO_CACHE", "")

	t.Cleanup(config.SetOpenKeyring(func(keyring.Config) (keyring.Keyring, error) {
		return env.ring, nil
	}))
	return env
}

func (e *testEnv) hits() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func (e *testEnv) last() *http.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[len(e.requests)-1]
}

func (e *testEnv) url() string { return e.server.URL }

// runCLI executes args and returns stdout, stderr and the error.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var err error
	stdout, stderr := captureOutput(t, func() {
		err = Execute(context.Background(), append([]string{"--color", "never"}, args...))
	})
	return stdout, stderr, err
}

// runCLIWithStdin is runCLI with stdin fed from input.
func runCLIWithStdin(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	ctx := iocontext.WithIO(context.Background(), &iocontext.IO{
		In:     strings.NewReader(input),
		Out:    &stdout,
		ErrOut: &stderr,
	})
	err := Execute(ctx, append([]string{"--color", "never"}, args...))
	return stdout.String(), stderr.String(), err
}

// captureOutput executes fn and captures what it writes to stdout and stderr.
func captureOutput(t *testing.T, fn func()) (string, string) {
	t.Helper()
	oldOut, oldErr := os.Stdout, os.Stderr
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout, os.Stderr = outW, errW

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = io.Copy(&outBuf, outR) }()
	go func() { defer wg.Done(); _, _ = io.Copy(&errBuf, errR) }()

	fn()
	_ = outW.Close()
	_ = errW.Close()
	wg.Wait()
	os.Stdout, os.Stderr = oldOut, oldErr
	return outBuf.String(), errBuf.String()
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
