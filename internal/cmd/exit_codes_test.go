package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/config"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"help", pflag.ErrHelp, exitOK},
		{"credential required", &api.CredentialRequiredError{Path: "/api/admin/x"}, exitAuth},
		{"credential invalid", &api.CredentialInvalidError{Path: "/api/admin/x", Status: 403}, exitAuth},
		{"network", &api.NetworkError{Method: "GET", Path: "/x", Err: errors.New("connection refused")}, exitNetwork},
		{"malformed", &api.MalformedResponseError{Status: 200, Err: errors.New("invalid character")}, exitServer},
		{"unauthorized", &api.HTTPError{Status: http.StatusUnauthorized}, exitAuth},
		{"forbidden", &api.HTTPError{Status: http.StatusForbidden}, exitForbidden},
		{"not found", &api.HTTPError{Status: http.StatusNotFound}, exitNotFound},
		{"rate limited", &api.HTTPError{Status: http.StatusTooManyRequests}, exitRateLimited},
		{"server", &api.HTTPError{Status: http.StatusBadGateway}, exitServer},
		{"validation", &api.HTTPError{Status: http.StatusUnprocessableEntity}, exitUsage},
		{"other 4xx", &api.HTTPError{Status: http.StatusGone}, exitGeneric},
		{"wrapped", fmt.Errorf("2 of 3 requests failed: %w", &api.HTTPError{Status: 404}), exitNotFound},
		{"usage", errors.New(`unknown command "fetch" for "consolectl"`), exitUsage},
		{"deadline", context.DeadlineExceeded, exitNetwork},
		{"no base url", config.ErrNoBaseURL, exitGeneric},
		{"handled", &handledError{err: errors.New("x"), exitCode: exitForbidden}, exitForbidden},
		{"handled without code", &handledError{err: &api.HTTPError{Status: 404}}, exitNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestHandleError(t *testing.T) {
	if HandleError(nil) != "" {
		t.Error("expected empty string for nil")
	}

	msg := HandleError(errors.New("--data is not valid JSON"))
	if msg != "Error: --data is not valid JSON\n" {
		t.Errorf("unexpected message %q", msg)
	}

	msg = HandleError(config.ErrNoBaseURL)
	if !strings.Contains(msg, "export CONSOLE_BASE_URL") {
		t.Errorf("missing base URL hint: %q", msg)
	}

	// Request failures were already announced; only hints follow.
	msg = HandleError(&api.HTTPError{Status: 503, Message: "maintenance", RequestID: "req-1"})
	if strings.Contains(msg, "maintenance") {
		t.Errorf("request failure repeated: %q", msg)
	}
	for _, want := range []string{"Suggestions:", "max-retries", "Request ID: req-1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("missing %q in %q", want, msg)
		}
	}

	msg = HandleError(&api.CredentialRequiredError{Path: "/api/admin/tenants"})
	if !strings.Contains(msg, api.KindCredentialRequired.Suggestion()) {
		t.Errorf("missing kind suggestion: %q", msg)
	}
}

func TestEnhanceUnknownError(t *testing.T) {
	_, stderr, err := runCLI(t, "tenat", "show")
	if err == nil {
		t.Fatal("expected error")
	}
	if ExitCode(err) != exitUsage {
		t.Errorf("exit code = %d", ExitCode(err))
	}
	if !strings.Contains(stderr, `Did you mean "tenant"?`) {
		t.Errorf("stderr = %s", stderr)
	}

	_, stderr, _ = runCLI(t, "get", "/x", "--bogus")
	if !strings.Contains(stderr, `consolectl get --help`) {
		t.Errorf("stderr = %s", stderr)
	}
}
