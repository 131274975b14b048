package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/telemetry"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/tenant"
)

func newTestExecutor(serverURL string, tenants *tenant.Context) *Executor {
	e := NewExecutor(serverURL, tenants)
	e.NewRequestID = func() string { return "req-test" }
	return e
}

func TestExecute_ReturnsBodyVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/api/companies" {
			t.Errorf("Expected /api/companies, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"id":"acme"}]`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, tenant.New(""))
	got, err := e.Execute(context.Background(), "/api/companies", Options{})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"acme"}]`, string(got))

	items, err := DecodeList[map[string]string](got)
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{{"id": "acme"}}, items)
}

func TestExecute_TenantHeader(t *testing.T) {
	var seen []string
	var present []bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header[tenant.HeaderName]
		present = append(present, ok)
		seen = append(seen, r.Header.Get(tenant.HeaderName))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	tenants := tenant.New("acme")
	e := newTestExecutor(server.URL, tenants)

	_, err := e.Execute(context.Background(), "/api/documents", Options{})
	require.NoError(t, err)

	tenants.Clear()
	_, err = e.Execute(context.Background(), "/api/documents", Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"acme", ""}, seen)
	assert.Equal(t, []bool{true, false}, present)
}

func TestExecute_TenantSnapshotSurvivesSwitch(t *testing.T) {
	release := make(chan struct{})
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get(tenant.HeaderName)
		<-release
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tenants := tenant.New("acme")
	e := newTestExecutor(server.URL, tenants)

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), "/api/documents", Options{})
		done <- err
	}()

	got := <-received
	tenants.Set("globex")
	close(release)

	require.NoError(t, <-done)
	assert.Equal(t, "acme", got)
}

func TestExecute_PinnedTenantWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acme", r.Header.Get(tenant.HeaderName))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, tenant.New("globex"))
	ctx := tenant.WithSnapshot(context.Background(), "acme")
	_, err := e.Execute(ctx, "/api/documents", Options{})
	require.NoError(t, err)
}

func TestExecute_CallerHeadersWin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "override", r.Header.Get(tenant.HeaderName))
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "custom-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "req-test", r.Header.Get(RequestIDHeader))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, tenant.New("acme"))
	_, err := e.Execute(context.Background(), "/api/documents", Options{
		Headers: http.Header{
			"x-tenant-id": []string{"override"},
			"Accept":      []string{"text/plain"},
			"User-Agent":  []string{"custom-agent"},
		},
	})
	require.NoError(t, err)
}

func TestExecute_JSONBodySerialized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Quarterly report", body["title"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, nil)
	got, err := e.Execute(context.Background(), "/api/documents", Options{
		Method: "post",
		Body:   map[string]any{"title": "Quarterly report"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7}`, string(got))
}

func TestExecute_StringBodySentAsIs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"raw":true}`, string(data))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, nil)
	_, err := e.Execute(context.Background(), "/api/documents", Options{Method: http.MethodPut, Body: `{"raw":true}`})
	require.NoError(t, err)
}

func TestExecute_MultipartBodyKeepsBoundary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		assert.NotContains(t, ct, "application/json")

		mediaType, params, err := mime.ParseMediaType(ct)
		require.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mediaType)

		reader := multipart.NewReader(r.Body, params["boundary"])
		form, err := reader.ReadForm(1 << 20)
		require.NoError(t, err)
		assert.Equal(t, []string{"contract"}, form.Value["kind"])
		require.Len(t, form.File["file"], 1)
		assert.Equal(t, "contract.pdf", form.File["file"][0].Filename)

		_, _ = w.Write([]byte(`{"uploaded":true}`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, nil)
	_, err := e.Execute(context.Background(), "/api/documents/upload", Options{
		Method:  http.MethodPost,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body: &Multipart{
			Fields: map[string]string{"kind": "contract"},
			Files:  []File{{Name: "contract.pdf", Content: []byte("%PDF-1.4")}},
		},
	})
	require.NoError(t, err)
}

func TestExecute_BinaryBodyHasNoContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{0x1, 0x2, 0x3}, data)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, nil)
	_, err := e.Execute(context.Background(), "/api/media", Options{Method: http.MethodPost, Body: []byte{0x1, 0x2, 0x3}})
	require.NoError(t, err)
}

func TestExecute_ReaderBodyIsBinary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, "BINARYDATA", string(data))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, nil)
	_, err := e.Execute(context.Background(), "/api/media", Options{
		Method: http.MethodPost,
		Body:   strings.NewReader("BINARYDATA"),
	})
	require.NoError(t, err)
}

func TestBufferBody(t *testing.T) {
	opts, err := BufferBody(Options{Body: strings.NewReader("abc")})
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), opts.Body)

	raw := json.RawMessage(`{"a":1}`)
	opts, err = BufferBody(Options{Body: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, opts.Body)
}

func TestExecute_QueryMerged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, nil)
	_, err := e.Execute(context.Background(), "/api/conversations?status=open", Options{
		Query: url.Values{"page": []string{"2"}},
	})
	require.NoError(t, err)
}

func TestExecute_EmptySuccessBodyIsNull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, nil)
	got, err := e.Execute(context.Background(), "/api/documents/1", Options{Method: http.MethodDelete})
	require.NoError(t, err)
	assert.Equal(t, "null", string(got))
}

func TestExecute_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, nil)
	_, err := e.Execute(context.Background(), "/api/companies", Options{})
	require.Error(t, err)
	assert.True(t, IsMalformedResponse(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, KindMalformedResponse, Classify(err).Kind)
}

func TestExecute_HTTPErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		retryable   bool
	}{
		{
			name:        "message field",
			status:      http.StatusUnprocessableEntity,
			body:        `{"message":"name is required"}`,
			wantMessage: "name is required",
		},
		{
			name:        "error field",
			status:      http.StatusNotFound,
			body:        `{"error":"document not found"}`,
			wantMessage: "document not found",
		},
		{
			name:        "validation errors",
			status:      http.StatusBadRequest,
			body:        `{"error":"invalid","errors":{"name":["can't be blank"],"slug":"taken"}}`,
			wantMessage: "invalid\nValidation errors:\n  name: can't be blank\n  slug: taken",
		},
		{
			name:        "non-json falls back to status line",
			status:      http.StatusBadGateway,
			body:        `upstream down`,
			wantMessage: "502 Bad Gateway",
			retryable:   true,
		},
		{
			name:        "json without known fields",
			status:      http.StatusServiceUnavailable,
			body:        `{"detail":"maintenance"}`,
			wantMessage: "503 Service Unavailable",
			retryable:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			e := newTestExecutor(server.URL, nil)
			_, err := e.Execute(context.Background(), "/api/documents", Options{})
			require.Error(t, err)

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr), "expected HTTPError, got %T", err)
			assert.Equal(t, tt.status, httpErr.Status)
			assert.Equal(t, tt.wantMessage, httpErr.Message)
			assert.Equal(t, "req-test", httpErr.RequestID)
			assert.Equal(t, tt.retryable, IsRetryable(err))

			c := Classify(err)
			assert.Equal(t, KindHTTP, c.Kind)
			assert.Equal(t, tt.status, c.HTTPStatus)
		})
	}
}

func TestExecute_ServerRequestIDPreferred(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestIDHeader, "srv-42")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	e := newTestExecutor(server.URL, nil)
	_, err := e.Execute(context.Background(), "/api/documents", Options{})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "srv-42", httpErr.RequestID)
}

func TestExecute_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	e := newTestExecutor(serverURL, nil)
	_, err := e.Execute(context.Background(), "/api/companies", Options{})
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, KindNetwork, Classify(err).Kind)
}

func TestExecute_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	e := newTestExecutor(server.URL, nil)
	_, err := e.Execute(ctx, "/api/companies", Options{})
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExecute_TelemetryEvents(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rec := &telemetry.Recorder{}
	e := newTestExecutor(server.URL, tenant.New("acme"))
	e.Sink = rec

	_, err := e.Execute(WithAttempt(context.Background(), 3), "/api/companies", Options{})
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), "/api/companies", Options{})
	require.Error(t, err)

	events := rec.Events()
	require.Len(t, events, 4)
	assert.Equal(t, telemetry.EventStart, events[0].Type)
	assert.Equal(t, 3, events[0].Attempt)
	assert.Equal(t, "acme", events[0].Tenant)
	assert.Equal(t, telemetry.EventSuccess, events[1].Type)
	assert.Equal(t, 200, events[1].Status)
	assert.Equal(t, telemetry.EventFailure, events[3].Type)
	assert.Equal(t, 500, events[3].Status)
	assert.Equal(t, StateFailed.String(), events[3].State)
}

func TestExecute_RecordsSpans(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"missing"}`))
	}))
	defer server.Close()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e := newTestExecutor(server.URL, nil)
	e.Tracer = tp.Tracer("test")
	_, err := e.Execute(context.Background(), "/api/documents/9", Options{})
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET", spans[0].Name())
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}

func TestOptions_IsRead(t *testing.T) {
	assert.True(t, Options{}.IsRead())
	assert.True(t, Options{Method: "head"}.IsRead())
	assert.False(t, Options{Method: "POST"}.IsRead())
	assert.False(t, Options{Method: "delete"}.IsRead())
}

func TestResolveURL(t *testing.T) {
	e := newTestExecutor("https://console.example.com/", nil)
	got, err := e.resolveURL("api/companies", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://console.example.com/api/companies", got)
	assert.True(t, strings.HasPrefix(e.BaseURL, "https://"))
}
