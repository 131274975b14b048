package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/telemetry"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/tenant"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "consolectl"
	RequestIDHeader  = "X-Request-Id"
)

// Options describes one call. Method defaults to GET.
type Options struct {
	Method  string
	Headers http.Header
	Body    any
	Query   url.Values
}

// HTTPMethod returns the upper-cased method, GET when unset.
func (o Options) HTTPMethod() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(o.Method)
}

// IsRead reports whether the call is a GET-equivalent read.
func (o Options) IsRead() bool {
	m := o.HTTPMethod()
	return m == http.MethodGet || m == http.MethodHead
}

// ExecuteFunc is the single contract exposed to UI collaborators: it
// resolves to the parsed JSON body or fails with one of the typed errors.
type ExecuteFunc func(ctx context.Context, path string, opts Options) (json.RawMessage, error)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor builds and issues exactly one HTTP request per call. It merges
// headers, encodes the body, parses the response and classifies failures.
// It never retries and never caches.
type Executor struct {
	BaseURL   string
	HTTP      Doer
	Tenant    *tenant.Context
	UserAgent string
	Sink      telemetry.Sink
	Tracer    trace.Tracer

	// NewRequestID generates the per-attempt X-Request-Id.
	NewRequestID func() string
}

// NewExecutor creates an executor for baseURL with a TLS 1.2+ transport.
func NewExecutor(baseURL string, tenants *tenant.Context) *Executor {
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		baseTransport = &http.Transport{}
	}
	transport := baseTransport.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12

	return &Executor{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		Tenant:    tenants,
		UserAgent: DefaultUserAgent,
		HTTP: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
		},
	}
}

// Execute issues one request for path.
//
// Headers, including the tenant id, are computed once before any I/O, so a
// tenant switch while the request is in flight never changes its identity.
// A tenant pinned on ctx with tenant.WithSnapshot takes precedence over the
// live context, which keeps retried attempts on the caller's tenant.
func (e *Executor) Execute(ctx context.Context, path string, opts Options) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method := opts.HTTPMethod()
	attempt := AttemptFromContext(ctx)
	tenantID, pinned := tenant.SnapshotFromContext(ctx)
	if !pinned {
		tenantID = e.Tenant.Get()
	}
	requestID := e.requestID()

	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}
	header := e.buildHeader(tenantID, requestID, body, opts.Headers)

	target, err := e.resolveURL(path, opts.Query)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer().Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("console.tenant", tenantID),
			attribute.Int("console.attempt", attempt),
		),
	)
	defer span.End()

	evt := telemetry.Event{
		Method:    method,
		Path:      path,
		Tenant:    tenantID,
		RequestID: requestID,
		Attempt:   attempt,
	}
	start := time.Now()
	fail := func(status int, err error) (json.RawMessage, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		evt.Type, evt.Status, evt.Err, evt.Duration = telemetry.EventFailure, status, err, time.Since(start)
		evt.State = StateFailed.String()
		telemetry.Emit(ctx, e.Sink, evt)
		return nil, err
	}

	var bodyReader io.Reader
	if body.data != nil {
		bodyReader = bytes.NewReader(body.data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = header
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	evt.Type, evt.State = telemetry.EventStart, StateSending.String()
	telemetry.Emit(ctx, e.Sink, evt)

	resp, err := e.client().Do(req)
	if err != nil {
		return fail(0, &NetworkError{Method: method, Path: path, Err: err})
	}
	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return fail(resp.StatusCode, &NetworkError{Method: method, Path: path, Err: fmt.Errorf("failed to read response: %w", err)})
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		id := requestIDFromHeader(resp.Header)
		if id == "" {
			id = requestID
		}
		return fail(resp.StatusCode, &HTTPError{
			Status:    resp.StatusCode,
			Message:   errorMessage(respBody, resp.StatusCode),
			RequestID: id,
		})
	}

	result, err := parseJSON(respBody)
	if err != nil {
		return fail(resp.StatusCode, &MalformedResponseError{Status: resp.StatusCode, Err: err})
	}

	evt.Type, evt.Status, evt.Duration = telemetry.EventSuccess, resp.StatusCode, time.Since(start)
	evt.State = StateSuccess.String()
	telemetry.Emit(ctx, e.Sink, evt)
	return result, nil
}

// buildHeader merges defaults and caller headers; caller values always win,
// except for the multipart content type whose boundary the encoder owns.
func (e *Executor) buildHeader(tenantID, requestID string, body encodedBody, caller http.Header) http.Header {
	h := http.Header{}
	h.Set("Accept", jsonContentType)
	if body.contentType != "" {
		h.Set("Content-Type", body.contentType)
	}
	if tenantID != "" {
		h.Set(tenant.HeaderName, tenantID)
	}
	if e.UserAgent != "" {
		h.Set("User-Agent", e.UserAgent)
	}
	if requestID != "" {
		h.Set(RequestIDHeader, requestID)
	}

	for key, values := range caller {
		if body.multipart && http.CanonicalHeaderKey(key) == "Content-Type" {
			continue
		}
		h.Del(key)
		for _, v := range values {
			h.Add(key, v)
		}
	}
	return h
}

func (e *Executor) resolveURL(path string, query url.Values) (string, error) {
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	u, err := url.Parse(e.BaseURL + path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (e *Executor) client() Doer {
	if e.HTTP == nil {
		return http.DefaultClient
	}
	return e.HTTP
}

func (e *Executor) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return telemetry.Tracer()
}

func (e *Executor) requestID() string {
	if e.NewRequestID != nil {
		return e.NewRequestID()
	}
	return uuid.NewString()
}

// parseJSON validates a 2xx body and returns it verbatim. An empty body is null.
func parseJSON(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		var probe any
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invalid JSON body")
	}
	return json.RawMessage(append([]byte(nil), body...)), nil
}

func requestIDFromHeader(header http.Header) string {
	if header == nil {
		return ""
	}
	return header.Get(RequestIDHeader)
}

// errorMessage builds the diagnostic text of a non-2xx answer from the
// `message` or `error` field, plus any `errors` validation details,
// falling back to the HTTP status line.
func errorMessage(body []byte, status int) string {
	var errResp struct {
		Error   any `json:"error"`
		Message any `json:"message"`
		Errors  any `json:"errors"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return statusLine(status)
	}

	result := textField(errResp.Message)
	if result == "" {
		result = textField(errResp.Error)
	}

	validationErrors := formatValidationErrors(errResp.Errors)
	if validationErrors != "" {
		if result != "" {
			return result + "\nValidation errors:\n" + validationErrors
		}
		return "Validation errors:\n" + validationErrors
	}
	if result != "" {
		return result
	}
	return statusLine(status)
}

// textField accepts `"error": "text"` and `"error": {"message": "text"}`.
func textField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if msg, ok := t["message"].(string); ok {
			return strings.TrimSpace(msg)
		}
	}
	return ""
}

// formatValidationErrors renders {"errors": {"field": "msg" | ["msg", ...]}}.
func formatValidationErrors(errors any) string {
	errMap, ok := errors.(map[string]any)
	if !ok || len(errMap) == 0 {
		return ""
	}

	var lines []string
	for field, value := range errMap {
		switch v := value.(type) {
		case string:
			lines = append(lines, fmt.Sprintf("  %s: %s", field, v))
		case []any:
			for _, msg := range v {
				if msgStr, ok := msg.(string); ok {
					lines = append(lines, fmt.Sprintf("  %s: %s", field, msgStr))
				}
			}
		}
	}
	if len(lines) == 0 {
		return ""
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
