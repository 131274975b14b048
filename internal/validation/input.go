package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Input length limits
const (
	MaxTenantIDLength = 128
	MaxPathLength     = 2048
	MaxJSONPayload    = 1048576 // 1MB for JSON payloads
	MaxURLLength      = 2048
)

// ValidateTenantID checks a tenant id before it is sent as a header value.
// Empty is valid and means "no tenant".
func ValidateTenantID(id string) error {
	if id == "" {
		return nil
	}
	if n := utf8.RuneCountInString(id); n > MaxTenantIDLength {
		return fmt.Errorf("tenant id exceeds maximum length of %d characters (got %d)", MaxTenantIDLength, n)
	}
	for _, r := range id {
		if r > unicode.MaxASCII || unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("tenant id contains invalid character %q", r)
		}
	}
	return nil
}

// ValidatePath checks a request path: absolute, bounded, no scheme.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must start with /, got %q", path)
	}
	if strings.HasPrefix(path, "//") {
		return fmt.Errorf("path must not be protocol-relative")
	}
	if len(path) > MaxPathLength {
		return fmt.Errorf("path exceeds maximum length of %d bytes", MaxPathLength)
	}
	return nil
}

// ValidateJSONPayload validates JSON payload size
func ValidateJSONPayload(payload string) error {
	if payload == "" {
		return fmt.Errorf("JSON payload cannot be empty")
	}
	if length := len(payload); length > MaxJSONPayload {
		return fmt.Errorf("JSON payload exceeds maximum size of %d bytes (got %d)", MaxJSONPayload, length)
	}
	return nil
}
