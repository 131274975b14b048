package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/config"
)

// HandleError returns the operator-facing text for err.
//
// Request failures have already been announced by the notifier as
// "<METHOD> <path> failed: ...", so only suggestions follow them. Anything
// else (flags, configuration, local files) is printed in full.
func HandleError(err error) string {
	if err == nil {
		return ""
	}

	var msg strings.Builder
	c := api.Classify(err)

	switch {
	case c.Kind == api.KindUnknown && errors.Is(err, config.ErrNoBaseURL):
		fmt.Fprintf(&msg, "Error: %s\n\n", err)
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - export CONSOLE_BASE_URL=https://console.example.com\n")
		msg.WriteString("  - or put CONSOLE_BASE_URL in .env\n")

	case c.Kind == api.KindUnknown:
		fmt.Fprintf(&msg, "Error: %s\n", err)

	default:
		msg.WriteString("Suggestions:\n")
		if s := c.Kind.Suggestion(); s != "" {
			fmt.Fprintf(&msg, "  - %s\n", s)
		}
		if c.Kind == api.KindHTTP {
			msg.WriteString(suggestionsForStatusCode(c.HTTPStatus))
		}
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) && httpErr.RequestID != "" {
			fmt.Fprintf(&msg, "\nRequest ID: %s\n", httpErr.RequestID)
		}
	}

	return msg.String()
}

func suggestionsForStatusCode(code int) string {
	var suggestions strings.Builder

	switch {
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		suggestions.WriteString("  - Check the request body and query parameters\n")
		suggestions.WriteString("  - Use --debug to see the full request\n")

	case code == http.StatusNotFound:
		suggestions.WriteString("  - The resource doesn't exist for the active tenant\n")
		suggestions.WriteString("  - Check the tenant with: consolectl tenant show\n")

	case code == http.StatusTooManyRequests:
		suggestions.WriteString("  - Too many requests; wait and retry\n")

	case code >= 500:
		suggestions.WriteString("  - Server error - not your fault\n")
		suggestions.WriteString("  - Raise --max-retries or retry later\n")

	default:
		suggestions.WriteString("  - Use --debug for more details\n")
	}

	return suggestions.String()
}
