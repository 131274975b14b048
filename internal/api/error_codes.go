package api

import (
	"errors"
	"net/http"
	"strconv"
)

// Kind is the machine-readable class of a failed request.
type Kind string

const (
	KindNetwork            Kind = "network"
	KindHTTP               Kind = "http"
	KindMalformedResponse  Kind = "malformed_response"
	KindCredentialRequired Kind = "credential_required"
	KindCredentialInvalid  Kind = "credential_invalid"
	KindUnknown            Kind = "unknown"
)

// Suggestion returns a human-readable hint for resolving errors of this kind.
func (k Kind) Suggestion() string {
	switch k {
	case KindNetwork:
		return "Check network connectivity and the base URL, then retry"
	case KindHTTP:
		return "Check the request; server errors may succeed on retry"
	case KindMalformedResponse:
		return "The backend returned a non-JSON body; check the base URL"
	case KindCredentialRequired:
		return "Run 'consolectl credential set' before calling admin endpoints"
	case KindCredentialInvalid:
		return "The admin credential was rejected and cleared; set a new one"
	default:
		return ""
	}
}

// Classification is the deterministic summary of a failure.
type Classification struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Retryable  bool   `json:"retryable"`
}

// Classify derives a Classification from any error returned by an ExecuteFunc.
// It returns a zero Classification for nil.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var (
		credRequired *CredentialRequiredError
		credInvalid  *CredentialInvalidError
		malformed    *MalformedResponseError
		httpErr      *HTTPError
		netErr       *NetworkError
	)
	switch {
	case errors.As(err, &credRequired):
		return Classification{Kind: KindCredentialRequired, Message: credRequired.Error()}
	case errors.As(err, &credInvalid):
		return Classification{Kind: KindCredentialInvalid, Message: credInvalid.Error(), HTTPStatus: credInvalid.Status}
	case errors.As(err, &malformed):
		return Classification{Kind: KindMalformedResponse, Message: malformed.Error(), HTTPStatus: malformed.Status}
	case errors.As(err, &httpErr):
		return Classification{
			Kind:       KindHTTP,
			Message:    httpErr.Message,
			HTTPStatus: httpErr.Status,
			Retryable:  httpErr.Status >= 500,
		}
	case errors.As(err, &netErr):
		msg := "network error"
		if netErr.Err != nil {
			msg = netErr.Err.Error()
		}
		return Classification{Kind: KindNetwork, Message: msg, Retryable: true}
	}
	return Classification{Kind: KindUnknown, Message: err.Error()}
}

// statusLine renders "503 Service Unavailable" style fallbacks.
func statusLine(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status) + " " + text
}
