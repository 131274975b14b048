package cmd

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
)

const (
	exitOK          = 0
	exitGeneric     = 1
	exitUsage       = 2
	exitAuth        = 3
	exitNotFound    = 4
	exitForbidden   = 5
	exitRateLimited = 6
	exitServer      = 7
	exitNetwork     = 8
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	var handled *handledError
	if errors.As(err, &handled) {
		if handled.exitCode != 0 {
			return handled.exitCode
		}
		err = handled.err
	}

	if code := exitCodeFromKind(err); code != 0 {
		return code
	}
	if isUsageError(err) {
		return exitUsage
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return exitNetwork
	}
	return exitGeneric
}

func exitCodeFromKind(err error) int {
	c := api.Classify(err)
	switch c.Kind {
	case api.KindCredentialRequired, api.KindCredentialInvalid:
		return exitAuth
	case api.KindNetwork:
		return exitNetwork
	case api.KindMalformedResponse:
		return exitServer
	case api.KindHTTP:
		return exitCodeForStatus(c.HTTPStatus)
	default:
		return 0
	}
}

func exitCodeForStatus(status int) int {
	switch {
	case status == http.StatusUnauthorized:
		return exitAuth
	case status == http.StatusForbidden:
		return exitForbidden
	case status == http.StatusNotFound:
		return exitNotFound
	case status == http.StatusTooManyRequests:
		return exitRateLimited
	case status >= 500:
		return exitServer
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		return exitUsage
	default:
		return exitGeneric
	}
}

func isUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	indicators := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"flag needs an argument",
		"requires at least",
		"accepts ",
		"invalid argument",
		"invalid value",
		"must be",
		"must start with",
		"cannot be combined",
		"invalid --",
		"is required",
	}
	for _, indicator := range indicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
