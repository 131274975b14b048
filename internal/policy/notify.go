package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
)

// Level is the severity of a Notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one user-facing message.
type Notification struct {
	Level   Level
	Message string
	Kind    api.Kind // set on failures
	Err     error
}

// Notifier presents notifications. Presentation is up to the collaborator.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// FailureMessage renders the failure notification text:
// "<METHOD> <path> failed: <message>".
func FailureMessage(method, path string, err error) string {
	return fmt.Sprintf("%s %s failed: %s", method, path, api.Classify(err).Message)
}

// WithNotify emits one failure notification per failed call and, when
// successMessage is not empty, one success notification per successful
// call. The result or error of next is returned unchanged.
func WithNotify(next api.ExecuteFunc, n Notifier, successMessage string) api.ExecuteFunc {
	return func(ctx context.Context, path string, opts api.Options) (json.RawMessage, error) {
		result, err := next(ctx, path, opts)
		if n == nil {
			return result, err
		}
		if err != nil {
			n.Notify(ctx, Notification{
				Level:   LevelError,
				Message: FailureMessage(opts.HTTPMethod(), path, err),
				Kind:    api.Classify(err).Kind,
				Err:     err,
			})
			return nil, err
		}
		if successMessage != "" {
			n.Notify(ctx, Notification{Level: LevelSuccess, Message: successMessage})
		}
		return result, nil
	}
}
