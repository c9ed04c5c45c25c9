package gateway

import (
	"errors"
	"net/http"

	"github.com/af-corp/quieter-gateway/internal/httputil"
)

// Kind classifies a failed request for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindContentBlocked
	KindModelNotFound
	KindNoModels
	KindModelDenied
	KindUpstream
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindContentBlocked:
		return "content_blocked"
	case KindModelNotFound:
		return "model_not_found"
	case KindNoModels:
		return "no_models_configured"
	case KindModelDenied:
		return "model_denied"
	case KindUpstream:
		return "upstream_error"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is returned by Service methods. Message is safe to show to clients;
// Err is the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

var kindClass = map[Kind]httputil.Class{
	KindInvalidInput:   httputil.ErrBadRequest,
	KindContentBlocked: httputil.ErrContentBlocked,
	KindModelNotFound:  httputil.ErrModelNotFound,
	KindNoModels:       httputil.ErrNoModels,
	KindModelDenied:    httputil.ErrModelDenied,
	KindUpstream:       httputil.ErrUpstream,
	KindNotFound:       httputil.ErrNotFound,
	KindInternal:       httputil.ErrInternal,
}

// writeError renders err in the OpenAI-style envelope. Errors that are not
// *Error never reach the client verbatim.
func writeError(w http.ResponseWriter, reqID string, err error) {
	var gerr *Error
	if !errors.As(err, &gerr) {
		httputil.Write(w, reqID, httputil.ErrInternal, "Internal error")
		return
	}
	class, ok := kindClass[gerr.Kind]
	if !ok {
		class = httputil.ErrInternal
	}
	httputil.Write(w, reqID, class, gerr.Message)
}
