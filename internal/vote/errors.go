package vote

import (
	"errors"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication error")
	ErrConflict       = errors.New("conflict error")
	ErrForbidden      = errors.New("forbidden error")
	ErrStorage        = errors.New("storage error")
)

// Caller-facing messages. Storage detail never reaches the caller.
const (
	MsgInvalidRequest   = "invalid vote request"
	MsgInvalidSignature = "invalid signature"
	MsgAlreadyVoted     = "you have already voted for this artwork"
	MsgNotHolder        = "wallet does not hold the required token"
	MsgInternal         = "failed to process vote"
)

// Error is returned by the service for every rejected request.
type Error struct {
	Kind     error
	Message  string
	Problems []string
	cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Problems) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Problems, "; "))
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.cause
}

func validationError(problems ...string) *Error {
	return &Error{Kind: ErrValidation, Message: MsgInvalidRequest, Problems: problems}
}

func authenticationError() *Error {
	return &Error{Kind: ErrAuthentication, Message: MsgInvalidSignature}
}

func conflictError(cause error) *Error {
	return &Error{Kind: ErrConflict, Message: MsgAlreadyVoted, cause: cause}
}

func forbiddenError() *Error {
	return &Error{Kind: ErrForbidden, Message: MsgNotHolder}
}

func storageError(cause error) *Error {
	return &Error{Kind: ErrStorage, Message: MsgInternal, cause: cause}
}

// outcome labels an error for metrics and logs.
func outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrValidation):
		return "bad_request"
	case errors.Is(err, ErrAuthentication):
		return "unauthorized"
	case errors.Is(err, ErrConflict):
		return "forbidden_duplicate"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal_error"
	}
}
