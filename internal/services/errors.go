package services

import "fmt"

// Kind classifies a service error; handlers map it to an HTTP status.
type Kind int

const (
	KindInvalid Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooLarge
	KindUpstream
	KindUnavailable
)

// Error is a user-facing failure with a message safe to return to clients.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is matches sentinels of the same kind, so errors.Is(err, ErrNotFound) holds
// for every not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Kind == e.Kind
}

var (
	ErrInvalid      = &Error{Kind: KindInvalid}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrTooLarge     = &Error{Kind: KindTooLarge}
	ErrUpstream     = &Error{Kind: KindUpstream}
	ErrUnavailable  = &Error{Kind: KindUnavailable}
)

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...interface{}) error   { return newError(KindInvalid, format, args...) }
func forbidden(format string, args ...interface{}) error { return newError(KindForbidden, format, args...) }
func notFound(format string, args ...interface{}) error  { return newError(KindNotFound, format, args...) }
func conflict(format string, args ...interface{}) error  { return newError(KindConflict, format, args...) }
