package errorsx

import (
	"errors"
	"fmt"
	"log"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Wrap annotates err with a message, recording a stack trace the way the
// rest of this module's I/O-adjacent errors do.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

// Zero logs that the error occurred but otherwise ignores it, returning v
// unchanged. Used at call sites where a failure just means "fall back to
// the zero value" (e.g. deriving an address's cached netip.AddrPort).
func Zero[T any](v T, err error) T {
	if err == nil {
		return v
	}

	if cause := log.Output(2, fmt.Sprintln(err)); cause != nil {
		panic(cause)
	}

	return v
}

// Compact returns the first non-nil error in the set, if any.
func Compact(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

func Authorization(cause error) error {
	return unauthorized{
		error: cause,
	}
}

type Unauthorized interface {
	Unauthorized()
}

type unauthorized struct {
	error
}

func (t unauthorized) Unauthorized() {}

// Timeout error.
type Timeout interface {
	error
	Timedout() time.Duration
}

// Timedout represents a timeout. the duration is a suggestion
// on how long to wait before attempting again.
func Timedout(cause error, d time.Duration) error {
	return timeout{
		error: cause,
		d:     d,
	}
}

type timeout struct {
	error
	d time.Duration
}

func (t timeout) Timedout() time.Duration {
	return t.d
}

func (t timeout) Timeout() bool {
	return true
}

// Contextual carries structured key/value details alongside an error,
// e.g. the info hash a put request was rejected for.
type Contextual interface {
	Unwrap() error
	Context() map[string]any
}

type contextual struct {
	cause   error
	details map[string]any
}

func (t *contextual) Add(k string, v any) *contextual {
	t.details[k] = v
	return t
}

func (t contextual) Context() map[string]any {
	return t.details
}

func (t contextual) Unwrap() error {
	return t.cause
}

func (t contextual) Error() string {
	return t.cause.Error()
}

func (t contextual) Is(target error) bool {
	_, ok := target.(Contextual)
	return ok
}

func (t contextual) As(target any) bool {
	if x, ok := target.(*contextual); ok {
		*x = t
		return ok
	}

	return false
}

func NewContext(cause error) *contextual {
	return &contextual{
		cause:   cause,
		details: make(map[string]any),
	}
}

func Context(cause error) map[string]any {
	var c contextual

	if errors.As(cause, &c) {
		return c.details
	}

	return make(map[string]any)
}
