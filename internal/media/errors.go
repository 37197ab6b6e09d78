package media

import (
	"errors"
	"fmt"
)

// Failure classes reported by media resources.
var (
	// ErrAborted is reported when a load is interrupted by a newer one.
	ErrAborted = errors.New("media: load aborted")
	// ErrUnsupportedSource covers sources that cannot be decoded in the
	// requested mode (format or cross-origin restrictions).
	ErrUnsupportedSource = errors.New("media: unsupported source")
	// ErrNetworkOrDecode covers unrecoverable fetch and decode failures.
	ErrNetworkOrDecode = errors.New("media: network or decode failure")
	// ErrAlreadyWrapped is returned when a processor is installed twice on one resource.
	ErrAlreadyWrapped = errors.New("media: resource already wrapped")
	// ErrNotAnalysable is returned when a resource refuses a processor.
	ErrNotAnalysable = errors.New("media: resource not eligible for analysis")
)

// Error ties a failure class to the underlying cause.
type Error struct {
	Kind error
	Src  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Src)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Src, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// Fail wraps err in an *Error of the given class.
func Fail(kind error, src string, err error) error {
	return &Error{Kind: kind, Src: src, Err: err}
}
