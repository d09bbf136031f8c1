// Package imgerr defines the failure taxonomy shared by every image-studio
// component.
//
// Each failure is one of five kinds. Callers branch on the kind with
// [KindOf] (or errors.Is against the sentinels) and map it to a transport
// status with [Status]. Offloading an operation to a worker pool never
// changes the kind of the error it returns.
package imgerr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind is the machine-readable failure classification.
type Kind string

const (
	KindInvalidParameter     Kind = "invalid_parameter"
	KindUnsupportedOperation Kind = "unsupported_operation"
	KindDecodeFailure        Kind = "decode_failure"
	KindTransformFailure     Kind = "transform_failure"
	KindEncodeFailure        Kind = "encode_failure"
)

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrDecodeFailure        = errors.New("decode failure")
	ErrTransformFailure     = errors.New("transform failure")
	ErrEncodeFailure        = errors.New("encode failure")

	// ErrStitchingFailed is a TransformFailure raised when the panorama
	// aligner cannot produce a consistent result.
	ErrStitchingFailed = errors.Wrap(ErrTransformFailure, "stitching failed")
)

// Invalid reports a parameter that is missing or outside its domain.
func Invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidParameter, format, args...)
}

// Unsupported reports an operation name that nothing handles.
func Unsupported(name string) error {
	return errors.Wrapf(ErrUnsupportedOperation, "%q", name)
}

// Decode wraps a decoder error.
func Decode(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(ErrDecodeFailure, err.Error())
}

// Transform wraps an error raised by an image or vision library.
func Transform(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return errors.Wrapf(ErrTransformFailure, "%s: %v", op, err)
}

// Transformf builds a TransformFailure from a message.
func Transformf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTransformFailure, format, args...)
}

// Encode wraps an encoder error.
func Encode(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return errors.Wrap(ErrEncodeFailure, err.Error())
}

// Encodef builds an EncodeFailure from a message.
func Encodef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrEncodeFailure, format, args...)
}

// Aborted reports work that was cancelled, timed out or refused by a closed
// pool. The result is a TransformFailure that still matches cause with
// errors.Is, so context.Canceled and context.DeadlineExceeded stay
// detectable.
func Aborted(op string, cause error) error {
	if cause == nil {
		return nil
	}
	if KindOf(cause) != "" {
		return cause
	}
	return &aborted{op: op, cause: cause}
}

type aborted struct {
	op    string
	cause error
}

func (e *aborted) Error() string { return e.op + ": " + e.cause.Error() }

func (e *aborted) Unwrap() error { return e.cause }

func (e *aborted) Is(target error) bool { return target == ErrTransformFailure }

// FromPanic converts a recovered panic value into a TransformFailure.
func FromPanic(op string, v interface{}) error {
	if err, ok := v.(error); ok {
		return errors.Wrapf(ErrTransformFailure, "%s panicked: %v", op, err)
	}
	return errors.Wrapf(ErrTransformFailure, "%s panicked: %v", op, v)
}

// KindOf returns the kind of err, or "" when err is nil or unclassified.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, ErrUnsupportedOperation):
		return KindUnsupportedOperation
	case errors.Is(err, ErrDecodeFailure):
		return KindDecodeFailure
	case errors.Is(err, ErrTransformFailure):
		return KindTransformFailure
	case errors.Is(err, ErrEncodeFailure):
		return KindEncodeFailure
	}
	return ""
}

// Classify forces err into the taxonomy. Unclassified errors become
// TransformFailure so that callers never see a bare message.
func Classify(op string, err error) error {
	if err == nil || KindOf(err) != "" {
		return err
	}
	return errors.Wrapf(ErrTransformFailure, "%s: %v", op, err)
}

// IsClientError reports whether the failure was caused by the request.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindInvalidParameter, KindUnsupportedOperation, KindDecodeFailure:
		return true
	}
	return false
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindInvalidParameter, KindUnsupportedOperation:
		return http.StatusBadRequest
	case KindDecodeFailure:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// Failure is the structured record of one failed item or request.
type Failure struct {
	Index   int    `json:"index"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// NewFailure records err for the item at index.
func NewFailure(index int, err error) *Failure {
	err = Classify("item", err)
	return &Failure{
		Index:   index,
		Kind:    KindOf(err),
		Message: err.Error(),
	}
}

func (f *Failure) Error() string {
	return fmt.Sprintf("item %d: %s: %s", f.Index, f.Kind, f.Message)
}
