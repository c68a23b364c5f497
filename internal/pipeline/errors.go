package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a job failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindIngestion  Kind = "ingestion"
	KindAdmission  Kind = "admission"
	KindTransform  Kind = "transform"
	KindTimeout    Kind = "timeout"
	KindCanceled   Kind = "canceled"
	KindDelivery   Kind = "delivery"
	KindInternal   Kind = "internal"
)

// StatusClientClosedRequest is the non-standard status logged when the caller
// went away before the job finished.
const StatusClientClosedRequest = 499

// Sentinel causes wrapped by *Error.
var (
	ErrBusy                 = errors.New("all transcode workers are busy")
	ErrEmptyUpload          = errors.New("upload is empty")
	ErrUploadTooLarge       = errors.New("upload exceeds size limit")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInsufficientDisk     = errors.New("insufficient disk space")
)

// Error is a job failure with a message safe to show the caller. Err holds
// the full cause for logs.
type Error struct {
	Kind    Kind
	JobID   string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, status int, message string, err error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, Err: err}
}

// AsError extracts a *Error from err. Anything else becomes an internal error.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return newError(KindInternal, http.StatusInternalServerError, "internal error", err)
}
