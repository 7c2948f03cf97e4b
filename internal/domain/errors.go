package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrProviderNotReady    = errors.New("provider not configured")
)

// Shape defects reported by ShapeError.
const (
	DefectEmptyGraph       = "empty graph"
	DefectWrongFormat      = "wrong export format"
	DefectNotExecutable    = "not an executable graph"
	DefectMalformedPayload = "malformed graph payload"
)

// ValidationError reports insufficient caller input or an unusable provider.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return e.Err }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ShapeError reports a graph payload that cannot be submitted.
type ShapeError struct {
	Defect string
	Msg    string
}

func (e *ShapeError) Error() string {
	if e.Msg == "" {
		return e.Defect
	}
	return e.Defect + ": " + e.Msg
}

// BindingMismatch reports a slot that does not hold the asset name just written.
type BindingMismatch struct {
	Slot     string
	Expected string
	Actual   string
}

func (e *BindingMismatch) Error() string {
	return fmt.Sprintf("workflow image assignment mismatch: node %s expected %s got %s", e.Slot, e.Expected, e.Actual)
}

// VerificationError reports an uploaded asset that could not be read back.
type VerificationError struct {
	Name   string
	Status int
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to verify uploaded image %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("uploaded image not accessible: %s (status %d)", e.Name, e.Status)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// TransportError wraps network failures and unexpected HTTP statuses.
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a successful response whose shape is unusable.
type ProtocolError struct {
	Op  string
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %s", e.Op, e.Msg)
}

// JobFailed reports a job the provider marked as failed or left in an unknown state.
type JobFailed struct {
	JobID  string
	Reason string
}

func (e *JobFailed) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Reason)
}

// DecodeError reports an inline image payload with malformed encoding.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode image payload: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// UploadError reports the asset that aborted an upload batch.
type UploadError struct {
	Index    int
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed for image %d (%s): %v", e.Index, e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ResolutionError reports a remote image reference that could not be fetched.
type ResolutionError struct {
	Slot string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to fetch/prepare %s image: %v", e.Slot, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// HTTPStatus maps an error onto the status class the caller should see.
func HTTPStatus(err error) int {
	var (
		validation   *ValidationError
		shape        *ShapeError
		mismatch     *BindingMismatch
		verification *VerificationError
		decode       *DecodeError
		resolution   *ResolutionError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation),
		errors.Is(err, ErrUnsupportedProvider),
		errors.Is(err, ErrProviderNotReady):
		return http.StatusBadRequest
	case errors.As(err, &shape),
		errors.As(err, &mismatch),
		errors.As(err, &verification),
		errors.As(err, &decode),
		errors.As(err, &resolution):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns a short machine readable code for err.
func ErrorCode(err error) string {
	var (
		validation   *ValidationError
		shape        *ShapeError
		mismatch     *BindingMismatch
		verification *VerificationError
		decode       *DecodeError
		resolution   *ResolutionError
		upload       *UploadError
		transport    *TransportError
		protocol     *ProtocolError
		failed       *JobFailed
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation), errors.Is(err, ErrUnsupportedProvider), errors.Is(err, ErrProviderNotReady):
		return "validation_error"
	case errors.As(err, &shape):
		return "shape_error"
	case errors.As(err, &mismatch):
		return "binding_mismatch"
	case errors.As(err, &verification):
		return "verification_error"
	case errors.As(err, &decode):
		return "decode_error"
	case errors.As(err, &resolution):
		return "resolution_error"
	case errors.As(err, &failed):
		return "job_failed"
	case errors.As(err, &protocol):
		return "protocol_error"
	case errors.As(err, &upload):
		return "upload_error"
	case errors.As(err, &transport):
		return "transport_error"
	default:
		return "internal"
	}
}

// TrimBody shortens a response body for inclusion in error messages.
func TrimBody(raw []byte) string {
	const limit = 512
	body := strings.TrimSpace(string(raw))
	if len(body) > limit {
		return body[:limit] + "..."
	}
	return body
}
