package wire

import "fmt"

// ErrorKind is the discriminator tag for a BackendError variant.
type ErrorKind string

const (
	ErrKindValidation       ErrorKind = "validation"
	ErrKindPermissionDenied ErrorKind = "permission-denied"
	ErrKindNotFound         ErrorKind = "not-found"
	ErrKindConflict         ErrorKind = "conflict"
	ErrKindInternal         ErrorKind = "internal"
	ErrKindVersionMismatch  ErrorKind = "version-mismatch"
	ErrKindTimeout          ErrorKind = "timeout"
	ErrKindRateLimited      ErrorKind = "rate-limited"
)

// BackendError is a structured error reported by the backend inside an
// IntentFailed event. The client surfaces these largely verbatim; it never
// retries on its own (see pkg/retry for the opt-in caller-level policy).
type BackendError interface {
	error
	Kind() ErrorKind
}

// ValidationError reports a rejected field in an intent payload.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (ValidationError) Kind() ErrorKind { return ErrKindValidation }
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Message)
}

// PermissionDenied reports that the backend refused the operation.
type PermissionDenied struct{}

func (PermissionDenied) Kind() ErrorKind { return ErrKindPermissionDenied }
func (PermissionDenied) Error() string   { return "permission denied" }

// ResourceNotFound reports a missing referenced resource.
type ResourceNotFound struct {
	ID string `json:"id"`
}

func (ResourceNotFound) Kind() ErrorKind { return ErrKindNotFound }
func (e ResourceNotFound) Error() string {
	return fmt.Sprintf("resource not found: %s", e.ID)
}

// Conflict reports a state conflict (e.g. concurrent modification).
type Conflict struct {
	Reason string `json:"reason"`
}

func (Conflict) Kind() ErrorKind { return ErrKindConflict }
func (e Conflict) Error() string { return fmt.Sprintf("conflict: %s", e.Reason) }

// Internal reports an unexpected backend failure.
type Internal struct {
	TraceID string `json:"trace_id"`
	Message string `json:"message"`
}

func (Internal) Kind() ErrorKind { return ErrKindInternal }
func (e Internal) Error() string {
	return fmt.Sprintf("internal error (trace %s): %s", e.TraceID, e.Message)
}

// VersionMismatch reports an unsupported protocol version.
type VersionMismatch struct {
	Expected Version `json:"expected"`
	Received Version `json:"received"`
}

func (VersionMismatch) Kind() ErrorKind { return ErrKindVersionMismatch }
func (e VersionMismatch) Error() string {
	return fmt.Sprintf("protocol version mismatch: backend expects %s, client sent %s",
		e.Expected, e.Received)
}

// Timeout reports that the backend gave up on an operation.
type Timeout struct {
	TimeoutMs int64 `json:"timeout_ms"`
}

func (Timeout) Kind() ErrorKind { return ErrKindTimeout }
func (e Timeout) Error() string {
	return fmt.Sprintf("backend timed out after %dms", e.TimeoutMs)
}

// RateLimited reports that the backend throttled the intent.
type RateLimited struct {
	RetryAfterMs int64 `json:"retry_after_ms"`
}

func (RateLimited) Kind() ErrorKind { return ErrKindRateLimited }
func (e RateLimited) Error() string {
	return fmt.Sprintf("rate limited, retry after %dms", e.RetryAfterMs)
}
