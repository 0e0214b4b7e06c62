package board

import "errors"

// ValidationError blocks a submit before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UploadError wraps a blob-store failure. The submission aborts before any
// document write, so no partial post exists.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "upload image: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

// WriteError wraps a document create/delete failure. The caller's unsaved
// input is the retry mechanism; nothing is retried automatically.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "write post: " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

var (
	// ErrSubmitInFlight rejects a second submit while one is pending.
	ErrSubmitInFlight = errors.New("a submission is already in flight")

	// ErrConfirmationRequired gates deletion on an explicit confirm.
	ErrConfirmationRequired = errors.New("deletion requires confirmation")

	// ErrNotAuthor gates deletion on authorship. True enforcement lives in
	// the backend's access rules; this keeps the client path honest.
	ErrNotAuthor = errors.New("only the author can delete a post")

	// ErrNotFound reports a post that does not exist (or was already
	// deleted; the next snapshot is authoritative either way).
	ErrNotFound = errors.New("post not found")
)
