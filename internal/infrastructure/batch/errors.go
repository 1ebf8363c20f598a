package batch

import "errors"

var (
	// ErrBatchAlreadyRunning is returned when Start is called while a run is in progress
	ErrBatchAlreadyRunning = errors.New("batch run already in progress")

	// ErrNoProcessor is returned when the driver was built without a processor
	ErrNoProcessor = errors.New("batch driver has no processor")

	// ErrRunAborted is wrapped around the parent context error when a run ends in StateFailed
	ErrRunAborted = errors.New("batch run aborted")

	// ErrCancelledBeforeRetry is recorded for a unit whose retry was skipped after Cancel
	ErrCancelledBeforeRetry = errors.New("run cancelled before retry")
)

// permanentError marks a unit error that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so the driver records the unit as failed without retrying.
// Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
