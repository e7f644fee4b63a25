package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound      = errors.New("scheduler: job not found")
	ErrDocumentNotFound = errors.New("scheduler: document not found")
	ErrJobActive        = errors.New("scheduler: document already has an unfinished job")
	ErrNotStarted       = errors.New("scheduler: not started")
	ErrAlreadyStarted   = errors.New("scheduler: already started")
	ErrStageTimeout     = errors.New("scheduler: stage timed out")
	ErrStagePanic       = errors.New("scheduler: stage panicked")
	ErrNoHandler        = errors.New("scheduler: no handler for stage")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The job fails on the spot
// instead of spending its retry budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Permanentf is Permanent(fmt.Errorf(format, args...)).
func Permanentf(format string, args ...interface{}) error {
	return Permanent(fmt.Errorf(format, args...))
}

// IsPermanent reports whether any error in err's chain was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
