package ingest

import "errors"

// ErrUnresolvable marks a hit for which no direct URL exists. It is never
// retried.
var ErrUnresolvable = errors.New("unresolvable")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// permanent marks err as not worth another attempt.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	if errors.Is(err, ErrUnresolvable) {
		return true
	}
	var p *permanentError
	return errors.As(err, &p)
}
