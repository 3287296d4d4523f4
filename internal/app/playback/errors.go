package playback

import "github.com/cockroachdb/errors"

// Errors returned by Dispatch. Classify with errors.Is.
var (
	// ErrValidation marks malformed input. Nothing was mutated.
	ErrValidation = errors.New("invalid command")
	// ErrNotFound marks a command that had nothing to act on: a mood with
	// no tracks or an exhausted queue. The engine is left paused.
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

func validationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

func notFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}
