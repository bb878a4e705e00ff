package image

import (
	"errors"
	"fmt"
)

var (
	ErrFetch       = errors.New("fetch failed")
	ErrNotFound    = errors.New("file not found in image")
	ErrUnsupported = errors.New("unsupported image content")
	ErrEmptyIndex  = errors.New("empty image index")
	ErrNoImage     = errors.New("no matching image in archive")
)

// Reports a fetch process that ran but exited with a non-zero status.
type ExitError struct {
	Code   int    // Exit code of the process.
	Stdout string // Captured standard output.
	Stderr string // Captured standard error.
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", ErrFetch, e.Code)
}

func (e *ExitError) Unwrap() error {
	return ErrFetch
}
