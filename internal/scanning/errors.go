package scanning

import (
	"errors"
	"fmt"
)

var (
	// ErrRecognizerUnavailable means no backend could be initialized
	ErrRecognizerUnavailable = errors.New("recognizer unavailable")

	// ErrRecognitionFailed means a backend was ready but failed on this image
	ErrRecognitionFailed = errors.New("recognition failed")
)

// UnavailableError carries the init failure of every strategy that was attempted
type UnavailableError struct {
	Attempts []error
}

func (e *UnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "recognizer unavailable: no backends configured"
	}
	return fmt.Sprintf("recognizer unavailable: %v", errors.Join(e.Attempts...))
}

// Unwrap exposes the sentinel and every attempt error to errors.Is/As
func (e *UnavailableError) Unwrap() []error {
	return append([]error{ErrRecognizerUnavailable}, e.Attempts...)
}

// RecognitionError wraps a per-image failure
type RecognitionError struct {
	Backend string
	Err     error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed (%s): %v", e.Backend, e.Err)
}

// Unwrap exposes the sentinel and the cause to errors.Is/As
func (e *RecognitionError) Unwrap() []error {
	return []error{ErrRecognitionFailed, e.Err}
}
