package zxscan

import "github.com/pkg/errors"

var (
	// ErrCaptureUnavailable is returned when the capture device or its input
	// could not be acquired. The live session never starts.
	ErrCaptureUnavailable = errors.New("capture unavailable")

	// ErrUserCancelled is returned by a PhotoCapturer when the capture flow is
	// dismissed without an image.
	ErrUserCancelled = errors.New("capture cancelled by user")

	// ErrInvalidTransition is returned when a live session is asked to move
	// between states its lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid session state transition")
)
