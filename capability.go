package zxscan

import (
	"context"
	"time"
)

// ImageData is an encoded still image (PNG, JPEG or GIF).
type ImageData []byte

// Camera acquires the default video capture device.
type Camera interface {
	// Acquire opens the device and returns a handle bound to it. It returns an
	// error wrapping ErrCaptureUnavailable when the device or its input cannot
	// be acquired.
	Acquire(ctx context.Context) (CaptureHandle, error)
}

// CaptureHandle is an active capture stream.
type CaptureHandle interface {
	// Observe starts delivering decoded payloads, zero or more per unit time,
	// to onCode. onCode must not block.
	Observe(onCode func(payload string))

	// Release stops the stream. It is safe to call more than once, and no
	// onCode invocation occurs after it returns.
	Release()
}

// Decoder maps image data to an optional decoded payload. Implementations are
// pure and deterministic, and report no payload for data that is not an image.
type Decoder interface {
	Decode(image ImageData) (payload string, ok bool)
}

// PhotoCapturer presents a one-shot capture flow. It returns ErrUserCancelled
// when the flow is dismissed without an image.
type PhotoCapturer interface {
	Capture(ctx context.Context) (ImageData, error)
}

// Feedback signals a successful live detection to the user. Fire and forget.
type Feedback interface {
	Notify()
}

// Metrics records scan activity.
type Metrics interface {
	IncLiveSessionsStarted(ctx context.Context)
	IncLiveSessionsStopped(ctx context.Context)
	IncLiveDetections(ctx context.Context)
	IncCaptureUnavailable(ctx context.Context)
	IncPhotoScans(ctx context.Context, found bool)
	IncPhotoCancelled(ctx context.Context)
	ObserveDecodeDuration(ctx context.Context, d time.Duration)
}

type nopFeedback struct{}

func (nopFeedback) Notify() {}

type nopMetrics struct{}

func (nopMetrics) IncLiveSessionsStarted(context.Context) {}
func (nopMetrics) IncLiveSessionsStopped(context.Context) {}
func (nopMetrics) IncLiveDetections(context.Context) {}
func (nopMetrics) IncCaptureUnavailable(context.Context) {}
func (nopMetrics) IncPhotoScans(context.Context, bool) {}
func (nopMetrics) IncPhotoCancelled(context.Context) {}
func (nopMetrics) ObserveDecodeDuration(context.Context, time.Duration) {}
