package zxscan

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// SessionState is a stage in the lifecycle of a LiveSession.
type SessionState int

const (
	SessionNotStarted SessionState = iota
	SessionAcquiring
	SessionObserving
	SessionDetected
	SessionStopped
	SessionReleased
)

// String returns the name of the session state.
func (s SessionState) String() string {
	switch s {
	case SessionNotStarted:
		return "NOT_STARTED"
	case SessionAcquiring:
		return "ACQUIRING"
	case SessionObserving:
		return "OBSERVING"
	case SessionDetected:
		return "DETECTED"
	case SessionStopped:
		return "STOPPED"
	case SessionReleased:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

// ValidateTransition checks if a session may move to target and returns an
// error wrapping ErrInvalidTransition if not.
func (s SessionState) ValidateTransition(target SessionState) error {
	if !s.isValidTransition(target) {
		return errors.Wrapf(ErrInvalidTransition, "%s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces NotStarted -> Acquiring -> Observing ->
// (Detected | Stopped) -> Released. A failed acquisition goes straight to
// Released, and a session stopped before it began observing goes from
// Acquiring to Stopped.
func (s SessionState) isValidTransition(target SessionState) bool {
	switch s {
	case SessionNotStarted:
		return target == SessionAcquiring
	case SessionAcquiring:
		return target == SessionObserving || target == SessionStopped || target == SessionReleased
	case SessionObserving:
		return target == SessionDetected || target == SessionStopped
	case SessionDetected, SessionStopped:
		return target == SessionReleased
	default:
		return false
	}
}

// deliverFunc hands a detected payload to the state owner. It reports whether
// the payload was accepted for the given generation.
type deliverFunc func(generation uint64, payload string) bool

// LiveSession wraps one capture handle and forwards at most one observed
// payload. The camera callback only hands the payload off to the session's
// pump goroutine, which releases the handle and delivers the payload tagged
// with the session's generation.
type LiveSession struct {
	id         uuid.UUID
	generation uint64
	camera     Camera
	deliver    deliverFunc
	logger     zerolog.Logger

	mu     sync.Mutex
	state  SessionState
	handle CaptureHandle
	begun  bool

	codes    chan string
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func newLiveSession(generation uint64, camera Camera, deliver deliverFunc, logger zerolog.Logger) *LiveSession {
	id := uuid.New()
	return &LiveSession{
		id:         id,
		generation: generation,
		camera:     camera,
		deliver:    deliver,
		logger:     logger.With().Str("session", id.String()).Uint64("generation", generation).Logger(),
		state:      SessionNotStarted,
		codes:      make(chan string, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ID returns the unique identifier of the session.
func (s *LiveSession) ID() uuid.UUID { return s.id }

// Generation returns the view model generation the session was started for.
func (s *LiveSession) Generation() uint64 { return s.generation }

// State returns the current lifecycle state.
func (s *LiveSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has stopped forwarding observations.
func (s *LiveSession) Done() <-chan struct{} { return s.done }

// acquire obtains a capture handle without observing it yet. On failure the
// session is released and the returned error wraps ErrCaptureUnavailable.
func (s *LiveSession) acquire(ctx context.Context) error {
	logger := s.logger.With().Str("method", "acquire").Logger()

	s.advance(SessionAcquiring)
	handle, err := s.camera.Acquire(ctx)
	if err == nil && handle == nil {
		err = errors.New("camera returned no capture handle")
	}
	if err != nil {
		s.advance(SessionReleased)
		s.finish()
		if !errors.Is(err, ErrCaptureUnavailable) {
			err = errors.Wrap(ErrCaptureUnavailable, err.Error())
		}
		logger.Warn().Err(err).Msg("could not acquire capture device")
		return err
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
	return nil
}

// begin starts observing the acquired handle. It reports false if the
// session was stopped before it could begin.
func (s *LiveSession) begin() bool {
	s.mu.Lock()
	if s.state != SessionAcquiring || s.handle == nil || !s.advanceLocked(SessionObserving) {
		s.mu.Unlock()
		return false
	}
	handle := s.handle
	s.begun = true
	s.mu.Unlock()

	go s.pump()
	handle.Observe(s.observe)
	s.logger.Debug().Msg("observing capture stream")
	return true
}

// observe runs on the camera's delivery goroutine. Only the first payload
// fits in the channel; the rest are dropped.
func (s *LiveSession) observe(payload string) {
	if payload == "" {
		return
	}
	select {
	case s.codes <- payload:
	default:
	}
}

func (s *LiveSession) pump() {
	defer s.finish()

	select {
	case payload := <-s.codes:
		if !s.advanceFrom(SessionObserving, SessionDetected) {
			return
		}
		s.release()
		if !s.deliver(s.generation, payload) {
			s.logger.Debug().Msg("detection arrived for a retired generation, ignoring")
		}
	case <-s.stop:
	}
}

func (s *LiveSession) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Stop ends the session without a result if nothing was detected yet. It is
// idempotent and returns only after the handle is released and the pump has
// exited, so no observation from this session is delivered afterwards.
func (s *LiveSession) Stop() {
	s.mu.Lock()
	if s.state == SessionAcquiring || s.state == SessionObserving {
		s.advanceLocked(SessionStopped)
	}
	begun := s.begun
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
	if !begun {
		s.finish()
	}
	<-s.done
	s.release()
}

func (s *LiveSession) release() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle == nil {
		return
	}
	handle.Release()
	s.advance(SessionReleased)
	s.logger.Debug().Msg("capture handle released")
}

// advance moves to target if the lifecycle allows it.
func (s *LiveSession) advance(target SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(target)
}

// advanceFrom moves to target only if the session is currently in from.
func (s *LiveSession) advanceFrom(from, target SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	return s.advanceLocked(target)
}

func (s *LiveSession) advanceLocked(target SessionState) bool {
	if err := s.state.ValidateTransition(target); err != nil {
		s.logger.Error().Err(err).Msg("rejected session transition")
		return false
	}
	s.state = target
	return true
}
