package zxscan

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State is a snapshot of everything a scan view renders.
type State struct {
	Result ScanResult
	Mode   Mode
	// Photo is the captured image on display while Mode is ModePhotoCaptured.
	Photo ImageData
	// CapturePending is set between RequestPhotoCapture and the photo arriving
	// or the capture being cancelled.
	CapturePending bool
	// Generation identifies the most recent live session.
	Generation uint64
	// Version increases with every change. Subscribers never see a lower
	// Version after a higher one.
	Version uint64
}

// Option configures a ViewModel.
type Option func(*ViewModel)

// WithFeedback sets the feedback fired on each successful live detection.
func WithFeedback(f Feedback) Option {
	return func(vm *ViewModel) { vm.feedback = f }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(vm *ViewModel) { vm.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(vm *ViewModel) { vm.logger = l }
}

// ViewModel is the single owner of the scan result and mode. Every mutation
// goes through its methods and is serialized by its mutex; live sessions hand
// detections back tagged with a generation, and only the active generation
// may change the result.
type ViewModel struct {
	camera   Camera
	photos   *PhotoScan
	feedback Feedback
	metrics  Metrics
	logger   zerolog.Logger

	mu             sync.Mutex
	result         ScanResult
	mode           Mode
	photo          ImageData
	capturePending bool
	generation     uint64
	version        uint64
	session        *LiveSession

	// starting is set while StartLiveScan acquires the camera without the lock.
	starting bool

	subMu       sync.Mutex
	subscribers map[int]func(State)
	nextSubID   int

	// publishMu orders deliveries to subscribers.
	publishMu sync.Mutex
	published uint64
}

// NewViewModel creates a view model in ModeIdle with a NotScanned result.
func NewViewModel(camera Camera, photos *PhotoScan, opts ...Option) *ViewModel {
	vm := &ViewModel{
		camera:      camera,
		photos:      photos,
		feedback:    nopFeedback{},
		metrics:     nopMetrics{},
		logger:      zerolog.Nop(),
		result:      NotScannedResult(),
		mode:        ModeIdle,
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.photos == nil {
		vm.photos = NewPhotoScan(nil, nil)
	}
	return vm
}

// State returns a snapshot of the current state.
func (vm *ViewModel) State() State {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.stateLocked()
}

// Result returns the displayed scan result.
func (vm *ViewModel) Result() ScanResult {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.result
}

// Mode returns the active mode.
func (vm *ViewModel) Mode() Mode {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.mode
}

func (vm *ViewModel) stateLocked() State {
	return State{
		Result:         vm.result,
		Mode:           vm.mode,
		Photo:          vm.photo,
		CapturePending: vm.capturePending,
		Generation:     vm.generation,
		Version:        vm.version,
	}
}

// changedLocked records a state change and returns the snapshot to publish.
func (vm *ViewModel) changedLocked() State {
	vm.version++
	return vm.stateLocked()
}

// Subscribe registers fn to receive a snapshot after every state change.
// Snapshots arrive in Version order; one superseded before delivery is
// skipped. fn is called outside the view model's lock and may read from it,
// but must not call methods that change state. The returned function removes
// the subscription.
func (vm *ViewModel) Subscribe(fn func(State)) (cancel func()) {
	vm.subMu.Lock()
	id := vm.nextSubID
	vm.nextSubID++
	vm.subscribers[id] = fn
	vm.subMu.Unlock()

	return func() {
		vm.subMu.Lock()
		delete(vm.subscribers, id)
		vm.subMu.Unlock()
	}
}

func (vm *ViewModel) publish(s State) {
	vm.publishMu.Lock()
	defer vm.publishMu.Unlock()
	if s.Version <= vm.published {
		return
	}
	vm.published = s.Version

	vm.subMu.Lock()
	subs := make([]func(State), 0, len(vm.subscribers))
	for _, fn := range vm.subscribers {
		subs = append(subs, fn)
	}
	vm.subMu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// StartLiveScan acquires the camera and moves to ModeLiveScanning. It is a
// no-op while already live scanning or starting. If the camera cannot be
// acquired the mode is left unchanged and the returned error wraps
// ErrCaptureUnavailable. A StopLiveScan or photo that arrives while the camera
// is being acquired abandons the start.
func (vm *ViewModel) StartLiveScan(ctx context.Context) error {
	logger := vm.logger.With().Str("method", "StartLiveScan").Logger()

	vm.mu.Lock()
	if vm.mode == ModeLiveScanning || vm.starting {
		vm.mu.Unlock()
		return nil
	}
	vm.starting = true
	vm.generation++
	gen := vm.generation
	vm.mu.Unlock()

	session := newLiveSession(gen, vm.camera, vm.deliverLive, vm.logger)
	err := session.acquire(ctx)

	vm.mu.Lock()
	vm.starting = false
	if err != nil {
		vm.mu.Unlock()
		vm.metrics.IncCaptureUnavailable(ctx)
		logger.Info().Err(err).Msg("live scan not started")
		return err
	}
	if gen != vm.generation {
		vm.mu.Unlock()
		session.Stop()
		logger.Debug().Msg("live scan abandoned while acquiring")
		return nil
	}
	vm.session = session
	vm.mode = ModeLiveScanning
	vm.photo = nil
	state := vm.changedLocked()
	vm.mu.Unlock()

	// Observing begins only once the session is registered, so its first
	// detection matches. A stop in between makes begin a no-op.
	session.begin()
	vm.metrics.IncLiveSessionsStarted(ctx)
	logger.Debug().Str("session", session.ID().String()).Msg("live scan started")
	vm.publish(state)
	return nil
}

// StopLiveScan leaves ModeLiveScanning without changing the result. It is a
// no-op in any other mode. The mode flips before the handle is released, and
// the call returns only after the session can no longer deliver.
func (vm *ViewModel) StopLiveScan() {
	vm.mu.Lock()
	if vm.starting {
		vm.generation++
	}
	if vm.mode != ModeLiveScanning {
		vm.mu.Unlock()
		return
	}
	session := vm.retireSessionLocked()
	vm.mode = ModeIdle
	state := vm.changedLocked()
	vm.mu.Unlock()

	vm.stopSession(session)
	vm.publish(state)
}

// OnLiveCodeDetected records payload as the result of the active live session,
// returns to ModeIdle and releases the session. Calls made while not live
// scanning, and empty payloads, are ignored.
func (vm *ViewModel) OnLiveCodeDetected(payload string) {
	if payload == "" {
		return
	}
	vm.mu.Lock()
	session, gen := vm.session, vm.generation
	vm.mu.Unlock()

	if session == nil {
		return
	}
	if vm.deliverLive(gen, payload) {
		session.Stop()
	}
}

// deliverLive is the generation-checked path used by live sessions. It does not
// stop the session: a session delivering from its own pump has already
// released its handle.
func (vm *ViewModel) deliverLive(generation uint64, payload string) bool {
	vm.mu.Lock()
	if vm.mode != ModeLiveScanning || vm.session == nil || generation != vm.generation {
		vm.mu.Unlock()
		return false
	}
	vm.session = nil
	vm.generation++
	vm.result = DecodedResult(payload)
	vm.mode = ModeIdle
	state := vm.changedLocked()
	vm.mu.Unlock()

	vm.logger.Info().Str("payload", payload).Msg("live scan detected code")
	vm.metrics.IncLiveDetections(context.Background())
	vm.feedback.Notify()
	vm.publish(state)
	return true
}

// RequestPhotoCapture marks a photo capture as pending. The mode is unchanged
// until the photo arrives.
func (vm *ViewModel) RequestPhotoCapture() {
	vm.mu.Lock()
	if vm.capturePending {
		vm.mu.Unlock()
		return
	}
	vm.capturePending = true
	state := vm.changedLocked()
	vm.mu.Unlock()

	vm.publish(state)
}

// CancelPhotoCapture clears a pending capture. Result and mode are untouched.
func (vm *ViewModel) CancelPhotoCapture() {
	vm.mu.Lock()
	if !vm.capturePending {
		vm.mu.Unlock()
		return
	}
	vm.capturePending = false
	state := vm.changedLocked()
	vm.mu.Unlock()

	vm.metrics.IncPhotoCancelled(context.Background())
	vm.publish(state)
}

// OnPhotoCaptured decodes image and shows it in ModePhotoCaptured with either
// a Decoded or a NoCodeFound result. An active live session is stopped first.
func (vm *ViewModel) OnPhotoCaptured(image ImageData) {
	ctx := context.Background()

	started := time.Now()
	payload, ok := vm.photos.Decode(image)
	vm.metrics.ObserveDecodeDuration(ctx, time.Since(started))

	vm.mu.Lock()
	var session *LiveSession
	if vm.mode == ModeLiveScanning {
		session = vm.retireSessionLocked()
	} else if vm.starting {
		vm.generation++
	}
	if ok {
		vm.result = DecodedResult(payload)
	} else {
		vm.result = NoCodeFoundResult()
	}
	vm.mode = ModePhotoCaptured
	vm.photo = image
	vm.capturePending = false
	state := vm.changedLocked()
	vm.mu.Unlock()

	vm.stopSession(session)
	vm.metrics.IncPhotoScans(ctx, ok)
	vm.logger.Info().Bool("found", ok).Str("result", state.Result.String()).Msg("photo scanned")
	vm.publish(state)
}

// CapturePhoto runs a whole still-photo scan: request, capture, then decode.
// A cancelled capture leaves the result and mode untouched and returns nil.
func (vm *ViewModel) CapturePhoto(ctx context.Context) error {
	vm.RequestPhotoCapture()

	image, err := vm.photos.Capture(ctx)
	if err != nil {
		vm.CancelPhotoCapture()
		if errors.Is(err, ErrUserCancelled) {
			return nil
		}
		return errors.Wrap(err, "capture photo")
	}
	vm.OnPhotoCaptured(image)
	return nil
}

// Close stops any live session.
func (vm *ViewModel) Close() {
	vm.StopLiveScan()
}

// retireSessionLocked detaches the active session and bumps the generation so
// that nothing it delivers later is accepted.
func (vm *ViewModel) retireSessionLocked() *LiveSession {
	session := vm.session
	vm.session = nil
	vm.generation++
	return session
}

// stopSession must be called without vm.mu held: Stop waits for the session's
// pump, which may be blocked delivering to the view model.
func (vm *ViewModel) stopSession(session *LiveSession) {
	if session == nil {
		return
	}
	session.Stop()
	vm.metrics.IncLiveSessionsStopped(context.Background())
}
