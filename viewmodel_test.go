package zxscan

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = time.Millisecond
)

func newTestViewModel(t *testing.T, cam Camera, capturer PhotoCapturer, decoder Decoder, opts ...Option) *ViewModel {
	t.Helper()
	vm := NewViewModel(cam, NewPhotoScan(capturer, decoder), opts...)
	t.Cleanup(vm.Close)
	return vm
}

func TestViewModel_InitialState(t *testing.T) {
	vm := newTestViewModel(t, &fakeCamera{}, nil, nil)

	s := vm.State()
	assert.Equal(t, NotScannedResult(), s.Result)
	assert.Equal(t, ModeIdle, s.Mode)
	assert.False(t, s.CapturePending)
	assert.Nil(t, s.Photo)
}

func TestViewModel_LiveDetection(t *testing.T) {
	cam := &fakeCamera{}
	fb := &countingFeedback{}
	vm := newTestViewModel(t, cam, nil, nil, WithFeedback(fb))

	require.NoError(t, vm.StartLiveScan(context.Background()))
	assert.Equal(t, ModeLiveScanning, vm.Mode())

	h := cam.last()
	h.Emit("ABC123")

	require.Eventually(t, func() bool { return vm.Mode() == ModeIdle }, waitFor, tick)
	assert.Equal(t, DecodedResult("ABC123"), vm.Result())
	assert.True(t, h.Released())
	require.Eventually(t, func() bool { return fb.n.Load() == 1 }, waitFor, tick)
}

func TestViewModel_DetectionIsTerminalForSession(t *testing.T) {
	cam := &fakeCamera{}
	vm := newTestViewModel(t, cam, nil, nil)

	require.NoError(t, vm.StartLiveScan(context.Background()))
	h := cam.last()
	h.Emit("ABC123")
	require.Eventually(t, func() bool { return vm.Mode() == ModeIdle }, waitFor, tick)

	h.Emit("XYZ789")
	assert.Never(t, func() bool { return vm.Result() != DecodedResult("ABC123") }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, ModeIdle, vm.Mode())
}

func TestViewModel_StopWithoutDetection(t *testing.T) {
	cam := &fakeCamera{}
	vm := newTestViewModel(t, cam, nil, nil)

	require.NoError(t, vm.StartLiveScan(context.Background()))
	vm.StopLiveScan()

	s := vm.State()
	assert.Equal(t, NotScannedResult(), s.Result)
	assert.Equal(t, ModeIdle, s.Mode)
	assert.True(t, cam.last().Released())

	// A release-in-flight handle firing late must not change anything.
	cam.last().Emit("LATE")
	assert.Never(t, func() bool { return vm.Result() != NotScannedResult() }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestViewModel_StopWhenNotLiveScanningIsNoOp(t *testing.T) {
	dec := new(mockDecoder)
	dec.On("Decode", ImageData("photo")).Return("QR-1", true)
	vm := newTestViewModel(t, &fakeCamera{}, nil, dec)

	var changes int
	vm.Subscribe(func(State) { changes++ })

	vm.StopLiveScan()
	assert.Equal(t, State{Result: NotScannedResult(), Mode: ModeIdle}, vm.State())
	assert.Zero(t, changes)

	vm.OnPhotoCaptured(ImageData("photo"))
	before := vm.State()
	changes = 0
	vm.StopLiveScan()
	assert.Equal(t, before, vm.State())
	assert.Zero(t, changes)
}

func TestViewModel_StartIsIdempotent(t *testing.T) {
	cam := &fakeCamera{}
	vm := newTestViewModel(t, cam, nil, nil)

	require.NoError(t, vm.StartLiveScan(context.Background()))
	gen := vm.State().Generation
	require.NoError(t, vm.StartLiveScan(context.Background()))

	assert.Len(t, cam.handles, 1)
	assert.Equal(t, gen, vm.State().Generation)
}

func TestViewModel_CaptureUnavailable(t *testing.T) {
	cam := &fakeCamera{err: errors.Wrap(ErrCaptureUnavailable, "device busy")}
	vm := newTestViewModel(t, cam, nil, nil)

	err := vm.StartLiveScan(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
	assert.Equal(t, ModeIdle, vm.Mode())
	assert.Equal(t, NotScannedResult(), vm.Result())
}

func TestViewModel_OnLiveCodeDetected(t *testing.T) {
	cam := &fakeCamera{}
	vm := newTestViewModel(t, cam, nil, nil)

	// Ignored while not live scanning.
	vm.OnLiveCodeDetected("EARLY")
	assert.Equal(t, NotScannedResult(), vm.Result())

	require.NoError(t, vm.StartLiveScan(context.Background()))
	vm.OnLiveCodeDetected("ABC123")

	assert.Equal(t, DecodedResult("ABC123"), vm.Result())
	assert.Equal(t, ModeIdle, vm.Mode())
	assert.True(t, cam.last().Released())

	vm.OnLiveCodeDetected("AFTER")
	assert.Equal(t, DecodedResult("ABC123"), vm.Result())
}

func TestViewModel_OnLiveCodeDetectedIgnoresEmptyPayload(t *testing.T) {
	cam := &fakeCamera{}
	vm := newTestViewModel(t, cam, nil, nil)
	require.NoError(t, vm.StartLiveScan(context.Background()))

	vm.OnLiveCodeDetected("")

	s := vm.State()
	assert.Equal(t, ModeLiveScanning, s.Mode)
	assert.Equal(t, NotScannedResult(), s.Result)
	assert.False(t, cam.last().Released())

	vm.OnLiveCodeDetected("ABC123")
	assert.Equal(t, DecodedResult("ABC123"), vm.Result())
}

func TestViewModel_RetiredGenerationIsIgnored(t *testing.T) {
	cam := &fakeCamera{}
	vm := newTestViewModel(t, cam, nil, nil)

	require.NoError(t, vm.StartLiveScan(context.Background()))
	stale := vm.State().Generation
	vm.StopLiveScan()
	require.NoError(t, vm.StartLiveScan(context.Background()))

	assert.False(t, vm.deliverLive(stale, "STALE"))
	assert.Equal(t, NotScannedResult(), vm.Result())
	assert.Equal(t, ModeLiveScanning, vm.Mode())

	assert.True(t, vm.deliverLive(vm.State().Generation, "FRESH"))
	assert.Equal(t, DecodedResult("FRESH"), vm.Result())
}

func TestViewModel_PhotoCancelled(t *testing.T) {
	capturer := new(mockCapturer)
	capturer.On("Capture", mock.Anything).Return(nil, ErrUserCancelled)
	dec := new(mockDecoder)
	vm := newTestViewModel(t, &fakeCamera{}, capturer, dec)

	before := vm.State()
	require.NoError(t, vm.CapturePhoto(context.Background()))

	after := vm.State()
	assert.Equal(t, before.Result, after.Result)
	assert.Equal(t, before.Mode, after.Mode)
	assert.False(t, after.CapturePending)
	dec.AssertNotCalled(t, "Decode", mock.Anything)
}

func TestViewModel_PhotoWithoutCode(t *testing.T) {
	capturer := new(mockCapturer)
	capturer.On("Capture", mock.Anything).Return(ImageData("blank"), nil)
	dec := new(mockDecoder)
	dec.On("Decode", ImageData("blank")).Return("", false).Once()
	vm := newTestViewModel(t, &fakeCamera{}, capturer, dec)

	require.NoError(t, vm.CapturePhoto(context.Background()))

	s := vm.State()
	assert.Equal(t, NoCodeFoundResult(), s.Result)
	assert.Equal(t, ModePhotoCaptured, s.Mode)
	assert.Equal(t, ImageData("blank"), s.Photo)
	assert.False(t, s.CapturePending)
	dec.AssertExpectations(t)
}

func TestViewModel_PhotoWithCode(t *testing.T) {
	capturer := new(mockCapturer)
	capturer.On("Capture", mock.Anything).Return(ImageData("qr"), nil)
	dec := new(mockDecoder)
	dec.On("Decode", ImageData("qr")).Return("https://example.com", true)
	vm := newTestViewModel(t, &fakeCamera{}, capturer, dec)

	require.NoError(t, vm.CapturePhoto(context.Background()))

	assert.Equal(t, DecodedResult("https://example.com"), vm.Result())
	assert.Equal(t, ModePhotoCaptured, vm.Mode())
}

func TestViewModel_PhotoCaptureError(t *testing.T) {
	capturer := new(mockCapturer)
	capturer.On("Capture", mock.Anything).Return(nil, errors.New("disk on fire"))
	vm := newTestViewModel(t, &fakeCamera{}, capturer, nil)

	err := vm.CapturePhoto(context.Background())
	require.Error(t, err)
	s := vm.State()
	assert.Equal(t, NotScannedResult(), s.Result)
	assert.Equal(t, ModeIdle, s.Mode)
	assert.False(t, s.CapturePending)
}

func TestViewModel_RequestPhotoCaptureKeepsMode(t *testing.T) {
	cam := &fakeCamera{}
	vm := newTestViewModel(t, cam, nil, nil)
	require.NoError(t, vm.StartLiveScan(context.Background()))

	vm.RequestPhotoCapture()
	s := vm.State()
	assert.True(t, s.CapturePending)
	assert.Equal(t, ModeLiveScanning, s.Mode)

	vm.CancelPhotoCapture()
	s = vm.State()
	assert.False(t, s.CapturePending)
	assert.Equal(t, ModeLiveScanning, s.Mode)
	assert.Equal(t, NotScannedResult(), s.Result)
}

func TestViewModel_PhotoStopsLiveSession(t *testing.T) {
	cam := &fakeCamera{}
	dec := new(mockDecoder)
	dec.On("Decode", ImageData("img")).Return("", false)
	vm := newTestViewModel(t, cam, nil, dec)

	require.NoError(t, vm.StartLiveScan(context.Background()))
	h := cam.last()
	vm.OnPhotoCaptured(ImageData("img"))

	assert.Equal(t, ModePhotoCaptured, vm.Mode())
	assert.True(t, h.Released())

	h.Emit("LATE")
	assert.Never(t, func() bool { return vm.Result() != NoCodeFoundResult() }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestViewModel_StartFromPhotoClearsPhoto(t *testing.T) {
	dec := new(mockDecoder)
	dec.On("Decode", ImageData("img")).Return("CODE", true)
	vm := newTestViewModel(t, &fakeCamera{}, nil, dec)

	vm.OnPhotoCaptured(ImageData("img"))
	require.NoError(t, vm.StartLiveScan(context.Background()))

	s := vm.State()
	assert.Equal(t, ModeLiveScanning, s.Mode)
	assert.Nil(t, s.Photo)
	assert.Equal(t, DecodedResult("CODE"), s.Result)
}

func TestViewModel_ReadableWhileAcquiring(t *testing.T) {
	cam := &fakeCamera{gate: make(chan struct{}), entered: make(chan struct{})}
	vm := newTestViewModel(t, cam, nil, nil)

	started := make(chan error, 1)
	go func() { started <- vm.StartLiveScan(context.Background()) }()
	<-cam.entered

	// The camera is still being acquired; readers and other callers proceed.
	assert.Equal(t, ModeIdle, vm.Mode())
	assert.Equal(t, NotScannedResult(), vm.Result())
	require.NoError(t, vm.StartLiveScan(context.Background()))

	close(cam.gate)
	require.NoError(t, <-started)
	assert.Equal(t, ModeLiveScanning, vm.Mode())
	assert.Len(t, cam.handles, 1)

	cam.last().Emit("ABC123")
	require.Eventually(t, func() bool { return vm.Mode() == ModeIdle }, waitFor, tick)
	assert.Equal(t, DecodedResult("ABC123"), vm.Result())
}

func TestViewModel_StopWhileAcquiringAbandonsStart(t *testing.T) {
	cam := &fakeCamera{gate: make(chan struct{}), entered: make(chan struct{})}
	vm := newTestViewModel(t, cam, nil, nil)

	started := make(chan error, 1)
	go func() { started <- vm.StartLiveScan(context.Background()) }()
	<-cam.entered

	vm.StopLiveScan()
	close(cam.gate)
	require.NoError(t, <-started)

	assert.Equal(t, ModeIdle, vm.Mode())
	h := cam.last()
	require.NotNil(t, h)
	assert.True(t, h.Released())

	h.Emit("LATE")
	assert.Never(t, func() bool { return vm.Result() != NotScannedResult() }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestViewModel_PhotoWhileAcquiringAbandonsStart(t *testing.T) {
	cam := &fakeCamera{gate: make(chan struct{}), entered: make(chan struct{})}
	dec := new(mockDecoder)
	dec.On("Decode", ImageData("img")).Return("PHOTO", true)
	vm := newTestViewModel(t, cam, nil, dec)

	started := make(chan error, 1)
	go func() { started <- vm.StartLiveScan(context.Background()) }()
	<-cam.entered

	vm.OnPhotoCaptured(ImageData("img"))
	close(cam.gate)
	require.NoError(t, <-started)

	assert.Equal(t, ModePhotoCaptured, vm.Mode())
	assert.Equal(t, DecodedResult("PHOTO"), vm.Result())
	assert.True(t, cam.last().Released())
}

func TestViewModel_Subscribe(t *testing.T) {
	cam := &fakeCamera{}
	vm := newTestViewModel(t, cam, nil, nil)

	var (
		mu    sync.Mutex
		modes []Mode
	)
	cancel := vm.Subscribe(func(s State) {
		mu.Lock()
		modes = append(modes, s.Mode)
		mu.Unlock()
	})

	require.NoError(t, vm.StartLiveScan(context.Background()))
	vm.StopLiveScan()
	cancel()
	require.NoError(t, vm.StartLiveScan(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Mode{ModeLiveScanning, ModeIdle}, modes)
}

func TestViewModel_SubscribersSeeVersionOrder(t *testing.T) {
	cam := &fakeCamera{}
	vm := newTestViewModel(t, cam, nil, nil)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		versions []uint64
	)
	vm.Subscribe(func(s State) {
		mu.Lock()
		versions = append(versions, s.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = vm.StartLiveScan(ctx)
				if h := cam.last(); h != nil {
					h.Emit("CODE")
				}
				vm.StopLiveScan()
			}
		}()
	}
	wg.Wait()
	vm.StopLiveScan()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, versions)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1], "snapshot %d delivered out of order", i)
	}
}

func TestViewModel_ConcurrentStartStopKeepsOneSession(t *testing.T) {
	cam := &fakeCamera{}
	vm := newTestViewModel(t, cam, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				switch r.Intn(3) {
				case 0:
					_ = vm.StartLiveScan(ctx)
				case 1:
					vm.StopLiveScan()
				default:
					if h := cam.last(); h != nil {
						h.Emit("CODE")
					}
				}
			}
		}(int64(w))
	}
	wg.Wait()

	// Let any in-flight detection settle.
	require.Eventually(t, func() bool {
		mode := vm.Mode()
		unreleased := cam.unreleased()
		if mode == ModeLiveScanning {
			return unreleased == 1
		}
		return unreleased == 0
	}, waitFor, tick)

	mode := vm.Mode()
	assert.Contains(t, []Mode{ModeIdle, ModeLiveScanning}, mode)
	assert.LessOrEqual(t, cam.unreleased(), 1)
}
