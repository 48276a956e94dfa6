package zxscan

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"
)

// fakeCamera hands out fakeHandles, or fails with err when set. When gate is
// set, Acquire signals entered and then waits for gate to close.
type fakeCamera struct {
	mu      sync.Mutex
	err     error
	handles []*fakeHandle

	gate    chan struct{}
	entered chan struct{}
}

func (c *fakeCamera) Acquire(ctx context.Context) (CaptureHandle, error) {
	if c.gate != nil {
		c.entered <- struct{}{}
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	h := &fakeHandle{}
	c.handles = append(c.handles, h)
	return h, nil
}

func (c *fakeCamera) last() *fakeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.handles) == 0 {
		return nil
	}
	return c.handles[len(c.handles)-1]
}

func (c *fakeCamera) unreleased() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, h := range c.handles {
		if !h.Released() {
			n++
		}
	}
	return n
}

// fakeHandle keeps invoking the observer after release so tests can check
// that late observations are ignored upstream.
type fakeHandle struct {
	mu       sync.Mutex
	onCode   func(string)
	releases int
}

func (h *fakeHandle) Observe(onCode func(string)) {
	h.mu.Lock()
	h.onCode = onCode
	h.mu.Unlock()
}

func (h *fakeHandle) Release() {
	h.mu.Lock()
	h.releases++
	h.mu.Unlock()
}

func (h *fakeHandle) Emit(payload string) {
	h.mu.Lock()
	onCode := h.onCode
	h.mu.Unlock()
	if onCode != nil {
		onCode(payload)
	}
}

func (h *fakeHandle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.releases > 0
}

type mockDecoder struct{ mock.Mock }

func (m *mockDecoder) Decode(image ImageData) (string, bool) {
	args := m.Called(image)
	return args.String(0), args.Bool(1)
}

type mockCapturer struct{ mock.Mock }

func (m *mockCapturer) Capture(ctx context.Context) (ImageData, error) {
	args := m.Called(ctx)
	image, _ := args.Get(0).(ImageData)
	return image, args.Error(1)
}

type countingFeedback struct{ n atomic.Int32 }

func (f *countingFeedback) Notify() { f.n.Add(1) }
