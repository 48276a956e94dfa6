// Package camera provides capture devices for live scanning.
package camera

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ericlevine/zxscan"
)

// Config describes a frame directory used as a video device.
type Config struct {
	// Dir holds the frames, read in lexical file name order.
	Dir string
	// FPS is the rate at which frames are delivered. Zero or less delivers
	// as fast as frames can be decoded.
	FPS float64
	// Loop restarts from the first frame after the last one.
	Loop bool
}

var frameExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// DirCamera plays a directory of still frames as a video stream, decoding each
// frame and reporting the codes it contains. Only one handle may be open at a
// time, as with a physical device.
type DirCamera struct {
	cfg     Config
	decoder zxscan.Decoder
	logger  zerolog.Logger

	mu   sync.Mutex
	busy bool
}

var _ zxscan.Camera = (*DirCamera)(nil)

// NewDirCamera creates a camera reading frames from cfg.Dir.
func NewDirCamera(cfg Config, decoder zxscan.Decoder, logger zerolog.Logger) *DirCamera {
	return &DirCamera{
		cfg:     cfg,
		decoder: decoder,
		logger:  logger.With().Str("component", "camera").Str("dir", cfg.Dir).Logger(),
	}
}

// Acquire loads the frames and returns a handle over them. The device is
// unavailable when it is already in use, when the directory cannot be read,
// or when it holds no readable frames.
func (c *DirCamera) Acquire(ctx context.Context) (zxscan.CaptureHandle, error) {
	logger := c.logger.With().Str("method", "Acquire").Logger()

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, errors.Wrap(zxscan.ErrCaptureUnavailable, "device busy")
	}
	c.busy = true
	c.mu.Unlock()

	frames, err := c.loadFrames(ctx)
	if err != nil {
		c.free()
		return nil, errors.Wrapf(zxscan.ErrCaptureUnavailable, "open %s: %v", c.cfg.Dir, err)
	}
	if len(frames) == 0 {
		c.free()
		return nil, errors.Wrapf(zxscan.ErrCaptureUnavailable, "no frames in %s", c.cfg.Dir)
	}
	logger.Debug().Int("frames", len(frames)).Msg("device acquired")

	limit := rate.Inf
	if c.cfg.FPS > 0 {
		limit = rate.Limit(c.cfg.FPS)
	}
	hctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		camera:  c,
		frames:  frames,
		loop:    c.cfg.Loop,
		limiter: rate.NewLimiter(limit, 1),
		ctx:     hctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  c.logger,
	}, nil
}

func (c *DirCamera) free() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// loadFrames reads every frame file concurrently, keeping file name order and
// skipping files that do not parse as images.
func (c *DirCamera) loadFrames(ctx context.Context) ([]zxscan.ImageData, error) {
	if c.cfg.Dir == "" {
		return nil, errors.New("no frame directory configured")
	}
	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(c.cfg.Dir, e.Name()))
	}

	loaded := make([]zxscan.ImageData, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "read frame %s", path)
			}
			if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
				c.logger.Warn().Err(err).Str("frame", path).Msg("skipping unreadable frame")
				return nil
			}
			loaded[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	frames := loaded[:0]
	for _, f := range loaded {
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, nil
}

// Handle is an open DirCamera stream.
type Handle struct {
	camera  *DirCamera
	frames  []zxscan.ImageData
	loop    bool
	limiter *rate.Limiter
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	started  bool
	released bool
}

// Observe starts delivering the payload of every frame that holds a code.
// Only the first call has an effect, and none after Release.
func (h *Handle) Observe(onCode func(payload string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started || h.released {
		return
	}
	h.started = true
	go h.run(onCode)
}

func (h *Handle) run(onCode func(string)) {
	defer close(h.done)

	for {
		for i, frame := range h.frames {
			if err := h.limiter.Wait(h.ctx); err != nil {
				return
			}
			payload, ok := h.camera.decoder.Decode(frame)
			if !ok {
				continue
			}
			if h.ctx.Err() != nil {
				return
			}
			h.logger.Trace().Int("frame", i).Str("payload", payload).Msg("code in frame")
			onCode(payload)
		}
		if !h.loop {
			return
		}
	}
}

// Release stops the stream and frees the device. It waits for an in-flight
// onCode call to return, so it must not be called from within onCode.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	started := h.started
	h.mu.Unlock()

	h.cancel()
	if started {
		<-h.done
	}
	h.camera.free()
	h.logger.Debug().Msg("device released")
}
