// Package photo provides one-shot photo capture flows.
package photo

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ericlevine/zxscan"
)

// LineReader is the input side of a prompt. *bufio.Reader implements it, and
// sharing one reader with a command loop keeps buffered input in one place.
type LineReader interface {
	ReadString(delim byte) (string, error)
}

// PromptCapturer asks for the path of an image file. An empty answer or end
// of input dismisses the capture.
type PromptCapturer struct {
	in  LineReader
	out io.Writer
	mu  sync.Mutex
}

var _ zxscan.PhotoCapturer = (*PromptCapturer)(nil)

// NewPromptCapturer creates a capturer that prompts on out and reads from in.
func NewPromptCapturer(in LineReader, out io.Writer) *PromptCapturer {
	return &PromptCapturer{in: in, out: out}
}

// Capture prompts once and returns the named file's contents.
func (p *PromptCapturer) Capture(ctx context.Context) (zxscan.ImageData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fmt.Fprint(p.out, "photo path (empty to cancel): ")
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "read photo path")
	}
	path := strings.TrimSpace(line)
	if path == "" {
		return nil, zxscan.ErrUserCancelled
	}
	return readPhoto(path)
}

// SequenceCapturer returns the given files one per capture, then reports
// cancellation once they are exhausted.
type SequenceCapturer struct {
	mu    sync.Mutex
	paths []string
}

var _ zxscan.PhotoCapturer = (*SequenceCapturer)(nil)

// NewSequenceCapturer creates a capturer over paths.
func NewSequenceCapturer(paths ...string) *SequenceCapturer {
	return &SequenceCapturer{paths: append([]string(nil), paths...)}
}

// Capture returns the next file's contents.
func (s *SequenceCapturer) Capture(ctx context.Context) (zxscan.ImageData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.paths) == 0 {
		return nil, zxscan.ErrUserCancelled
	}
	path := s.paths[0]
	s.paths = s.paths[1:]
	return readPhoto(path)
}

func readPhoto(path string) (zxscan.ImageData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read photo %s", path)
	}
	return data, nil
}
