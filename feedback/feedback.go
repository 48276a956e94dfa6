// Package feedback signals successful detections to the user.
package feedback

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Bell rings the terminal bell.
type Bell struct {
	mu     sync.Mutex
	w      io.Writer
	logger zerolog.Logger
}

// NewBell creates a Bell writing to w.
func NewBell(w io.Writer, logger zerolog.Logger) *Bell {
	return &Bell{w: w, logger: logger}
}

// Notify writes BEL. Write errors are logged and otherwise ignored.
func (b *Bell) Notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := io.WriteString(b.w, "\a"); err != nil {
		b.logger.Debug().Err(err).Msg("could not ring bell")
	}
}

// Nop gives no feedback.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify() {}
