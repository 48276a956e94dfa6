package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ericlevine/zxscan"
	"github.com/ericlevine/zxscan/photo"
)

const interactiveHelp = `commands:
  start   start live scanning
  stop    stop live scanning
  photo   capture a photo (prompts for an image path)
  status  show the current mode and result
  help    show this help
  quit    exit
`

// console serializes writes from the command loop and state subscribers.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c, format, args...)
}

func runInteractive(ctx context.Context, a *app, in io.Reader, out io.Writer) int {
	reader := bufio.NewReader(in)
	con := &console{w: out}

	vm := a.newViewModel(photo.NewPromptCapturer(reader, con), con)
	defer vm.Close()

	last := vm.State()
	var lastMu sync.Mutex
	cancel := vm.Subscribe(func(s zxscan.State) {
		lastMu.Lock()
		if s.Version <= last.Version {
			lastMu.Unlock()
			return
		}
		changed := s.Mode != last.Mode || s.Result != last.Result
		last = s
		lastMu.Unlock()
		if changed {
			con.printf("[%s] %s\n", s.Mode, s.Result)
		}
	})
	defer cancel()

	con.printf("%s", interactiveHelp)
	for {
		con.printf("> ")
		line, err := reader.ReadString('\n')
		command := strings.ToLower(strings.TrimSpace(line))
		if command != "" && !execute(ctx, vm, con, command) {
			return 0
		}
		if err != nil {
			return 0
		}
	}
}

// execute runs one command and reports whether the loop should continue.
func execute(ctx context.Context, vm *zxscan.ViewModel, con *console, command string) bool {
	switch command {
	case "start":
		if err := vm.StartLiveScan(ctx); err != nil {
			if errors.Is(err, zxscan.ErrCaptureUnavailable) {
				con.printf("camera unavailable: %v\n", err)
			} else {
				con.printf("error: %v\n", err)
			}
		}
	case "stop":
		vm.StopLiveScan()
	case "photo":
		if err := vm.CapturePhoto(ctx); err != nil {
			con.printf("error: %v\n", err)
		}
	case "status":
		s := vm.State()
		con.printf("mode: %s\nresult: %s\n", s.Mode, s.Result)
	case "help":
		con.printf("%s", interactiveHelp)
	case "quit", "exit":
		return false
	default:
		con.printf("unknown command %q, type help\n", command)
	}
	return true
}
