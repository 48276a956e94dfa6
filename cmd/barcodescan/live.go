package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ericlevine/zxscan"
)

// runLive starts a live scan and prints the first code detected. It stops the
// scan and exits 1 when ctx ends first.
func runLive(ctx context.Context, a *app, stdout, stderr io.Writer) int {
	vm := a.newViewModel(nil, stdout)
	defer vm.Close()

	detected := make(chan string, 1)
	cancel := vm.Subscribe(func(s zxscan.State) {
		if s.Mode != zxscan.ModeIdle {
			return
		}
		if payload, ok := s.Result.Payload(); ok {
			select {
			case detected <- payload:
			default:
			}
		}
	})
	defer cancel()

	if err := vm.StartLiveScan(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	select {
	case payload := <-detected:
		fmt.Fprintln(stdout, payload)
		return 0
	case <-ctx.Done():
		vm.StopLiveScan()
		fmt.Fprintln(stderr, zxscan.NoCodeFoundText)
		return 1
	}
}
