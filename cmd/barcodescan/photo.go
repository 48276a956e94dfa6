package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ericlevine/zxscan"
	"github.com/ericlevine/zxscan/photo"
)

// runPhoto decodes every file as a captured photo. The exit code is 1 if any
// file could not be read or held no barcode.
func runPhoto(ctx context.Context, a *app, paths []string, stdout, stderr io.Writer) int {
	vm := a.newViewModel(photo.NewSequenceCapturer(paths...), stdout)
	defer vm.Close()

	exitCode := 0
	for _, path := range paths {
		if err := vm.CapturePhoto(ctx); err != nil {
			fmt.Fprintf(stderr, "%s: error: %v\n", path, err)
			exitCode = 1
			continue
		}
		payload, ok := vm.Result().Payload()
		if !ok {
			fmt.Fprintf(stderr, "%s: %s\n", path, zxscan.NoCodeFoundText)
			exitCode = 1
			continue
		}
		if len(paths) > 1 {
			fmt.Fprintf(stdout, "%s: ", path)
		}
		fmt.Fprintln(stdout, payload)
	}
	return exitCode
}
