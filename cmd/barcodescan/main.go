// Command barcodescan scans barcodes from photos or from a directory of frames
// played back as a live camera.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/ericlevine/zxscan/internal/config"
)

const usage = `Usage: barcodescan [flags] [command] [args...]

Commands:
  photo <image-file> [image-file...]  decode each image as a captured photo
  live                                scan the --frames directory until a code is seen
  interactive                         console session (default)

Flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("barcodescan", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	timeout := fs.Duration("timeout", 0, "give up a live scan after this long (0 waits until interrupted)")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	v := config.New()
	if err := config.BindFlags(v, fs); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	path, _ := fs.GetString("config")
	cfg, err := config.Load(v, path)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	a, err := newApp(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, rest := "interactive", fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	switch command {
	case "photo":
		if len(rest) == 0 {
			fs.Usage()
			return 2
		}
		return runPhoto(ctx, a, rest, stdout, stderr)
	case "live":
		if *timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, *timeout)
			defer cancel()
		}
		return runLive(ctx, a, stdout, stderr)
	case "interactive":
		// Reads block on the terminal, so let Ctrl-C end the process directly.
		stop()
		return runInteractive(context.Background(), a, stdin, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		fs.Usage()
		return 2
	}
}
