package main

import (
	"context"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ericlevine/zxscan"
	"github.com/ericlevine/zxscan/camera"
	"github.com/ericlevine/zxscan/decode"
	"github.com/ericlevine/zxscan/feedback"
	"github.com/ericlevine/zxscan/internal/config"
	"github.com/ericlevine/zxscan/internal/logging"
	"github.com/ericlevine/zxscan/internal/metrics"
)

// app holds the collaborators shared by every command.
type app struct {
	logger   zerolog.Logger
	decoder  *decode.Decoder
	camera   *camera.DirCamera
	bell     bool
	metrics  *metrics.ScanMetrics
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

func newApp(cfg *config.Config, stderr io.Writer) (*app, error) {
	logger := logging.New(stderr, cfg.Log.Level)

	formats, err := decode.ParseFormats(cfg.Decode.Formats)
	if err != nil {
		return nil, errors.Wrap(err, "decode.formats")
	}
	decoder := decode.New(decode.Options{
		TryHarder:    cfg.Decode.TryHarder,
		PureBarcode:  cfg.Decode.PureBarcode,
		AlsoInverted: cfg.Decode.AlsoInverted,
		Formats:      formats,
		CacheTTL:     cfg.Decode.CacheTTL,
		MaxEntries:   cfg.Decode.CacheMaxEntries,
	}, logger)

	cam := camera.NewDirCamera(camera.Config{
		Dir:  cfg.Camera.FramesDir,
		FPS:  cfg.Camera.FPS,
		Loop: cfg.Camera.Loop,
	}, decoder, logger)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := metrics.NewScanMetrics(provider)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}

	return &app{
		logger:   logger,
		decoder:  decoder,
		camera:   cam,
		bell:     cfg.Feedback.Bell,
		metrics:  m,
		reader:   reader,
		provider: provider,
	}, nil
}

// feedbackFor rings the bell on out, which must be the writer the command
// prints through so the bell never splits a line.
func (a *app) feedbackFor(out io.Writer) zxscan.Feedback {
	if !a.bell {
		return feedback.Nop{}
	}
	return feedback.NewBell(out, a.logger)
}

func (a *app) newViewModel(capturer zxscan.PhotoCapturer, out io.Writer) *zxscan.ViewModel {
	return zxscan.NewViewModel(a.camera, zxscan.NewPhotoScan(capturer, a.decoder),
		zxscan.WithFeedback(a.feedbackFor(out)),
		zxscan.WithMetrics(a.metrics),
		zxscan.WithLogger(a.logger),
	)
}

// shutdown logs the counters collected during the run.
func (a *app) shutdown() {
	ctx := context.Background()
	var rm metricdata.ResourceMetrics
	if err := a.reader.Collect(ctx, &rm); err != nil {
		a.logger.Debug().Err(err).Msg("could not collect metrics")
	} else {
		totals := metrics.Summarize(rm)
		names := make([]string, 0, len(totals))
		for name := range totals {
			names = append(names, name)
		}
		sort.Strings(names)

		event := a.logger.Info()
		for _, name := range names {
			event = event.Int64(name, totals[name])
		}
		event.Msg("scan summary")
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Debug().Err(err).Msg("could not shut down meter provider")
	}
}
