// Package metrics records scan activity as OpenTelemetry instruments.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ericlevine/zxscan"
)

const namespace = "zxscan"

// ScanMetrics implements zxscan.Metrics.
type ScanMetrics struct {
	// Live scan metrics
	liveStarted        metric.Int64Counter
	liveStopped        metric.Int64Counter
	liveDetections     metric.Int64Counter
	captureUnavailable metric.Int64Counter

	// Photo metrics
	photoScans     metric.Int64Counter
	photoCancelled metric.Int64Counter
	decodeTime     metric.Float64Histogram
}

var _ zxscan.Metrics = (*ScanMetrics)(nil)

// NewScanMetrics creates the scan instruments on mp.
func NewScanMetrics(mp metric.MeterProvider) (*ScanMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(ScanMetrics)
	var err error

	if m.liveStarted, err = meter.Int64Counter(
		"live_sessions_started_total",
		metric.WithDescription("Total number of live scan sessions started"),
	); err != nil {
		return nil, err
	}

	if m.liveStopped, err = meter.Int64Counter(
		"live_sessions_stopped_total",
		metric.WithDescription("Total number of live scan sessions stopped without a detection"),
	); err != nil {
		return nil, err
	}

	if m.liveDetections, err = meter.Int64Counter(
		"live_detections_total",
		metric.WithDescription("Total number of codes detected by live scanning"),
	); err != nil {
		return nil, err
	}

	if m.captureUnavailable, err = meter.Int64Counter(
		"capture_unavailable_total",
		metric.WithDescription("Total number of live scans refused because no capture device was available"),
	); err != nil {
		return nil, err
	}

	if m.photoScans, err = meter.Int64Counter(
		"photo_scans_total",
		metric.WithDescription("Total number of captured photos decoded"),
	); err != nil {
		return nil, err
	}

	if m.photoCancelled, err = meter.Int64Counter(
		"photo_cancelled_total",
		metric.WithDescription("Total number of photo captures cancelled"),
	); err != nil {
		return nil, err
	}

	if m.decodeTime, err = meter.Float64Histogram(
		"photo_decode_time_seconds",
		metric.WithDescription("Time spent decoding a captured photo"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *ScanMetrics) IncLiveSessionsStarted(ctx context.Context) { m.liveStarted.Add(ctx, 1) }

func (m *ScanMetrics) IncLiveSessionsStopped(ctx context.Context) { m.liveStopped.Add(ctx, 1) }

func (m *ScanMetrics) IncLiveDetections(ctx context.Context) { m.liveDetections.Add(ctx, 1) }

func (m *ScanMetrics) IncCaptureUnavailable(ctx context.Context) {
	m.captureUnavailable.Add(ctx, 1)
}

func (m *ScanMetrics) IncPhotoScans(ctx context.Context, found bool) {
	m.photoScans.Add(ctx, 1, metric.WithAttributes(attribute.Bool("found", found)))
}

func (m *ScanMetrics) IncPhotoCancelled(ctx context.Context) { m.photoCancelled.Add(ctx, 1) }

func (m *ScanMetrics) ObserveDecodeDuration(ctx context.Context, d time.Duration) {
	m.decodeTime.Record(ctx, d.Seconds())
}

// Summarize flattens collected counters into totals keyed by instrument name,
// summing across attribute sets. Histograms report their sample count.
func Summarize(rm metricdata.ResourceMetrics) map[string]int64 {
	totals := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					totals[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					totals[m.Name] += int64(dp.Count)
				}
			}
		}
	}
	return totals
}
