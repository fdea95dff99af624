package liveaudio

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/liveaudio"

type instruments struct {
	recordingsStarted metric.Int64Counter
	chunksEmitted     metric.Int64Counter
	chunksDropped     metric.Int64Counter
	runtimeErrors     metric.Int64Counter
}

func newInstruments(provider metric.MeterProvider) (*instruments, error) {
	meter := provider.Meter(meterName)

	recordingsStarted, errStarted := meter.Int64Counter(
		"liveaudio.recordings.started",
		metric.WithDescription("Recordings started"),
	)
	chunksEmitted, errEmitted := meter.Int64Counter(
		"liveaudio.chunks.emitted",
		metric.WithDescription("Audio chunks published as data events"),
	)
	chunksDropped, errDropped := meter.Int64Counter(
		"liveaudio.chunks.dropped",
		metric.WithDescription("Audio chunks discarded by a full listener queue"),
	)
	runtimeErrors, errErrors := meter.Int64Counter(
		"liveaudio.errors",
		metric.WithDescription("Runtime failures published as error events"),
	)
	if err := errors.Join(errStarted, errEmitted, errDropped, errErrors); err != nil {
		return nil, err
	}

	return &instruments{
		recordingsStarted: recordingsStarted,
		chunksEmitted:     chunksEmitted,
		chunksDropped:     chunksDropped,
		runtimeErrors:     runtimeErrors,
	}, nil
}

func (i *instruments) add(counter metric.Int64Counter, n int64) {
	counter.Add(context.Background(), n)
}
