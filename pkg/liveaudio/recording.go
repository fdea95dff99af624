package liveaudio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/encoderdecoder"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/events"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
	"github.com/pion/webrtc/v4/pkg/media"
)

// One run of the capture pipeline, from Start to Stop.
//
//	input -> [format conversion] -> fan out -> wav file
//	                                        \-> encoder -> data events
type recording struct {
	options   Options
	startedAt time.Time
	stoppedAt time.Time

	source  audiodevice.AudioSourceDevice
	wav     *device.FileAudioOutputDevice
	fanOut  *device.FanOutDevice
	codec   encoderdecoder.EncoderDecoder
	cancel  context.CancelFunc
	haltOne sync.Once

	chunks    atomic.Int64
	audioTime atomic.Int64

	encoderDone chan struct{}
	encodeErr   error

	stallMu  sync.Mutex
	stallErr error

	// Closed once the pipeline has fully drained and err is set.
	finished chan struct{}
	err      error
	// Closed once a runtime failure, if any, has been published.
	watched chan struct{}

	stopOnce sync.Once
	// Closed once result is set.
	stopped chan struct{}
	result  stopResult
}

// Build and start the capture pipeline for options.
// On error nothing is left running.
func (s *Session) startRecording(options Options) (*recording, error) {
	codec, err := encoderdecoder.NewEncoderDecoder(encoderdecoder.TypeForBitDepth(options.BitsPerSample))
	if err != nil {
		return nil, err
	}

	source, err := s.api.InitInputDevice(options.inputRequest())
	if err != nil {
		return nil, fmt.Errorf("open input device: %w", err)
	}
	sessionProperties := options.deviceProperties()
	if device.NeedsFormatConversion(source.GetDeviceProperties(), sessionProperties) {
		s.logger.Info(
			"converting input format",
			"from", source.GetDeviceProperties(),
			"to", sessionProperties,
		)
		source = device.NewAudioFormatConversionDevice(source, sessionProperties)
	}

	wav, err := device.NewFileAudioOutputDevice(
		options.WavFile,
		options.SampleRate,
		options.Channels,
		options.BitsPerSample,
	)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("open wav file: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recording{
		options:     options,
		startedAt:   time.Now(),
		source:      source,
		wav:         wav,
		fanOut:      device.NewFanOutDevice(sessionProperties, s.sinkTimeout),
		codec:       codec,
		cancel:      cancel,
		encoderDone: make(chan struct{}),
		finished:    make(chan struct{}),
		watched:     make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	wavStream := rec.fanOut.GetStream()
	encoderStream := rec.fanOut.GetStream()
	rec.fanOut.OnSinkTimeout(func(stream <-chan frame.PCMFrame) {
		consumer := "data listeners"
		if stream == wavStream {
			consumer = "wav writer"
		}
		rec.stalled(fmt.Errorf("%w: %s blocked for more than %s", ErrConsumerStalled, consumer, rec.fanOut.SinkTimeout()))
	})

	wav.SetStream(wavStream)
	go s.encode(rec, encoderStream)
	rec.fanOut.SetStream(source.GetStream())

	go rec.await()

	if err := source.Start(ctx); err != nil {
		rec.halt()
		<-rec.finished
		return nil, fmt.Errorf("start input device: %w", err)
	}
	return rec, nil
}

// Turn every captured frame into a data event.
func (s *Session) encode(rec *recording, stream <-chan frame.PCMFrame) {
	defer close(rec.encoderDone)

	var timestamp time.Duration
	for pcmFrame := range stream {
		if len(pcmFrame) == 0 {
			continue
		}
		if rec.encodeErr != nil {
			continue
		}
		encoded, err := rec.codec.Encode(pcmFrame)
		if err != nil {
			rec.encodeErr = fmt.Errorf("encode chunk: %w", err)
			// Stop capturing, but keep draining so the wav file still finalises.
			go rec.halt()
			continue
		}

		sample := media.Sample{
			Data:      encoded,
			Timestamp: rec.startedAt.Add(timestamp),
			Duration:  rec.options.frameDuration(pcmFrame.NumFrames(rec.options.Channels)),
		}
		timestamp += sample.Duration

		s.publishChunk(sample)
		rec.chunks.Add(1)
		rec.audioTime.Add(int64(sample.Duration))
	}
}

// Deliver sample to data listeners as base64, keeping its place on the recording timeline.
func (s *Session) publishChunk(sample media.Sample) {
	s.instruments.add(s.instruments.chunksEmitted, 1)
	s.bus.PublishEvent(events.Event{
		Kind:      events.KindData,
		Data:      base64.StdEncoding.EncodeToString(sample.Data),
		Timestamp: sample.Timestamp,
		Duration:  sample.Duration,
	})
}

// Wait for every stage to drain, then collect the terminal error.
func (rec *recording) await() {
	<-rec.encoderDone
	wavErr := rec.wav.WaitForClose()
	if wavErr != nil {
		wavErr = fmt.Errorf("write %s: %w", rec.wav.Path(), wavErr)
	}
	rec.stoppedAt = time.Now()
	rec.stallMu.Lock()
	stallErr := rec.stallErr
	rec.stallMu.Unlock()
	rec.err = errors.Join(rec.source.Err(), wavErr, rec.encodeErr, stallErr)
	close(rec.finished)
}

// A consumer was cut off by the fan out, so the recording can no longer be complete.
func (rec *recording) stalled(err error) {
	rec.stallMu.Lock()
	if rec.stallErr == nil {
		rec.stallErr = err
	}
	rec.stallMu.Unlock()
	go rec.halt()
}

// Stop capturing. The pipeline drains from the source down.
func (rec *recording) halt() {
	rec.haltOne.Do(func() {
		rec.cancel()
		rec.source.Close()
	})
}

func (rec *recording) artifact(sessionID string) Artifact {
	a := Artifact{
		SessionID:     sessionID,
		Path:          rec.options.WavFile,
		SampleRate:    rec.options.SampleRate,
		Channels:      rec.options.Channels,
		BitsPerSample: rec.options.BitsPerSample,
		AudioSource:   rec.options.AudioSource,
		Chunks:        rec.chunks.Load(),
		Frames:        rec.wav.FramesWritten(),
		Duration:      time.Duration(rec.audioTime.Load()),
		StartedAt:     rec.startedAt,
		StoppedAt:     rec.stoppedAt,
	}
	if rec.err != nil {
		a.Err = rec.err.Error()
	}
	return a
}
