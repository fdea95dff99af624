package device

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
	"github.com/google/uuid"
)

const (
	defaultToneFrequency = 440.0
	defaultToneAmplitude = 0.5
)

var errToneNonPositiveBuffer = errors.New("tone device requires a positive buffer size")

// Configuration of a ToneAudioSourceDevice.
type ToneConfig struct {
	Properties audiodevice.DeviceProperties

	// Number of sample frames per emitted PCMFrame
	BufferFrames int

	// Sine frequency in Hz, defaults to 440Hz
	Frequency float64

	// Peak amplitude in (0, 1], defaults to 0.5
	Amplitude float64

	// Time between emitted PCMFrames.
	// Zero means real time, i.e. BufferFrames / SampleRate.
	FrameInterval time.Duration

	// Stop after this many PCMFrames. Zero means never stop on its own.
	MaxFrames int
}

// An AudioSourceDevice that synthesises a sine tone.
//
// Stands in for a microphone when no capture hardware is available,
// and gives tests a deterministic source of audio.
type ToneAudioSourceDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID
	config ToneConfig

	mu           sync.Mutex
	started      bool
	shutdownOnce sync.Once
	streamOnce   sync.Once
	done         chan struct{}
	sinkStream   chan frame.PCMFrame
}

func NewToneAudioSourceDevice(config ToneConfig) (*ToneAudioSourceDevice, error) {
	if config.BufferFrames <= 0 {
		return nil, errToneNonPositiveBuffer
	}
	if config.Properties.SampleRate <= 0 || config.Properties.NumChannels <= 0 {
		return nil, errors.New("tone device requires a positive sample rate and channel count")
	}
	if config.Frequency <= 0 {
		config.Frequency = defaultToneFrequency
	}
	if config.Amplitude <= 0 || config.Amplitude > 1 {
		config.Amplitude = defaultToneAmplitude
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = time.Duration(config.BufferFrames) * time.Second / time.Duration(config.Properties.SampleRate)
	}

	uuid := uuid.New()
	logger := slog.Default().With(
		"tone input device uuid", uuid,
	)
	logger.Debug(
		"created tone device",
		"properties", config.Properties,
		"bufferFrames", config.BufferFrames,
		"frequency", config.Frequency,
		"frameInterval", config.FrameInterval,
	)

	return &ToneAudioSourceDevice{
		logger:     logger,
		uuid:       uuid,
		config:     config,
		done:       make(chan struct{}),
		sinkStream: make(chan frame.PCMFrame),
	}, nil
}

func (d *ToneAudioSourceDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("tone device already started")
	}
	select {
	case <-d.done:
		return errors.New("tone device closed")
	default:
	}
	d.started = true

	go d.produce(ctx)
	return nil
}

func (d *ToneAudioSourceDevice) produce(ctx context.Context) {
	defer d.closeStream()

	numChannels := d.config.Properties.NumChannels
	angularStep := 2 * math.Pi * d.config.Frequency / float64(d.config.Properties.SampleRate)
	var sampleIndex int

	ticker := time.NewTicker(d.config.FrameInterval)
	defer ticker.Stop()
	for emitted := 0; d.config.MaxFrames == 0 || emitted < d.config.MaxFrames; emitted += 1 {
		pcmFrame := make(frame.PCMFrame, d.config.BufferFrames*numChannels)
		for i := 0; i < d.config.BufferFrames; i += 1 {
			v := float32(d.config.Amplitude * math.Sin(angularStep*float64(sampleIndex)))
			for c := 0; c < numChannels; c += 1 {
				pcmFrame[i*numChannels+c] = v
			}
			sampleIndex += 1
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}

		select {
		case d.sinkStream <- pcmFrame:
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
	}
	d.logger.Debug("tone device reached frame limit", "maxFrames", d.config.MaxFrames)
}

func (d *ToneAudioSourceDevice) closeStream() {
	d.streamOnce.Do(func() {
		close(d.sinkStream)
	})
}

func (d *ToneAudioSourceDevice) Close() {
	d.shutdownOnce.Do(func() {
		d.logger.Debug("shutdown called")
		d.mu.Lock()
		defer d.mu.Unlock()
		close(d.done)
		if !d.started {
			d.closeStream()
		}
	})
}

func (d *ToneAudioSourceDevice) Err() error {
	return nil
}

func (d *ToneAudioSourceDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

func (d *ToneAudioSourceDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.config.Properties
}
