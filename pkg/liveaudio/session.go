// Package liveaudio is the recording session handle: configure a capture with
// Init, begin streaming audio chunks with Start, listen to them with On, and
// finish with Stop, which hands back the path of the recorded WAV file.
//
// A process holds at most one session at a time, see NewSession.
package liveaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const artifactRecordTimeout = 5 * time.Second

type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRecording
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return "?"
}

// The capture backend a session records from, e.g. a wrapper around a platform audio API.
type CaptureAPI interface {
	// Check that an input device could be opened for the request, without opening it.
	ProbeInput(request audiodevice.InputRequest) error
	InitInputDevice(request audiodevice.InputRequest) (audiodevice.AudioSourceDevice, error)
	InitOutputDevice(properties audiodevice.DeviceProperties) (audiodevice.AudioSinkDevice, error)
}

var (
	sessionGuard  sync.Mutex
	activeSession *Session
)

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// Size and overflow policy of each listener queue.
func WithEventQueue(capacity int, policy events.OverflowPolicy) Option {
	return func(s *Session) {
		s.queueCapacity = capacity
		s.overflowPolicy = policy
	}
}

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(s *Session) { s.meterProvider = provider }
}

// Report every finished recording to recorder.
func WithArtifactRecorder(recorder ArtifactRecorder) Option {
	return func(s *Session) { s.artifacts = recorder }
}

// How long the capture pipeline waits on a stalled consumer before dropping it.
func WithSinkTimeout(timeout time.Duration) Option {
	return func(s *Session) { s.sinkTimeout = timeout }
}

// A recording session handle.
//
// All methods are safe for concurrent use. Listener callbacks run on their own
// goroutines and must not call Stop or Close, since both wait for listeners
// to drain.
type Session struct {
	id     uuid.UUID
	logger *slog.Logger
	api    CaptureAPI
	bus    *events.Bus

	instruments    *instruments
	meterProvider  metric.MeterProvider
	artifacts      ArtifactRecorder
	queueCapacity  int
	overflowPolicy events.OverflowPolicy
	sinkTimeout    time.Duration

	mu      sync.Mutex
	state   State
	options Options
	current *recording
	last    *stopResult
	closed  bool

	playbackMu sync.Mutex
	playback   *playback
}

type stopResult struct {
	path string
	err  error
}

// Create the recording session of this process.
//
// Only one session may exist at a time: until the returned session is closed,
// further calls fail with ErrSessionExists.
func NewSession(api CaptureAPI, opts ...Option) (*Session, error) {
	if api == nil {
		return nil, errors.New("nil capture api")
	}

	s := &Session{
		id:             uuid.New(),
		logger:         slog.Default(),
		api:            api,
		meterProvider:  otel.GetMeterProvider(),
		queueCapacity:  events.DefaultQueueCapacity,
		overflowPolicy: events.BlockProducer,
		sinkTimeout:    device.DefaultFanOutSinkTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session uuid", s.id)

	instruments, err := newInstruments(s.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	s.instruments = instruments

	sessionGuard.Lock()
	defer sessionGuard.Unlock()
	if activeSession != nil {
		return nil, ErrSessionExists
	}

	s.bus = events.NewBus(
		s.queueCapacity,
		s.overflowPolicy,
		events.WithLogger(s.logger),
		events.WithDropHook(func(e events.Event) {
			if e.Kind == events.KindData {
				s.instruments.add(s.instruments.chunksDropped, 1)
			}
		}),
	)
	activeSession = s

	s.logger.Debug("session created", "queueCapacity", s.queueCapacity, "overflowPolicy", s.overflowPolicy)
	return s, nil
}

func (s *Session) ID() string {
	return s.id.String()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// The options given to the last successful Init, with defaults filled in.
func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// Validate and store the configuration for the next recording.
//
// Malformed options are reported here, as an error wrapping ErrInvalidOptions,
// and never through the error event. Init may be called again to reconfigure,
// except while recording.
func (s *Session) Init(options Options) error {
	if err := options.Validate(); err != nil {
		return err
	}
	resolved := options.withDefaults()
	if err := s.api.ProbeInput(resolved.inputRequest()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	switch s.state {
	case StateRecording, StateStopping:
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	if s.current != nil {
		// A recording that failed at runtime and was never stopped.
		s.mu.Unlock()
		if _, err := s.Stop(context.Background()); err != nil {
			s.logger.Debug("finalised failed recording", "err", err)
		}
		s.mu.Lock()
	}
	s.options = resolved
	s.state = StateInitialized
	s.last = nil
	s.mu.Unlock()

	// Playback follows the session format, so a reconfigure ends it.
	if err := s.StopPlayback(); err != nil && !errors.Is(err, ErrPlaybackNotStarted) {
		s.logger.Warn("error while ending playback on init", "err", err)
	}

	s.logger.Info(
		"session initialized",
		"sampleRate", resolved.SampleRate,
		"channels", resolved.Channels,
		"bitsPerSample", resolved.BitsPerSample,
		"audioSource", resolved.AudioSource,
		"wavFile", resolved.WavFile,
		"bufferSize", resolved.BufferSize,
	)
	return nil
}

// Begin recording.
//
// Misuse is reported directly: ErrNotInitialized before Init (or after a failed
// recording), ErrAlreadyRecording while a recording is running.
// Failures of the capture backend itself are delivered through the error event,
// and Start returns nil.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	switch s.state {
	case StateUninitialized, StateFailed:
		s.mu.Unlock()
		return ErrNotInitialized
	case StateRecording, StateStopping:
		s.mu.Unlock()
		return ErrAlreadyRecording
	}

	rec, err := s.startRecording(s.options)
	if err != nil {
		s.state = StateFailed
		s.last = &stopResult{err: err}
		s.mu.Unlock()
		s.publishError(err)
		return nil
	}
	s.current = rec
	s.state = StateRecording
	s.last = nil
	s.mu.Unlock()

	s.instruments.add(s.instruments.recordingsStarted, 1)
	s.logger.Info("recording started", "wavFile", rec.options.WavFile)
	go s.watch(rec)
	return nil
}

// Report a runtime failure of rec once its pipeline has drained.
func (s *Session) watch(rec *recording) {
	defer close(rec.watched)
	<-rec.finished

	if rec.err == nil {
		s.logger.Debug("capture pipeline drained")
		return
	}
	s.mu.Lock()
	if s.current == rec && s.state == StateRecording {
		s.state = StateFailed
	}
	s.mu.Unlock()
	s.publishError(rec.err)
}

// End the recording and return the path of the finished WAV file.
//
// Stop returns once the file is finalised and every data event queued before
// the stop has been delivered to the listeners. It is idempotent: calling it
// again returns the same result. Calling it before any Start returns ErrNotRecording.
// If ctx ends first, Stop returns ctx.Err() and the stop carries on in the background.
func (s *Session) Stop(ctx context.Context) (string, error) {
	s.mu.Lock()
	rec := s.current
	if rec == nil {
		last := s.last
		s.mu.Unlock()
		if last != nil {
			return last.path, last.err
		}
		return "", ErrNotRecording
	}
	if s.state == StateRecording {
		s.state = StateStopping
	}
	s.mu.Unlock()

	rec.stopOnce.Do(func() {
		go s.finishStop(rec)
	})

	select {
	case <-rec.stopped:
		return rec.result.path, rec.result.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) finishStop(rec *recording) {
	rec.halt()
	<-rec.finished
	<-rec.watched
	s.bus.Flush()

	result := stopResult{path: rec.options.WavFile}
	if rec.err != nil {
		result = stopResult{err: fmt.Errorf("recording failed: %w", rec.err)}
	}
	rec.result = result
	s.recordArtifact(rec)

	s.mu.Lock()
	if s.current == rec {
		s.current = nil
		s.last = &result
		if rec.err != nil {
			s.state = StateFailed
		} else {
			s.state = StateStopped
		}
	}
	s.mu.Unlock()

	s.logger.Info(
		"recording stopped",
		"wavFile", result.path,
		"chunks", rec.chunks.Load(),
		"frames", rec.wav.FramesWritten(),
		"err", result.err,
	)
	close(rec.stopped)
}

func (s *Session) recordArtifact(rec *recording) {
	if s.artifacts == nil {
		return
	}
	artifact := rec.artifact(s.ID())
	ctx, cancel := context.WithTimeout(context.Background(), artifactRecordTimeout)
	defer cancel()
	if err := s.artifacts.RecordArtifact(ctx, artifact); err != nil {
		s.logger.Warn("could not record artifact", "path", artifact.Path, "err", err)
	}
}

// Register callback for "data" or "error" events.
//
// Registrations accumulate, every registered callback is called for every event,
// in publish order. Data callbacks receive base64 encoded PCM chunks,
// error callbacks receive the error message.
// The returned function removes this one registration.
func (s *Session) On(event string, callback func(data string)) (func(), error) {
	kind, err := events.ParseKind(event)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if callback == nil {
		return nil, errors.New("nil callback")
	}
	return s.Subscribe(kind, func(e events.Event) { callback(e.Data) })
}

// Like On, but the handler receives the full event including its sequence number.
func (s *Session) Subscribe(kind events.Kind, handler events.Handler) (func(), error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}
	return s.bus.Subscribe(kind, handler), nil
}

func (s *Session) publishError(err error) {
	s.instruments.add(s.instruments.runtimeErrors, 1)
	s.logger.Error("recording error", "err", err)
	s.bus.Publish(events.KindError, err.Error(), err)
}


// Stop any recording and playback, deliver pending events, and release the
// process wide session slot so NewSession may be called again.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	recording := s.current != nil
	s.mu.Unlock()

	if recording {
		if _, err := s.Stop(context.Background()); err != nil {
			s.logger.Warn("recording ended with error on close", "err", err)
		}
	}
	if err := s.StopPlayback(); err != nil && !errors.Is(err, ErrPlaybackNotStarted) {
		s.logger.Warn("error while ending playback on close", "err", err)
	}
	s.bus.Close()

	sessionGuard.Lock()
	defer sessionGuard.Unlock()
	if activeSession == s {
		activeSession = nil
	}
	s.logger.Debug("session closed")
}
