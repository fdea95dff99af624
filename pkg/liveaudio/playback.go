package liveaudio

import (
	"encoding/base64"
	"fmt"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/encoderdecoder"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
)

const playbackBuffer = 16

type playback struct {
	sink   audiodevice.AudioSinkDevice
	codec  encoderdecoder.EncoderDecoder
	stream chan frame.PCMFrame
}

// Sinks that can report when they have consumed their whole stream.
type closeWaiter interface {
	WaitForClose() error
}

// Play a chunk as delivered to data listeners, i.e. base64 encoded PCM in the
// session format, on the output device of the capture API.
//
// The output device is opened by the first call and stays open until
// StopPlayback, Init or Close.
func (s *Session) PlayChunk(chunk string) error {
	s.mu.Lock()
	closed, state, options := s.closed, s.state, s.options
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	if state == StateUninitialized {
		return ErrNotInitialized
	}

	raw, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		return fmt.Errorf("decode chunk: %w", err)
	}

	s.playbackMu.Lock()
	defer s.playbackMu.Unlock()

	if s.playback == nil {
		p, err := s.openPlayback(options)
		if err != nil {
			return err
		}
		s.playback = p
	}

	pcmFrame, err := s.playback.codec.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode chunk: %w", err)
	}
	if len(pcmFrame) == 0 {
		return nil
	}
	s.playback.stream <- pcmFrame
	return nil
}

func (s *Session) openPlayback(options Options) (*playback, error) {
	codec, err := encoderdecoder.NewEncoderDecoder(encoderdecoder.TypeForBitDepth(options.BitsPerSample))
	if err != nil {
		return nil, err
	}
	sink, err := s.api.InitOutputDevice(options.deviceProperties())
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}

	stream := make(chan frame.PCMFrame, playbackBuffer)
	sink.SetStream(stream)
	s.logger.Debug("playback started", "properties", sink.GetDeviceProperties())
	return &playback{sink: sink, codec: codec, stream: stream}, nil
}

// End playback, waiting for the output device to consume what was already sent.
func (s *Session) StopPlayback() error {
	s.playbackMu.Lock()
	defer s.playbackMu.Unlock()

	if s.playback == nil {
		return ErrPlaybackNotStarted
	}
	p := s.playback
	s.playback = nil

	close(p.stream)
	if waiter, ok := p.sink.(closeWaiter); ok {
		if err := waiter.WaitForClose(); err != nil {
			return fmt.Errorf("playback: %w", err)
		}
	}
	s.logger.Debug("playback stopped")
	return nil
}
