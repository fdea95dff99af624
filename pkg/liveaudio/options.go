package liveaudio

import (
	"errors"
	"fmt"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
)

// Well known audio source identifiers, matching the input selectors of mobile platforms.
const (
	AudioSourceDefault            = 0
	AudioSourceMic                = 1
	AudioSourceCamcorder          = 5
	AudioSourceVoiceRecognition   = 6
	AudioSourceVoiceCommunication = 7
	AudioSourceUnprocessed        = 9
)

const (
	DefaultWavFile    = "audio.wav"
	DefaultBufferSize = 2048

	maxSampleRate = 384000
	maxBufferSize = 1 << 20
)

// Recording configuration, set once per Init.
type Options struct {
	// Hz, e.g. 16000 or 44100
	SampleRate int `mapstructure:"samplerate"`
	// 1 or 2
	Channels int `mapstructure:"channels"`
	// 8 or 16
	BitsPerSample int `mapstructure:"bitspersample"`

	// Optional input selector, see the AudioSource constants. Zero is the default input.
	AudioSource int `mapstructure:"audiosource"`
	// Optional destination of the captured audio. Empty means DefaultWavFile.
	WavFile string `mapstructure:"wavfile"`
	// Optional capture buffer size in sample frames. Zero means DefaultBufferSize.
	BufferSize int `mapstructure:"buffersize"`
}

// Check every field, reporting all violations at once.
// Each reported error wraps ErrInvalidOptions.
func (o Options) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidOptions}, args...)...))
	}

	if o.SampleRate <= 0 || o.SampleRate > maxSampleRate {
		invalid("sample rate must be in (0, %d] Hz, got %d", maxSampleRate, o.SampleRate)
	}
	if o.Channels != 1 && o.Channels != 2 {
		invalid("channels must be 1 or 2, got %d", o.Channels)
	}
	if o.BitsPerSample != 8 && o.BitsPerSample != 16 {
		invalid("bits per sample must be 8 or 16, got %d", o.BitsPerSample)
	}
	if o.AudioSource < 0 {
		invalid("audio source must not be negative, got %d", o.AudioSource)
	}
	if o.BufferSize < 0 || o.BufferSize > maxBufferSize {
		invalid("buffer size must be in [0, %d] frames, got %d", maxBufferSize, o.BufferSize)
	}
	return errors.Join(errs...)
}

// Copy of o with the optional fields filled in.
func (o Options) withDefaults() Options {
	if o.WavFile == "" {
		o.WavFile = DefaultWavFile
	}
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}

func (o Options) deviceProperties() audiodevice.DeviceProperties {
	return audiodevice.DeviceProperties{
		SampleRate:  o.SampleRate,
		NumChannels: o.Channels,
	}
}

func (o Options) inputRequest() audiodevice.InputRequest {
	return audiodevice.InputRequest{
		SourceID:     o.AudioSource,
		Properties:   o.deviceProperties(),
		BufferFrames: o.BufferSize,
	}
}

// Audio time covered by numFrames sample frames.
func (o Options) frameDuration(numFrames int) time.Duration {
	return time.Duration(numFrames) * time.Second / time.Duration(o.SampleRate)
}
