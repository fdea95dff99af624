package audiodevice

import (
	"context"
	"fmt"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
)

type DeviceProperties struct {
	SampleRate  int
	NumChannels int
}

func (p DeviceProperties) String() string {
	return fmt.Sprintf("%dHz/%dch", p.SampleRate, p.NumChannels)
}

// Interface for audio source device, e.g. microphones
//
// Source devices need only define some way to get data out of the device,
// which returns a channel (stream) of PCMFrames
type AudioSourceDevice interface {
	// Get the stream of this audio device.
	//
	// Raw audio data (as PCMFrames) will arrive on the returned channel,
	// in capture order. The channel is closed once the device stops producing.
	GetStream() <-chan frame.PCMFrame

	// Begin producing frames on the stream. Production stops (and the stream is
	// closed) when ctx is canceled, when the device runs out of data, or when
	// Close is called.
	Start(ctx context.Context) error

	// Meaningfully close the AudioSourceDevice, including any cleanup of
	// memory and closing of channels.
	//
	// It is assumed that once closed, this device will transmit no more information.
	Close()

	// The terminal capture error of this device, if any.
	// Only meaningful once the stream has been closed.
	Err() error

	GetDeviceProperties() DeviceProperties
}

// Interface for audio sink devices, e.g. speakers
//
// Sink devices need only define some way to consume data,
// taken as a channel (stream) of audio.PCMFrames
type AudioSinkDevice interface {
	// Set the source stream of this audio device.
	//
	// Raw audio data (as PCMFrames) will arrive on the given channel.
	//
	// When this stream is closed, it is assumed the device will be cleaned up
	// (memory will be freed, other channels will be closed, etc)
	SetStream(sourceStream <-chan frame.PCMFrame)

	GetDeviceProperties() DeviceProperties

	// Closing an AudioSinkDevice is not an easy task, because of the pipeline
	// techniques used here. If a sink device that is actively receiving audio
	// is closed without closing the upstream source device, that source will
	// attempt to send on a closed channel, creating a panic.
	//
	// Instead, AudioSinkDevices should automatically close when the sourceStream
	// is closed, to affect a cascade of closures along a pipeline.
	//
	//
	// Close()
}

// What a recording session asks of a capture API when opening an input device.
type InputRequest struct {
	// Platform specific identifier of the input, e.g. 6 for a voice recognition tuned microphone.
	// Zero selects the default input.
	SourceID int

	// Format the session wants to record in. Devices may produce a different native
	// format, in which case the session converts.
	Properties DeviceProperties

	// Sample frames per captured PCMFrame
	BufferFrames int
}
