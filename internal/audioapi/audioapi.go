package audioapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
)

var (
	errNoDeviceWithID    = errors.New("no device with specified ID")
	errUnsupportedFormat = errors.New("device does not support the requested format")
)

type AudioIODevice struct {
	// The ID of the device
	//
	// For inputs this is the audio source selector a session asks for,
	// e.g. 6 for a microphone tuned for voice recognition. Zero is the default input.
	ID int

	// A human-readable name for the device, if one exists.
	// Not necessary, and not canonical.
	Name string

	// The native format of this device. A zero value means the device
	// produces whatever format is requested.
	DeviceProperties audiodevice.DeviceProperties
}

func (device AudioIODevice) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "ID:          %d\n", device.ID)
	fmt.Fprintf(&sb, "Name:        %s\n", device.Name)
	fmt.Fprintf(&sb, "SampleRate:  %d\n", device.DeviceProperties.SampleRate)
	fmt.Fprintf(&sb, "NumChannels: %d\n", device.DeviceProperties.NumChannels)
	return sb.String()
}

// Define an API to interface with capture and playback devices.
// Intended to be an abstract way to:
// - Query existing devices (input and output)
// - Initialize an input/output device as an AudioSourceDevice/AudioSinkDevice respectively
//
// Every AudioIODeviceAPI can back a recording session.
type AudioIODeviceAPI interface {
	InputDevices() []AudioIODevice
	ProbeInput(request audiodevice.InputRequest) error
	InitInputDevice(request audiodevice.InputRequest) (audiodevice.AudioSourceDevice, error)

	OutputDevices() []AudioIODevice
	InitOutputDevice(properties audiodevice.DeviceProperties) (audiodevice.AudioSinkDevice, error)
}

// Find the input that would serve request among devices.
func findInput(devices []AudioIODevice, request audiodevice.InputRequest) (AudioIODevice, error) {
	for _, d := range devices {
		if d.ID == request.SourceID {
			return d, nil
		}
	}
	return AudioIODevice{}, fmt.Errorf("%w: audio source %d", errNoDeviceWithID, request.SourceID)
}

// Native format of d when serving request.
func nativeProperties(d AudioIODevice, request audiodevice.InputRequest) audiodevice.DeviceProperties {
	if d.DeviceProperties.SampleRate == 0 || d.DeviceProperties.NumChannels == 0 {
		return request.Properties
	}
	return d.DeviceProperties
}
