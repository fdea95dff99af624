package audioapi

import (
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice/device"
)

// A dummy API that lists only one input and one output device:
// - a dummy input device (produces no frames, ever)
// - a dummy output device (consumes all frames and does nothing)
//
// Recording from it produces a valid, empty WAV file.
// This API is intended to be used in testing only!
type DummyAudioIODeviceAPI struct{}

func NewDummyAudioIODeviceAPI() DummyAudioIODeviceAPI {
	return DummyAudioIODeviceAPI{}
}

func (api DummyAudioIODeviceAPI) InputDevices() []AudioIODevice {
	return []AudioIODevice{
		{
			ID:   0,
			Name: "DummyInput",
		},
	}
}

func (api DummyAudioIODeviceAPI) ProbeInput(request audiodevice.InputRequest) error {
	_, err := findInput(api.InputDevices(), request)
	return err
}

func (api DummyAudioIODeviceAPI) InitInputDevice(request audiodevice.InputRequest) (audiodevice.AudioSourceDevice, error) {
	if err := api.ProbeInput(request); err != nil {
		return nil, err
	}
	return device.NewDummyAudioSourceDevice(request.Properties), nil
}

func (api DummyAudioIODeviceAPI) OutputDevices() []AudioIODevice {
	return []AudioIODevice{
		{
			ID:   0,
			Name: "DummyOutput",
		},
	}
}

func (api DummyAudioIODeviceAPI) InitOutputDevice(properties audiodevice.DeviceProperties) (audiodevice.AudioSinkDevice, error) {
	return device.NewDummyAudioSinkDevice(properties), nil
}
