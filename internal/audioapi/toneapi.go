package audioapi

import (
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice/device"
)

// Inputs of the tone API, one per well known audio source, each at its own pitch.
var toneInputs = []struct {
	id        int
	name      string
	frequency float64
}{
	{0, "Default", 440},
	{1, "Mic", 330},
	{5, "Camcorder", 550},
	{6, "VoiceRecognition", 660},
	{7, "VoiceCommunication", 220},
	{9, "Unprocessed", 880},
}

type ToneAPIConfig struct {
	// Native format of every input. Zero means inputs produce the requested format,
	// otherwise the session converts.
	NativeProperties audiodevice.DeviceProperties

	// Passed on to every tone device, see device.ToneConfig
	FrameInterval time.Duration
	MaxFrames     int
	Amplitude     float64
}

// An API whose inputs synthesise sine tones, for running without capture hardware.
// Its only output discards everything it is given.
type ToneAudioIODeviceAPI struct {
	config ToneAPIConfig
}

func NewToneAudioIODeviceAPI(config ToneAPIConfig) *ToneAudioIODeviceAPI {
	return &ToneAudioIODeviceAPI{config: config}
}

func (api *ToneAudioIODeviceAPI) InputDevices() []AudioIODevice {
	devices := make([]AudioIODevice, 0, len(toneInputs))
	for _, input := range toneInputs {
		devices = append(devices, AudioIODevice{
			ID:               input.id,
			Name:             input.name,
			DeviceProperties: api.config.NativeProperties,
		})
	}
	return devices
}

func (api *ToneAudioIODeviceAPI) ProbeInput(request audiodevice.InputRequest) error {
	_, err := findInput(api.InputDevices(), request)
	if err != nil {
		return err
	}
	if request.BufferFrames <= 0 {
		return errUnsupportedFormat
	}
	return nil
}

func (api *ToneAudioIODeviceAPI) InitInputDevice(request audiodevice.InputRequest) (audiodevice.AudioSourceDevice, error) {
	if err := api.ProbeInput(request); err != nil {
		return nil, err
	}
	input, _ := findInput(api.InputDevices(), request)

	frequency := 0.0
	for _, t := range toneInputs {
		if t.id == input.ID {
			frequency = t.frequency
		}
	}

	return device.NewToneAudioSourceDevice(device.ToneConfig{
		Properties:    nativeProperties(input, request),
		BufferFrames:  request.BufferFrames,
		Frequency:     frequency,
		Amplitude:     api.config.Amplitude,
		FrameInterval: api.config.FrameInterval,
		MaxFrames:     api.config.MaxFrames,
	})
}

func (api *ToneAudioIODeviceAPI) OutputDevices() []AudioIODevice {
	return []AudioIODevice{
		{
			ID:   0,
			Name: "Discard",
		},
	}
}

func (api *ToneAudioIODeviceAPI) InitOutputDevice(properties audiodevice.DeviceProperties) (audiodevice.AudioSinkDevice, error) {
	return device.NewDummyAudioSinkDevice(properties), nil
}
