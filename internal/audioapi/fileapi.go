package audioapi

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice/device"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const defaultPlaybackBitDepth = 16

type FileAPIConfig struct {
	// .WAV file replayed by the only input
	InputFile string
	// Time between replayed frames, zero means real time
	FrameInterval time.Duration

	// .WAV file written by the only output. Empty means the API has no output.
	OutputFile string
	// 8 or 16, defaults to 16
	OutputBitDepth int
}

// An API that "captures" by replaying a .WAV file and "plays" by writing one.
type FileAudioIODeviceAPI struct {
	logger *slog.Logger
	config FileAPIConfig
	input  AudioIODevice
}

// Create a FileAudioIODeviceAPI, reading the format of the input file up front.
func NewFileAudioIODeviceAPI(config FileAPIConfig) (*FileAudioIODeviceAPI, error) {
	logger := slog.Default().With(
		"file api uuid", uuid.New(),
	)

	f, err := os.Open(config.InputFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid wav file", config.InputFile)
	}

	if config.OutputBitDepth == 0 {
		config.OutputBitDepth = defaultPlaybackBitDepth
	}

	input := AudioIODevice{
		ID:   0,
		Name: config.InputFile,
		DeviceProperties: audiodevice.DeviceProperties{
			SampleRate:  int(decoder.SampleRate),
			NumChannels: int(decoder.NumChans),
		},
	}
	logger.Debug("file api input", "device", input.Name, "properties", input.DeviceProperties)

	return &FileAudioIODeviceAPI{
		logger: logger,
		config: config,
		input:  input,
	}, nil
}

func (api *FileAudioIODeviceAPI) InputDevices() []AudioIODevice {
	return []AudioIODevice{api.input}
}

func (api *FileAudioIODeviceAPI) ProbeInput(request audiodevice.InputRequest) error {
	_, err := findInput(api.InputDevices(), request)
	return err
}

func (api *FileAudioIODeviceAPI) InitInputDevice(request audiodevice.InputRequest) (audiodevice.AudioSourceDevice, error) {
	if err := api.ProbeInput(request); err != nil {
		return nil, err
	}
	return device.NewFileAudioInputDevice(api.config.InputFile, request.BufferFrames, api.config.FrameInterval)
}

func (api *FileAudioIODeviceAPI) OutputDevices() []AudioIODevice {
	if api.config.OutputFile == "" {
		return nil
	}
	return []AudioIODevice{
		{
			ID:   0,
			Name: api.config.OutputFile,
		},
	}
}

func (api *FileAudioIODeviceAPI) InitOutputDevice(properties audiodevice.DeviceProperties) (audiodevice.AudioSinkDevice, error) {
	if api.config.OutputFile == "" {
		return nil, errNoDeviceWithID
	}
	return device.NewFileAudioOutputDevice(
		api.config.OutputFile,
		properties.SampleRate,
		properties.NumChannels,
		api.config.OutputBitDepth,
	)
}
