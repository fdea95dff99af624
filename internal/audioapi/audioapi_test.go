package audioapi

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ AudioIODeviceAPI = DummyAudioIODeviceAPI{}
	_ AudioIODeviceAPI = (*ToneAudioIODeviceAPI)(nil)
	_ AudioIODeviceAPI = (*FileAudioIODeviceAPI)(nil)
)

func request(sourceID int) audiodevice.InputRequest {
	return audiodevice.InputRequest{
		SourceID:     sourceID,
		Properties:   audiodevice.DeviceProperties{SampleRate: 16000, NumChannels: 1},
		BufferFrames: 160,
	}
}

func TestToneAPIListsWellKnownSources(t *testing.T) {
	api := NewToneAudioIODeviceAPI(ToneAPIConfig{FrameInterval: time.Millisecond, MaxFrames: 2})

	ids := make([]int, 0)
	for _, d := range api.InputDevices() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []int{0, 1, 5, 6, 7, 9}, ids)

	assert.NoError(t, api.ProbeInput(request(6)))
	assert.ErrorIs(t, api.ProbeInput(request(3)), errNoDeviceWithID)

	bad := request(0)
	bad.BufferFrames = 0
	assert.ErrorIs(t, api.ProbeInput(bad), errUnsupportedFormat)
}

func TestToneAPIProducesRequestedFormat(t *testing.T) {
	api := NewToneAudioIODeviceAPI(ToneAPIConfig{FrameInterval: time.Millisecond, MaxFrames: 2})

	source, err := api.InitInputDevice(request(1))
	require.NoError(t, err)
	assert.Equal(t, request(1).Properties, source.GetDeviceProperties())

	require.NoError(t, source.Start(context.Background()))
	frames := make([]frame.PCMFrame, 0)
	for f := range source.GetStream() {
		frames = append(frames, f)
	}
	require.Len(t, frames, 2)
	assert.Len(t, frames[0], 160)
}

func TestToneAPINativeFormat(t *testing.T) {
	native := audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 2}
	api := NewToneAudioIODeviceAPI(ToneAPIConfig{NativeProperties: native})

	source, err := api.InitInputDevice(request(0))
	require.NoError(t, err)
	defer source.Close()
	assert.Equal(t, native, source.GetDeviceProperties())
}

func TestDummyAPI(t *testing.T) {
	api := NewDummyAudioIODeviceAPI()
	require.NoError(t, api.ProbeInput(request(0)))
	assert.Error(t, api.ProbeInput(request(1)))

	source, err := api.InitInputDevice(request(0))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, source.Start(ctx))
	cancel()
	for range source.GetStream() {
		t.Fatal("dummy input produced a frame")
	}

	sink, err := api.InitOutputDevice(request(0).Properties)
	require.NoError(t, err)
	stream := make(chan frame.PCMFrame, 1)
	sink.SetStream(stream)
	stream <- frame.PCMFrame{0.1, 0.2}
	close(stream)
	require.NoError(t, sink.(*device.DummyAudioSinkDevice).WaitForClose())
}

func TestFileAPIReplaysAndWrites(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "in.wav")
	outputPath := filepath.Join(dir, "out", "played.wav")

	// Write an input file with the file output device itself.
	writer, err := device.NewFileAudioOutputDevice(inputPath, 8000, 1, 16)
	require.NoError(t, err)
	stream := make(chan frame.PCMFrame, 2)
	writer.SetStream(stream)
	stream <- make(frame.PCMFrame, 100)
	stream <- make(frame.PCMFrame, 100)
	close(stream)
	require.NoError(t, writer.WaitForClose())

	api, err := NewFileAudioIODeviceAPI(FileAPIConfig{
		InputFile:     inputPath,
		FrameInterval: time.Millisecond,
		OutputFile:    outputPath,
	})
	require.NoError(t, err)
	require.Len(t, api.InputDevices(), 1)
	assert.Equal(t, audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1}, api.InputDevices()[0].DeviceProperties)

	source, err := api.InitInputDevice(request(0))
	require.NoError(t, err)
	require.NoError(t, source.Start(context.Background()))
	samples := 0
	for f := range source.GetStream() {
		samples += len(f)
	}
	assert.Equal(t, 200, samples)
	assert.NoError(t, source.Err())

	sink, err := api.InitOutputDevice(audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1})
	require.NoError(t, err)
	out := make(chan frame.PCMFrame, 1)
	sink.SetStream(out)
	out <- make(frame.PCMFrame, 50)
	close(out)
	fileSink := sink.(*device.FileAudioOutputDevice)
	require.NoError(t, fileSink.WaitForClose())
	assert.Equal(t, 50, fileSink.FramesWritten())
	assert.FileExists(t, outputPath)
}

func TestFileAPIMissingInput(t *testing.T) {
	_, err := NewFileAudioIODeviceAPI(FileAPIConfig{InputFile: filepath.Join(t.TempDir(), "missing.wav")})
	assert.Error(t, err)
}
