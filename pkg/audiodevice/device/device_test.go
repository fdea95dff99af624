package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Read a stream until it closes. Returns false if it stayed open past the timeout.
func drain(stream <-chan frame.PCMFrame, timeout time.Duration) ([]frame.PCMFrame, bool) {
	frames := make([]frame.PCMFrame, 0)
	deadline := time.After(timeout)
	for {
		select {
		case f, ok := <-stream:
			if !ok {
				return frames, true
			}
			frames = append(frames, f)
		case <-deadline:
			return frames, false
		}
	}
}

func collect(t *testing.T, stream <-chan frame.PCMFrame) []frame.PCMFrame {
	t.Helper()
	frames, closed := drain(stream, 5*time.Second)
	require.True(t, closed, "stream did not close in time")
	return frames
}

func newTestTone(t *testing.T, properties audiodevice.DeviceProperties, bufferFrames int, maxFrames int) *ToneAudioSourceDevice {
	t.Helper()
	tone, err := NewToneAudioSourceDevice(ToneConfig{
		Properties:    properties,
		BufferFrames:  bufferFrames,
		FrameInterval: time.Millisecond,
		MaxFrames:     maxFrames,
	})
	require.NoError(t, err)
	return tone
}

// --------------------------------------------------------------------------------

func TestToneDeviceEmitsBoundedFrames(t *testing.T) {
	properties := audiodevice.DeviceProperties{SampleRate: 16000, NumChannels: 2}
	tone := newTestTone(t, properties, 160, 3)
	require.NoError(t, tone.Start(context.Background()))

	frames := collect(t, tone.GetStream())
	require.Len(t, frames, 3)
	for _, f := range frames {
		require.Len(t, f, 320)
		for i := 0; i < len(f); i += 2 {
			assert.Equal(t, f[i], f[i+1], "both channels carry the same tone")
		}
	}
	assert.NoError(t, tone.Err())
}

func TestToneDeviceStopsOnCancel(t *testing.T) {
	tone := newTestTone(t, audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1}, 80, 0)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, tone.Start(ctx))

	<-tone.GetStream()
	cancel()
	collect(t, tone.GetStream())
}

func TestToneDeviceCloseBeforeStart(t *testing.T) {
	tone := newTestTone(t, audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1}, 80, 0)
	tone.Close()
	assert.Empty(t, collect(t, tone.GetStream()))
	assert.Error(t, tone.Start(context.Background()))
}

func TestToneDeviceRejectsBadConfig(t *testing.T) {
	_, err := NewToneAudioSourceDevice(ToneConfig{Properties: audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1}})
	assert.ErrorIs(t, err, errToneNonPositiveBuffer)
}

func TestDummySourceClosesOnCancel(t *testing.T) {
	dummy := NewDummyAudioSourceDevice(audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, dummy.Start(ctx))
	cancel()
	assert.Empty(t, collect(t, dummy.GetStream()))
}

// --------------------------------------------------------------------------------

func writeWav(t *testing.T, path string, properties audiodevice.DeviceProperties, bitDepth int, frames []frame.PCMFrame) *FileAudioOutputDevice {
	t.Helper()
	out, err := NewFileAudioOutputDevice(path, properties.SampleRate, properties.NumChannels, bitDepth)
	require.NoError(t, err)

	stream := make(chan frame.PCMFrame)
	out.SetStream(stream)
	for _, f := range frames {
		stream <- f
	}
	close(stream)
	require.NoError(t, out.WaitForClose())
	return out
}

func TestFileDeviceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "roundtrip.wav")
	properties := audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1}

	source := make(frame.PCMFrame, 250)
	for i := range source {
		source[i] = float32(i%50)/50 - 0.5
	}
	out := writeWav(t, path, properties, 16, []frame.PCMFrame{source[:100], source[100:]})
	assert.Equal(t, 250, out.FramesWritten())
	assert.Equal(t, path, out.Path())

	in, err := NewFileAudioInputDevice(path, 100, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, properties, in.GetDeviceProperties())
	require.NoError(t, in.Start(context.Background()))

	frames := collect(t, in.GetStream())
	require.Len(t, frames, 3)
	assert.Len(t, frames[2], 50)

	replayed := make(frame.PCMFrame, 0, len(source))
	for _, f := range frames {
		replayed = append(replayed, f...)
	}
	require.Len(t, replayed, len(source))
	for i := range source {
		assert.InDelta(t, source[i], replayed[i], 1e-3)
	}
	assert.NoError(t, in.Err())
}

func TestFileOutputEightBitHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eight.wav")
	properties := audiodevice.DeviceProperties{SampleRate: 11025, NumChannels: 2}
	writeWav(t, path, properties, 8, []frame.PCMFrame{{0, 0, 0.5, -0.5}})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	decoder := wav.NewDecoder(f)
	require.True(t, decoder.IsValidFile())
	assert.EqualValues(t, 8, decoder.BitDepth)
	assert.EqualValues(t, 2, decoder.NumChans)
	assert.EqualValues(t, 11025, decoder.SampleRate)
}

func TestFileOutputRejectsBitDepth(t *testing.T) {
	_, err := NewFileAudioOutputDevice(filepath.Join(t.TempDir(), "x.wav"), 8000, 1, 24)
	assert.ErrorIs(t, err, errUnsupportedBitDepth)
}

func TestFileInputMissingFile(t *testing.T) {
	_, err := NewFileAudioInputDevice(filepath.Join(t.TempDir(), "missing.wav"), 100, 0)
	assert.Error(t, err)
}

// --------------------------------------------------------------------------------

func TestMonoStereoConversion(t *testing.T) {
	assert.Equal(t, frame.PCMFrame{0.1, 0.1, 0.2, 0.2}, monoToStereo(frame.PCMFrame{0.1, 0.2}))
	assert.InDeltaSlice(t, []float32{0.5, 0}, []float32(stereoToMono(frame.PCMFrame{1, 0, 0.5, -0.5, 0.3})), 1e-6)
}

func TestConversionDeviceDownmixes(t *testing.T) {
	tone := newTestTone(t, audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 2}, 80, 4)
	sinkProperties := audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1}
	require.True(t, NeedsFormatConversion(tone.GetDeviceProperties(), sinkProperties))

	conversion := NewAudioFormatConversionDevice(tone, sinkProperties)
	assert.Equal(t, sinkProperties, conversion.GetDeviceProperties())
	assert.Equal(t, tone.GetDeviceProperties(), conversion.GetSourceDeviceProperties())
	require.NoError(t, conversion.Start(context.Background()))

	frames := collect(t, conversion.GetStream())
	require.Len(t, frames, 4)
	for _, f := range frames {
		assert.Len(t, f, 80)
	}
}

func TestResampleHalvesSampleCount(t *testing.T) {
	resample := newResampleFunction(16000, audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1})
	total := 0
	for range 10 {
		total += len(resample(make(frame.PCMFrame, 1600)))
	}
	assert.InDelta(t, 8000, total, 500)
}

// --------------------------------------------------------------------------------

func TestFanOutCopiesInOrder(t *testing.T) {
	fanOut := NewFanOutDevice(audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1}, 0)
	first := fanOut.GetStream()
	second := fanOut.GetStream()

	source := make(chan frame.PCMFrame)
	fanOut.SetStream(source)
	go func() {
		for i := range 40 {
			source <- frame.PCMFrame{float32(i)}
		}
		close(source)
	}()

	results := make(chan []frame.PCMFrame, 2)
	go func() { frames, _ := drain(first, 5*time.Second); results <- frames }()
	go func() { frames, _ := drain(second, 5*time.Second); results <- frames }()
	for range 2 {
		frames := <-results
		require.Len(t, frames, 40)
		for i, f := range frames {
			assert.Equal(t, float32(i), f[0])
		}
	}

	closedLate := fanOut.GetStream()
	_, ok := <-closedLate
	assert.False(t, ok)
}

func TestFanOutDropsStuckSink(t *testing.T) {
	fanOut := NewFanOutDevice(audiodevice.DeviceProperties{SampleRate: 8000, NumChannels: 1}, 10*time.Millisecond)
	reader := fanOut.GetStream()
	stuck := fanOut.GetStream() // never read
	timedOut := make(chan (<-chan frame.PCMFrame), 1)
	fanOut.OnSinkTimeout(func(stream <-chan frame.PCMFrame) { timedOut <- stream })

	source := make(chan frame.PCMFrame)
	fanOut.SetStream(source)
	done := make(chan []frame.PCMFrame)
	go func() { frames, _ := drain(reader, 5*time.Second); done <- frames }()

	for i := range fanOutSinkBuffer + 4 {
		source <- frame.PCMFrame{float32(i)}
	}
	assert.Eventually(t, func() bool { return fanOut.NumSinks() == 1 }, time.Second, 5*time.Millisecond)
	select {
	case stream := <-timedOut:
		assert.True(t, stream == stuck)
	case <-time.After(time.Second):
		t.Fatal("sink timeout not reported")
	}
	close(source)

	assert.Len(t, <-done, fanOutSinkBuffer+4)
}
