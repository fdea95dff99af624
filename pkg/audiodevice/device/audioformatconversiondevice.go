package device

import (
	"context"
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
	"github.com/oov/audio/resampler"
)

const resampleQuality = 10

// Middle-man processing device to handle format mismatches
// between the format a capture device natively produces and the format requested
// by the recording session.
//
// e.g. if the capture device is stereo, but the session asked for mono,
// this device will handle the conversion.
//
// This device wraps the upstream AudioSourceDevice, so it is itself an
// AudioSourceDevice: Start, Close and Err are forwarded upstream.
type AudioFormatConversionDevice struct {
	upstream audiodevice.AudioSourceDevice

	// The stream that data *leaves on*
	sinkChannel    chan frame.PCMFrame
	sinkProperties audiodevice.DeviceProperties

	// The functions to apply when processing the source data to sink format
	formatConversionFunctions []audioFormatConversionFunction
}

// Create a new AudioFormatConversionDevice converting everything produced by upstream
// into the sink properties (the properties of the audio leaving this device).
//
// Frames are converted as soon as upstream produces them, and the sink channel closes
// once the upstream stream closes, whether or not Start was ever called.
func NewAudioFormatConversionDevice(
	upstream audiodevice.AudioSourceDevice,
	sinkProperties audiodevice.DeviceProperties,
) *AudioFormatConversionDevice {
	sourceProperties := upstream.GetDeviceProperties()
	formatConversionFunctions := make([]audioFormatConversionFunction, 0)

	if sourceProperties.NumChannels == 1 && sinkProperties.NumChannels == 2 {
		slog.Debug("adding mono to stereo")
		formatConversionFunctions = append(formatConversionFunctions, monoToStereo)
	}
	if sourceProperties.NumChannels == 2 && sinkProperties.NumChannels == 1 {
		slog.Debug("adding stereo to mono")
		formatConversionFunctions = append(formatConversionFunctions, stereoToMono)
	}
	if sourceProperties.SampleRate != sinkProperties.SampleRate {
		slog.Debug("adding resampler", "from", sourceProperties.SampleRate, "to", sinkProperties.SampleRate)
		formatConversionFunctions = append(formatConversionFunctions, newResampleFunction(sourceProperties.SampleRate, sinkProperties))
	}

	d := &AudioFormatConversionDevice{
		upstream:                  upstream,
		sinkProperties:            sinkProperties,
		sinkChannel:               make(chan frame.PCMFrame),
		formatConversionFunctions: formatConversionFunctions,
	}
	go d.convert()
	return d
}

func (d *AudioFormatConversionDevice) convert() {
	for pcmFrame := range d.upstream.GetStream() {
		for _, f := range d.formatConversionFunctions {
			pcmFrame = f(pcmFrame)
		}
		if len(pcmFrame) == 0 {
			continue
		}
		d.sinkChannel <- pcmFrame
	}
	// This goroutine dies when the upstream stream is closed.
	close(d.sinkChannel)
}

// Whether the two formats differ, i.e. whether a conversion device is needed at all.
func NeedsFormatConversion(source, sink audiodevice.DeviceProperties) bool {
	return source.SampleRate != sink.SampleRate || source.NumChannels != sink.NumChannels
}

// --------------------------------------------------------------------------------
// AudioSourceDevice Interface

// Get the source stream of this audio device.
// Converted audio data (as PCMFrames) will arrive on the returned channel.
func (d *AudioFormatConversionDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkChannel
}

func (d *AudioFormatConversionDevice) Start(ctx context.Context) error {
	return d.upstream.Start(ctx)
}

// Closing is forwarded upstream. The sink channel closes once the
// upstream stream has closed and all converted frames are sent.
func (d *AudioFormatConversionDevice) Close() {
	d.upstream.Close()
}

func (d *AudioFormatConversionDevice) Err() error {
	return d.upstream.Err()
}

// WARNING:
// GetDeviceProperties of the AudioFormatConversionDevice returns the
// device properties of the LEAVING data. i.e. the data that exits this device!
//
// If you need the properties of the data entering this device, call GetSourceDeviceProperties()
func (d *AudioFormatConversionDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.sinkProperties
}

func (d *AudioFormatConversionDevice) GetSourceDeviceProperties() audiodevice.DeviceProperties {
	return d.upstream.GetDeviceProperties()
}

// --------------------------------------------------------------------------------

// Each conversion returns a freshly allocated frame, since frames are shared
// by several consumers further down the pipeline.
type audioFormatConversionFunction func(sourceFrame frame.PCMFrame) frame.PCMFrame

func monoToStereo(sourceFrame frame.PCMFrame) frame.PCMFrame {
	buf := make(frame.PCMFrame, 2*len(sourceFrame))
	for i, v := range sourceFrame {
		buf[2*i] = v
		buf[2*i+1] = v
	}
	return buf
}

func stereoToMono(sourceFrame frame.PCMFrame) frame.PCMFrame {
	if len(sourceFrame)%2 == 1 {
		sourceFrame = sourceFrame[:len(sourceFrame)-1]
	}

	buf := make(frame.PCMFrame, len(sourceFrame)/2)
	for i := range buf {
		buf[i] = (sourceFrame[2*i] + sourceFrame[2*i+1]) / 2
	}
	return buf
}

// Resampling output size is bounded by the rate ratio, plus some headroom
// for the filter delay of the resampler.
func resampledCapacity(numSamples int, sourceRate int, sinkRate int) int {
	return numSamples*sinkRate/sourceRate + 64
}

func newResampleFunction(sourceRate int, sinkProperties audiodevice.DeviceProperties) audioFormatConversionFunction {
	if sinkProperties.NumChannels == 1 {
		r := resampler.New(1, sourceRate, sinkProperties.SampleRate, resampleQuality)
		return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
			buf := make(frame.PCMFrame, resampledCapacity(len(sourceFrame), sourceRate, sinkProperties.SampleRate))
			_, written := r.ProcessFloat32(0, sourceFrame, buf)
			return buf[:written]
		}
	}

	r := resampler.New(2, sourceRate, sinkProperties.SampleRate, resampleQuality)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		if len(sourceFrame)%2 == 1 {
			sourceFrame = sourceFrame[:len(sourceFrame)-1]
		}
		numFrames := len(sourceFrame) / 2
		capacity := resampledCapacity(numFrames, sourceRate, sinkProperties.SampleRate)

		// Decode to planar, sourceFrame is interleaved
		leftSourceBuf := make(frame.PCMFrame, numFrames)
		rightSourceBuf := make(frame.PCMFrame, numFrames)
		for i := range numFrames {
			leftSourceBuf[i] = sourceFrame[2*i]
			rightSourceBuf[i] = sourceFrame[2*i+1]
		}

		// Process both channels
		leftSinkBuf := make(frame.PCMFrame, capacity)
		rightSinkBuf := make(frame.PCMFrame, capacity)
		_, written := r.ProcessFloat32(0, leftSourceBuf, leftSinkBuf)
		_, writtenRight := r.ProcessFloat32(1, rightSourceBuf, rightSinkBuf)
		written = min(written, writtenRight)

		// Interleave again
		buf := make(frame.PCMFrame, 2*written)
		for i := range written {
			buf[2*i] = leftSinkBuf[i]
			buf[2*i+1] = rightSinkBuf[i]
		}
		return buf
	}
}
