package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/encoderdecoder"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

var (
	errUnsupportedBitDepth = errors.New("only 8 and 16 bit WAV files are supported")
)

// --------------------------------------------------------------------------------
// FileAudioInputDevice

// Define an AudioSourceDevice that reads from a .WAV file and sends the samples
// as if they were being captured live.
//
// Once the whole file has been sent, the stream is closed.
type FileAudioInputDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	mu           sync.Mutex
	started      bool
	shutdownOnce sync.Once
	streamOnce   sync.Once
	done         chan struct{}
	err          error

	decoder         *wav.Decoder
	fileHandle      *os.File
	frameInterval   time.Duration
	samplesPerFrame int
	sinkStream      chan frame.PCMFrame
}

// Make a new FileAudioInputDevice from a .WAV file (on the audioFilePath).
//
// Each PCMFrame holds bufferFrames sample frames. PCMFrames are sent every frameInterval,
// or in real time (bufferFrames / sample rate) if frameInterval is zero.
func NewFileAudioInputDevice(
	audioFilePath string,
	bufferFrames int,
	frameInterval time.Duration,
) (*FileAudioInputDevice, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"file input device uuid", uuid,
	)

	if bufferFrames <= 0 {
		return nil, fmt.Errorf("non-positive buffer size %d", bufferFrames)
	}

	f, err := os.Open(audioFilePath)
	if err != nil {
		logger.Error(
			"could not open audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		logger.Error(
			"could not decode audio file",
			"audioFile", audioFilePath,
			"err", decoder.Err(),
		)
		return nil, errors.New("error while decoding audio file")
	}
	if decoder.BitDepth != 8 && decoder.BitDepth != 16 {
		f.Close()
		return nil, fmt.Errorf("%w: %s has %d bits per sample", errUnsupportedBitDepth, audioFilePath, decoder.BitDepth)
	}

	if frameInterval <= 0 {
		frameInterval = time.Duration(bufferFrames) * time.Second / time.Duration(decoder.SampleRate)
	}
	samplesPerFrame := bufferFrames * int(decoder.NumChans)

	logger.Debug(
		"loaded audio file",
		"audioFile", audioFilePath,
		"sampleRate", decoder.SampleRate,
		"channels", decoder.NumChans,
		"bitDepth", decoder.BitDepth,
		"samplesPerFrame", samplesPerFrame,
	)

	return &FileAudioInputDevice{
		logger:          logger,
		uuid:            uuid,
		done:            make(chan struct{}),
		decoder:         decoder,
		fileHandle:      f,
		frameInterval:   frameInterval,
		samplesPerFrame: samplesPerFrame,
		sinkStream:      make(chan frame.PCMFrame),
	}, nil
}

// Play the audio file loaded by this input device.
// If the context is canceled, the playback stops.
func (d *FileAudioInputDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("file input device already started")
	}
	select {
	case <-d.done:
		return errors.New("file input device closed")
	default:
	}
	d.started = true

	d.logger.Debug("playing audio")
	go d.play(ctx)
	return nil
}

func (d *FileAudioInputDevice) play(ctx context.Context) {
	defer d.closeStream()

	buf, err := d.decoder.FullPCMBuffer()
	if err != nil {
		d.logger.Error(
			"could not get full PCM buffer from audio file",
			"err", err,
		)
		d.setErr(fmt.Errorf("read pcm data: %w", err))
		return
	}
	bitDepth := int(d.decoder.BitDepth)

	ticker := time.NewTicker(d.frameInterval)
	defer ticker.Stop()
	for frameStart := 0; frameStart < len(buf.Data); frameStart += d.samplesPerFrame {
		frameEnd := min(frameStart+d.samplesPerFrame, len(buf.Data))
		pcmFrame := make(frame.PCMFrame, frameEnd-frameStart)
		for i := range pcmFrame {
			pcmFrame[i] = encoderdecoder.DequantizeSample(buf.Data[frameStart+i], bitDepth)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
		select {
		case d.sinkStream <- pcmFrame:
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
	}
	d.logger.Debug("finished playing")
}

func (d *FileAudioInputDevice) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *FileAudioInputDevice) closeStream() {
	d.streamOnce.Do(func() {
		close(d.sinkStream)
		d.fileHandle.Close()
	})
}

func (d *FileAudioInputDevice) Close() {
	d.logger.Debug("shutdown called")
	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		close(d.done)
		if !d.started {
			d.closeStream()
		}
	})
}

func (d *FileAudioInputDevice) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *FileAudioInputDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

func (d *FileAudioInputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return audiodevice.DeviceProperties{
		SampleRate:  int(d.decoder.SampleRate),
		NumChannels: int(d.decoder.NumChans),
	}
}

// --------------------------------------------------------------------------------
// FileAudioOutputDevice

// Define an AudioSinkDevice that reads from a channel and writes the result to a .WAV file.
// Note the resulting file is only valid once the input channel is closed.
type FileAudioOutputDevice struct {
	logger     *slog.Logger
	uuid       uuid.UUID
	path       string
	bitDepth   int
	encoder    *wav.Encoder
	fileHandle *os.File

	closed        chan struct{}
	err           error
	framesWritten int
}

// Create a new FileAudioOutputDevice that writes incoming PCM frames to a .WAV file at the specified path.
// bitDepth must be 8 or 16. Missing parent directories are created.
func NewFileAudioOutputDevice(
	audioFilePath string,
	sampleRate int,
	numChannels int,
	bitDepth int,
) (*FileAudioOutputDevice, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"file output device uuid", uuid,
	)

	if bitDepth != 8 && bitDepth != 16 {
		return nil, fmt.Errorf("%w: got %d", errUnsupportedBitDepth, bitDepth)
	}

	if dir := filepath.Dir(audioFilePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(audioFilePath)
	if err != nil {
		logger.Error(
			"could not create audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}

	encoder := wav.NewEncoder(f, sampleRate, bitDepth, numChannels, 1)

	logger.Debug(
		"created audio file",
		"audioFile", audioFilePath,
		"sampleRate", encoder.SampleRate,
		"channels", encoder.NumChans,
		"bitDepth", bitDepth,
	)

	return &FileAudioOutputDevice{
		logger:     logger,
		uuid:       uuid,
		path:       audioFilePath,
		bitDepth:   bitDepth,
		encoder:    encoder,
		fileHandle: f,
		closed:     make(chan struct{}),
	}, nil
}

// Path of the .WAV file being written.
func (d *FileAudioOutputDevice) Path() string {
	return d.path
}

// Wait for this device to be closed, i.e. for the .WAV file to be finalised.
// Returns the first error met while writing or finalising the file.
func (d *FileAudioOutputDevice) WaitForClose() error {
	<-d.closed
	return d.err
}

// Number of sample frames (one sample per channel) written to the file.
// Only stable once WaitForClose has returned.
func (d *FileAudioOutputDevice) FramesWritten() int {
	return d.framesWritten
}

func (d *FileAudioOutputDevice) close(writeErr error) {
	errs := []error{writeErr}
	if err := d.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("finalise wav: %w", err))
	}
	if err := d.fileHandle.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := d.fileHandle.Close(); err != nil {
		errs = append(errs, err)
	}
	d.err = errors.Join(errs...)
	close(d.closed)
}

// Set the source channel of this audio device, i.e. where data comes from.
// Raw audio data (as PCMFrames) will arrive on the given channel.
//
// When this stream is closed, the file is finalised and WaitForClose returns.
// A write error is remembered, and the remaining frames are drained so the
// upstream pipeline never blocks on this device.
func (d *FileAudioOutputDevice) SetStream(sourceChannel <-chan frame.PCMFrame) {
	go func() {
		bufFormat := &goaudio.Format{
			SampleRate:  d.encoder.SampleRate,
			NumChannels: d.encoder.NumChans,
		}
		var writeErr error
		for pcmFrame := range sourceChannel {
			if writeErr != nil {
				continue
			}
			buf := &goaudio.IntBuffer{
				Format:         bufFormat,
				Data:           make([]int, len(pcmFrame)),
				SourceBitDepth: d.bitDepth,
			}
			for i, sample := range pcmFrame {
				buf.Data[i] = encoderdecoder.QuantizeSample(sample, d.bitDepth)
			}

			if err := d.encoder.Write(buf); err != nil {
				d.logger.Error("error while writing frame to file", "err", err)
				writeErr = fmt.Errorf("write wav frame: %w", err)
				continue
			}
			d.framesWritten += len(pcmFrame) / d.encoder.NumChans
		}
		d.logger.Debug("incomingAudio stream closed", "framesWritten", d.framesWritten)
		d.close(writeErr)
	}()
}

func (d *FileAudioOutputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return audiodevice.DeviceProperties{
		SampleRate:  int(d.encoder.SampleRate),
		NumChannels: int(d.encoder.NumChans),
	}
}
