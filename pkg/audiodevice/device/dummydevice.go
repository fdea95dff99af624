package device

import (
	"context"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
)

// An AudioSourceDevice that will never produce a frame.
//
// A minimal example of the architecture of an AudioSourceDevice, useful in testing.
// Once started, the stream stays open until the context is canceled or Close is called.
type DummyAudioSourceDevice struct {
	properties   audiodevice.DeviceProperties
	shutdownOnce sync.Once
	done         chan struct{}
	sinkStream   chan frame.PCMFrame
}

func NewDummyAudioSourceDevice(properties audiodevice.DeviceProperties) *DummyAudioSourceDevice {
	return &DummyAudioSourceDevice{
		properties: properties,
		done:       make(chan struct{}),
		sinkStream: make(chan frame.PCMFrame),
	}
}

func (d *DummyAudioSourceDevice) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
		case <-d.done:
		}
		d.Close()
	}()
	return nil
}

func (d *DummyAudioSourceDevice) Close() {
	d.shutdownOnce.Do(func() {
		close(d.done)
		close(d.sinkStream)
	})
}

func (d *DummyAudioSourceDevice) Err() error {
	return nil
}

func (d *DummyAudioSourceDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

func (d *DummyAudioSourceDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

// An AudioSinkDevice that consumes all frames without any further actions.
//
// A minimal example of the architecture of an AudioSinkDevice, useful in testing.
// Consumed frames are counted so tests can check that data arrived.
type DummyAudioSinkDevice struct {
	properties audiodevice.DeviceProperties

	mu             sync.Mutex
	framesConsumed int
	samplesSeen    int
	drained        chan struct{}
}

func NewDummyAudioSinkDevice(properties audiodevice.DeviceProperties) *DummyAudioSinkDevice {
	return &DummyAudioSinkDevice{
		properties: properties,
		drained:    make(chan struct{}),
	}
}

func (d *DummyAudioSinkDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	go func() {
		for pcmFrame := range sourceStream {
			d.mu.Lock()
			d.framesConsumed += 1
			d.samplesSeen += len(pcmFrame)
			d.mu.Unlock()
		}
		close(d.drained)
	}()
}

// Block until the source stream given to SetStream is closed and fully consumed.
func (d *DummyAudioSinkDevice) WaitForClose() error {
	<-d.drained
	return nil
}

// The number of PCMFrames and samples consumed so far.
func (d *DummyAudioSinkDevice) Consumed() (frames int, samples int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.framesConsumed, d.samplesSeen
}

func (d *DummyAudioSinkDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}
