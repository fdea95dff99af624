package device

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
)

const (
	DefaultFanOutSinkTimeout = 5 * time.Second
	fanOutSinkBuffer         = 16
)

// --------------------------------------------------------------------------------
// Fan Out Device (One to Many)

// A FanOutDevice is an AudioSinkDevice that copies its source stream onto any
// number of sink streams.
//
// Unlike other AudioSourceDevices, a call to GetStream does *not* return the
// singular output stream, but instead creates a *new* output stream unique to that call.
// Every sink sees every frame, in the order the frames arrived.
//
// A sink that does not accept a frame within the sink timeout is considered dead:
// its stream is closed and it is removed, so one stuck consumer cannot stall capture
// for everyone else. Register OnSinkTimeout to learn which sink was dropped.
//
// Call GetStream for every consumer *before* SetStream, otherwise the consumer
// may miss the first frames.
//
// Add and removing sinkStreams is concurrency safe thanks to a mutex.
type FanOutDevice struct {
	deviceProperties audiodevice.DeviceProperties
	sinkTimeout      time.Duration

	sinksMutex    sync.Mutex
	sinks         []chan frame.PCMFrame
	closed        bool
	onSinkTimeout func(<-chan frame.PCMFrame)
}

// Create a new FanOutDevice.
// The given device properties are for book-keeping only.
// A non-positive sinkTimeout selects DefaultFanOutSinkTimeout.
func NewFanOutDevice(properties audiodevice.DeviceProperties, sinkTimeout time.Duration) *FanOutDevice {
	if sinkTimeout <= 0 {
		sinkTimeout = DefaultFanOutSinkTimeout
	}
	return &FanOutDevice{
		deviceProperties: properties,
		sinkTimeout:      sinkTimeout,
		sinks:            make([]chan frame.PCMFrame, 0),
	}
}

func (d *FanOutDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.deviceProperties
}

// Set the stream of this device to copy data from.
// This method should be called only once, and once the sourceStream is closed
// then all sink streams are closed.
func (d *FanOutDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	go func() {
		for data := range sourceStream {
			d.sinksMutex.Lock()
			live := d.sinks[:0]
			for _, sink := range d.sinks {
				if d.send(sink, data) {
					live = append(live, sink)
					continue
				}
				slog.Warn("fan out sink timed out, removing", "timeout", d.sinkTimeout)
				if d.onSinkTimeout != nil {
					d.onSinkTimeout(sink)
				}
				close(sink)
			}
			d.sinks = live
			d.sinksMutex.Unlock()
		}
		// When sourceStream closes, close this device
		d.Close()
	}()
}

func (d *FanOutDevice) send(sink chan frame.PCMFrame, data frame.PCMFrame) bool {
	select {
	case sink <- data:
		return true
	default:
	}

	timer := time.NewTimer(d.sinkTimeout)
	defer timer.Stop()
	select {
	case sink <- data:
		return true
	case <-timer.C:
		return false
	}
}

// Get a new stream from this fan out device.
//
// The returned channel must consume data as it arrives. If it fails to take a frame
// within the sink timeout, it is closed. A stream requested after Close is returned already closed.
func (d *FanOutDevice) GetStream() <-chan frame.PCMFrame {
	d.sinksMutex.Lock()
	defer d.sinksMutex.Unlock()

	stream := make(chan frame.PCMFrame, fanOutSinkBuffer)
	if d.closed {
		close(stream)
		return stream
	}
	d.sinks = append(d.sinks, stream)
	return stream
}

// Call hook with the stream of every sink removed for timing out.
// The hook runs before the stream is closed, on the goroutine copying frames, so it must not block.
func (d *FanOutDevice) OnSinkTimeout(hook func(stream <-chan frame.PCMFrame)) {
	d.sinksMutex.Lock()
	defer d.sinksMutex.Unlock()
	d.onSinkTimeout = hook
}

func (d *FanOutDevice) SinkTimeout() time.Duration {
	return d.sinkTimeout
}

// Number of sinks currently attached.
func (d *FanOutDevice) NumSinks() int {
	d.sinksMutex.Lock()
	defer d.sinksMutex.Unlock()
	return len(d.sinks)
}

func (d *FanOutDevice) Close() {
	d.sinksMutex.Lock()
	defer d.sinksMutex.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, sink := range d.sinks {
		close(sink)
	}
	d.sinks = nil
}
