package natsbridge

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/events"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/liveaudio"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second), "embedded NATS server failed to start")
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func connect(t *testing.T, ns *server.Server) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Connect(ctx, ns.ClientURL(), newLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.True(t, client.Healthy())
	return client
}

func subscribe(t *testing.T, client *Client, subject string) *nats.Subscription {
	t.Helper()
	sub, err := client.Conn().SubscribeSync(subject)
	require.NoError(t, err)
	require.NoError(t, client.Conn().Flush())
	return sub
}

// An EventSource over a bare bus.
type busSource struct {
	bus *events.Bus
}

func (s busSource) ID() string { return "session-under-test" }

func (s busSource) Subscribe(kind events.Kind, handler events.Handler) (func(), error) {
	return s.bus.Subscribe(kind, handler), nil
}

func TestBridgeForwardsEventsWithHeaders(t *testing.T) {
	ns := startServer(t)
	publisher := connect(t, ns)
	listener := connect(t, ns)
	sub := subscribe(t, listener, "rec.>")

	bus := events.NewBus(0, events.BlockProducer)
	defer bus.Close()
	bridge, err := Attach(busSource{bus}, publisher.Conn(), "rec.", newLogger())
	require.NoError(t, err)
	assert.Equal(t, "rec.data", bridge.Subject(events.KindData))

	captured := time.Date(2024, 3, 1, 12, 0, 0, 5000, time.UTC)
	bus.PublishEvent(events.Event{Kind: events.KindData, Data: "AAAA", Timestamp: captured, Duration: 10 * time.Millisecond})
	bus.Publish(events.KindError, "capture failed", assert.AnError)
	bus.Flush()
	require.NoError(t, bridge.Detach())

	first, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	second, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	assert.Equal(t, "rec.data", first.Subject)
	assert.Equal(t, "AAAA", string(first.Data))
	assert.Equal(t, "1", first.Header.Get(HeaderSeq))
	assert.Equal(t, "session-under-test", first.Header.Get(HeaderSessionID))
	assert.Equal(t, "10ms", first.Header.Get(HeaderDuration))
	stamp, err := time.Parse(time.RFC3339Nano, first.Header.Get(HeaderTimestamp))
	require.NoError(t, err)
	assert.True(t, stamp.Equal(captured))

	assert.Equal(t, "rec.error", second.Subject)
	assert.Equal(t, "capture failed", string(second.Data))
	assert.Equal(t, "2", second.Header.Get(HeaderSeq))
	assert.Empty(t, second.Header.Get(HeaderTimestamp))
	assert.Empty(t, second.Header.Get(HeaderDuration))

	published, failed := bridge.Stats()
	assert.EqualValues(t, 2, published)
	assert.Zero(t, failed)
}

func TestBridgeStopsAfterDetach(t *testing.T) {
	ns := startServer(t)
	client := connect(t, ns)
	sub := subscribe(t, client, "rec.data")

	bus := events.NewBus(0, events.BlockProducer)
	defer bus.Close()
	bridge, err := Attach(busSource{bus}, client.Conn(), "rec", newLogger())
	require.NoError(t, err)
	require.NoError(t, bridge.Detach())

	bus.Publish(events.KindData, "late", nil)
	bus.Flush()
	_, err = sub.NextMsg(100 * time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrTimeout)
}

func TestAttachRejectsEmptyPrefix(t *testing.T) {
	bus := events.NewBus(0, events.BlockProducer)
	defer bus.Close()
	_, err := Attach(busSource{bus}, nil, " . ", newLogger())
	assert.Error(t, err)
}

func TestConnectWithoutServers(t *testing.T) {
	_, err := Connect(context.Background(), "", newLogger())
	assert.Error(t, err)
}

func TestBridgeForwardsSessionChunks(t *testing.T) {
	ns := startServer(t)
	client := connect(t, ns)
	sub := subscribe(t, client, "liveaudio.data")

	api := audioapi.NewToneAudioIODeviceAPI(audioapi.ToneAPIConfig{FrameInterval: time.Millisecond, MaxFrames: 4})
	session, err := liveaudio.NewSession(api, liveaudio.WithLogger(newLogger()))
	require.NoError(t, err)
	defer session.Close()

	bridge, err := Attach(session, client.Conn(), "liveaudio", newLogger())
	require.NoError(t, err)

	require.NoError(t, session.Init(liveaudio.Options{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
		WavFile:       filepath.Join(t.TempDir(), "bridged.wav"),
		BufferSize:    160,
	}))
	require.NoError(t, session.Start())

	for i := range 4 {
		msg, err := sub.NextMsg(2 * time.Second)
		require.NoError(t, err, "chunk %d", i)
		assert.NotEmpty(t, msg.Data)
		assert.Equal(t, session.ID(), msg.Header.Get(HeaderSessionID))
		assert.Equal(t, "10ms", msg.Header.Get(HeaderDuration))
		assert.NotEmpty(t, msg.Header.Get(HeaderTimestamp))
	}

	_, err = session.Stop(context.Background())
	require.NoError(t, err)
	require.NoError(t, bridge.Detach())
}
