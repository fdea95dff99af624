package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/cmd/config"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/internal/catalog"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/internal/natsbridge"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/internal/utils"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/liveaudio"
	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

// Select the capture backend named by the "backend" key.
func initializeCaptureAPI() (audioapi.AudioIODeviceAPI, error) {
	switch backend := viper.GetString("backend"); backend {
	case "tone":
		return audioapi.NewToneAudioIODeviceAPI(audioapi.ToneAPIConfig{
			FrameInterval: config.ToneFrameInterval(),
			Amplitude:     viper.GetFloat64("tone.amplitude"),
		}), nil
	case "file":
		return audioapi.NewFileAudioIODeviceAPI(audioapi.FileAPIConfig{
			InputFile:  viper.GetString("file.input"),
			OutputFile: viper.GetString("file.output"),
		})
	case "dummy":
		return audioapi.NewDummyAudioIODeviceAPI(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func run(duration time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := initializeCaptureAPI()
	if err != nil {
		return err
	}
	for _, d := range api.InputDevices() {
		slog.Debug("input device", "id", d.ID, "name", d.Name, "properties", d.DeviceProperties)
	}

	queueCapacity, overflowPolicy, err := config.EventQueue()
	if err != nil {
		return err
	}
	sessionOptions := []liveaudio.Option{
		liveaudio.WithLogger(slog.Default()),
		liveaudio.WithEventQueue(queueCapacity, overflowPolicy),
	}

	if path := viper.GetString("catalog.path"); path != "" {
		store, err := catalog.Open(ctx, path, slog.Default())
		if err != nil {
			return err
		}
		defer store.Close()
		sessionOptions = append(sessionOptions, liveaudio.WithArtifactRecorder(store))
	}

	session, err := liveaudio.NewSession(api, sessionOptions...)
	if err != nil {
		return err
	}
	defer session.Close()

	if url := viper.GetString("nats.url"); url != "" {
		client, err := natsbridge.Connect(ctx, url, slog.Default())
		if err != nil {
			return err
		}
		defer client.Close()
		bridge, err := natsbridge.Attach(session, client.Conn(), viper.GetString("nats.subjectprefix"), slog.Default())
		if err != nil {
			return err
		}
		defer bridge.Detach()
	}

	options, err := config.RecordingOptions()
	if err != nil {
		return err
	}
	if err := session.Init(options); err != nil {
		return err
	}

	var chunks atomic.Int64
	if _, err := session.On("data", func(string) { chunks.Add(1) }); err != nil {
		return err
	}
	if _, err := session.On("error", func(message string) {
		slog.Error("recording error event", "err", message)
		stop()
	}); err != nil {
		return err
	}

	if err := session.Start(); err != nil {
		return err
	}

	// --------------------------------------------------------------------------------

	var timeout <-chan time.Time
	if duration > 0 {
		timeout = time.After(duration)
	}
	select {
	case <-ctx.Done():
		slog.Info("interrupted")
	case <-timeout:
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	path, err := session.Stop(stopCtx)
	if err != nil {
		return err
	}
	slog.Info("recording finished", "wavFile", path, "chunks", chunks.Load())
	fmt.Println(path)
	return nil
}

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	duration := flag.Duration("duration", 0, "Stop recording after this long. Zero records until interrupted.")
	flag.Parse()

	if err := config.LoadConfig(*configFilePath); err != nil {
		slog.Error("error while loading config", "err", err)
		os.Exit(1)
	}
	logCloser, err := utils.ConfigureLogger(
		viper.GetString("loglevel"),
		viper.GetString("logfile"),
		slog.HandlerOptions{},
	)
	if err != nil {
		slog.Error("error while configuring default logger", "err", err)
		os.Exit(1)
	}

	// --------------------------------------------------------------------------------

	defer logCloser.Close()
	if err := run(*duration); err != nil {
		slog.Error("recording failed", "err", err)
		logCloser.Close()
		os.Exit(1)
	}
}
