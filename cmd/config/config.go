package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"reflect"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/internal/utils"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/events"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/liveaudio"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load the config file into viper, on top of the defaults.
// A missing config file is not an error, the defaults are used.
func LoadConfig(configFilePath string) error {
	utils.SetViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("no config file found", "configFilePath", configFilePath)
			return nil
		}
		slog.Error("error during config read", "err", err)
		return err
	}
	return nil
}

type fileConfig struct {
	Recording liveaudio.Options `mapstructure:"recording"`
}

// The recording options from the "recording" section, defaults filled in by viper.
// audiosource may be given by name, e.g. "voice_recognition", or by number.
func RecordingOptions() (liveaudio.Options, error) {
	var cfg fileConfig
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(audioSourceHook),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(&cfg, hooks); err != nil {
		return liveaudio.Options{}, fmt.Errorf("recording: %w", err)
	}
	return cfg.Recording, nil
}

// Resolve a named audiosource before the section is decoded into Options.
func audioSourceHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(liveaudio.Options{}) {
		return data, nil
	}
	section, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	raw, ok := section["audiosource"]
	if !ok || raw == nil {
		return data, nil
	}
	id, err := utils.ParseAudioSource(fmt.Sprint(raw))
	if err != nil {
		return nil, fmt.Errorf("audiosource: %w", err)
	}

	resolved := make(map[string]any, len(section))
	for key, value := range section {
		resolved[key] = value
	}
	resolved["audiosource"] = id
	return resolved, nil
}

// Session options from the "events" section.
func EventQueue() (int, events.OverflowPolicy, error) {
	policy, err := events.ParseOverflowPolicy(viper.GetString("events.overflowpolicy"))
	if err != nil {
		return 0, events.BlockProducer, fmt.Errorf("events.overflowpolicy: %w", err)
	}
	return viper.GetInt("events.queuecapacity"), policy, nil
}

// Interval between synthesised frames, zero for real time.
func ToneFrameInterval() time.Duration {
	return time.Duration(viper.GetInt("tone.framems")) * time.Millisecond
}
