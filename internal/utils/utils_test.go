package utils

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAudioSource(t *testing.T) {
	cases := map[string]int{
		"":                   0,
		"default":            0,
		"Mic":                1,
		"voice_recognition":  6,
		"VoiceCommunication": 7,
		"unprocessed":        9,
		"12":                 12,
	}
	for input, expected := range cases {
		id, err := ParseAudioSource(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, id, input)
	}

	for _, input := range []string{"-1", "loudspeaker"} {
		_, err := ParseAudioSource(input)
		assert.Error(t, err, input)
	}
}

func TestConfigureLoggerToFile(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	logFile := filepath.Join(t.TempDir(), "logs", "recorder.log")
	closer, err := ConfigureLogger("DEBUG", logFile, slog.HandlerOptions{})
	require.NoError(t, err)

	slog.Debug("hello", "key", "value")
	require.NoError(t, closer.Close())

	contents, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `"msg":"hello"`)
}

func TestConfigureLoggerLevels(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	for _, level := range []string{"none", "error", "warn", " info "} {
		closer, err := ConfigureLogger(level, "", slog.HandlerOptions{})
		require.NoError(t, err, level)
		assert.NoError(t, closer.Close())
	}

	_, err := ConfigureLogger("verbose", "", slog.HandlerOptions{})
	assert.ErrorIs(t, err, ErrUnknownLogLevel)
	assert.ErrorContains(t, err, "verbose")
}

func TestSetViperDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetViperDefaults()
	assert.Equal(t, 16000, viper.GetInt("recording.samplerate"))
	assert.Equal(t, "tone", viper.GetString("backend"))
	assert.Equal(t, "block", viper.GetString("events.overflowpolicy"))
}
