package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/events"
	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/liveaudio"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	require.NoError(t, LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")))
	options, err := RecordingOptions()
	require.NoError(t, err)
	assert.Equal(t, 16000, options.SampleRate)
	assert.Equal(t, 1, options.Channels)
	assert.Equal(t, 16, options.BitsPerSample)
	assert.Equal(t, "audio.wav", options.WavFile)
	assert.NoError(t, options.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
recording:
  samplerate: 44100
  channels: 2
  bitspersample: 8
  audiosource: voice_recognition
  wavfile: out/take.wav
events:
  queuecapacity: 8
  overflowpolicy: drop-oldest
tone:
  framems: 5
`), 0o644))

	require.NoError(t, LoadConfig(configFile))
	options, err := RecordingOptions()
	require.NoError(t, err)
	assert.Equal(t, 44100, options.SampleRate)
	assert.Equal(t, 2, options.Channels)
	assert.Equal(t, 8, options.BitsPerSample)
	assert.Equal(t, liveaudio.AudioSourceVoiceRecognition, options.AudioSource)
	assert.Equal(t, "out/take.wav", options.WavFile)
	assert.Equal(t, 2048, options.BufferSize)

	capacity, policy, err := EventQueue()
	require.NoError(t, err)
	assert.Equal(t, 8, capacity)
	assert.Equal(t, events.DropOldest, policy)
	assert.Equal(t, 5*time.Millisecond, ToneFrameInterval())
}

func TestRecordingOptionsDecodeNumbers(t *testing.T) {
	for _, tc := range []struct {
		name, section string
		want          int
	}{
		{"integer source", "audiosource: 9\n  buffersize: 512", liveaudio.AudioSourceUnprocessed},
		{"quoted source", "audiosource: \"7\"\n  buffersize: \"512\"", liveaudio.AudioSourceVoiceCommunication},
	} {
		t.Run(tc.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()

			configFile := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(configFile, []byte("recording:\n  "+tc.section+"\n"), 0o644))
			require.NoError(t, LoadConfig(configFile))

			options, err := RecordingOptions()
			require.NoError(t, err)
			assert.Equal(t, tc.want, options.AudioSource)
			assert.Equal(t, 512, options.BufferSize)
			assert.Equal(t, 16000, options.SampleRate)
		})
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("recording:\n  audiosource: loudspeaker\nevents:\n  overflowpolicy: spill\n"), 0o644))
	require.NoError(t, LoadConfig(configFile))

	_, err := RecordingOptions()
	assert.ErrorContains(t, err, "loudspeaker")
	_, _, err = EventQueue()
	assert.Error(t, err)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("recording: [unterminated\n"), 0o644))
	assert.Error(t, LoadConfig(configFile))
}
