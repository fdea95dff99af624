package utils

import "github.com/spf13/viper"

// Set the viper defaults for the liveaudio recorder.
// For use in cmd/liveaudio, through cmd/config.
func SetViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")

	viper.SetDefault("recording.samplerate", 16000)
	viper.SetDefault("recording.channels", 1)
	viper.SetDefault("recording.bitspersample", 16)
	viper.SetDefault("recording.audiosource", "default")
	viper.SetDefault("recording.wavfile", "audio.wav")
	viper.SetDefault("recording.buffersize", 2048)

	// "tone", "file" or "dummy"
	viper.SetDefault("backend", "tone")
	viper.SetDefault("tone.framems", 0)
	viper.SetDefault("tone.amplitude", 0.5)
	viper.SetDefault("file.input", "")
	viper.SetDefault("file.output", "")

	viper.SetDefault("events.queuecapacity", 64)
	viper.SetDefault("events.overflowpolicy", "block")

	// Empty disables the bridge
	viper.SetDefault("nats.url", "")
	viper.SetDefault("nats.subjectprefix", "liveaudio")

	// Empty disables the catalog
	viper.SetDefault("catalog.path", "")
}
