package liveaudio

import (
	"context"
	"time"
)

// Summary of a finished recording, handed to an ArtifactRecorder once Stop completes.
type Artifact struct {
	SessionID     string
	Path          string
	SampleRate    int
	Channels      int
	BitsPerSample int
	AudioSource   int

	// Data events published during the recording
	Chunks int64
	// Sample frames written to the WAV file
	Frames int
	// Audio time covered by the published chunks
	Duration time.Duration

	StartedAt time.Time
	StoppedAt time.Time

	// Why the recording failed, empty on success
	Err string
}

// Somewhere to keep track of finished recordings, e.g. a database.
type ArtifactRecorder interface {
	RecordArtifact(ctx context.Context, artifact Artifact) error
}
