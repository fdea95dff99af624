package liveaudio

import "errors"

var (
	ErrInvalidOptions     = errors.New("invalid recording options")
	ErrNotInitialized     = errors.New("session not initialized")
	ErrAlreadyRecording   = errors.New("session already recording")
	ErrNotRecording       = errors.New("session not recording")
	ErrSessionExists      = errors.New("a recording session already exists")
	ErrSessionClosed      = errors.New("session closed")
	ErrUnknownEvent       = errors.New("unknown event")
	ErrPlaybackNotStarted = errors.New("playback not started")
	ErrConsumerStalled    = errors.New("recording consumer stalled")
)
