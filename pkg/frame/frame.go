package frame

// A PCMFrame is a buffer of interleaved float32 samples, nominally in [-1, 1].
//
// For a stereo frame the samples alternate left, right, left, right...
type PCMFrame []float32

// An EncodedFrame is a PCMFrame after quantisation to some wire format,
// e.g. 16-bit little endian linear PCM.
type EncodedFrame []byte

// Number of sample frames (one sample per channel) held in this PCMFrame.
func (f PCMFrame) NumFrames(numChannels int) int {
	if numChannels <= 0 {
		return 0
	}
	return len(f) / numChannels
}
