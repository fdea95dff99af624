package encoderdecoder

import (
	"errors"
	"fmt"
	"math"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
)

type EncoderDecoderTypeEnum string

var (
	EncoderDecoderTypeNotImplemented EncoderDecoderTypeEnum = "not implemented"
	EncoderDecoderTypePCM8           EncoderDecoderTypeEnum = "pcm8"
	EncoderDecoderTypePCM16          EncoderDecoderTypeEnum = "pcm16"
)

var (
	errEncoderDecoderTypeNotImplemented = errors.New("specified encoderdecoder type is not implemented")
)

// Audio encoder/decoder interface.
// Used to encode raw PCM Frames to an encoded frame,
// and decode those frames back to PCM frames
type EncoderDecoder interface {
	Encode(pcmData frame.PCMFrame) (frame.EncodedFrame, error)
	Decode(encodedData frame.EncodedFrame) (frame.PCMFrame, error)

	// Bytes used by a single sample in the encoded form.
	BytesPerSample() int
}

// Map a bit depth onto the linear PCM encoder/decoder type handling it.
func TypeForBitDepth(bitsPerSample int) EncoderDecoderTypeEnum {
	switch bitsPerSample {
	case 8:
		return EncoderDecoderTypePCM8
	case 16:
		return EncoderDecoderTypePCM16
	default:
		return EncoderDecoderTypeNotImplemented
	}
}

// Create a new encoder/decoder of the given type.
// If the type does not have an implementation, a nil Encoder/Decoder
// and an error is returned.
func NewEncoderDecoder(encoderdecoderID EncoderDecoderTypeEnum) (EncoderDecoder, error) {
	switch encoderdecoderID {
	case EncoderDecoderTypePCM8:
		return linearPCMEncoderDecoder{bitsPerSample: 8}, nil
	case EncoderDecoderTypePCM16:
		return linearPCMEncoderDecoder{bitsPerSample: 16}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errEncoderDecoderTypeNotImplemented, encoderdecoderID)
	}
}

// --------------------------------------------------------------------------------

// Convert a float sample in [-1, 1] to the integer representation used by
// WAV at the given bit depth. Out of range samples are clipped.
//
// 16 bit samples are signed, 8 bit samples are unsigned with a bias of 128.
func QuantizeSample(sample float32, bitsPerSample int) int {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	switch bitsPerSample {
	case 8:
		return int(math.Round(float64(sample)*math.MaxInt8)) + 128
	default:
		return int(math.Round(float64(sample) * math.MaxInt16))
	}
}

// Inverse of QuantizeSample.
func DequantizeSample(value int, bitsPerSample int) float32 {
	switch bitsPerSample {
	case 8:
		return float32(value-128) / math.MaxInt8
	default:
		return float32(value) / math.MaxInt16
	}
}
