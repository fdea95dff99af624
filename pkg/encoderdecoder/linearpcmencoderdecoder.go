package encoderdecoder

import (
	"encoding/binary"
	"fmt"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/frame"
)

// Uncompressed linear PCM, byte-for-byte what goes into the data chunk of a WAV file.
//
// 16 bit samples are written signed little endian,
// 8 bit samples as single unsigned bytes.
type linearPCMEncoderDecoder struct {
	bitsPerSample int
}

func (encdec linearPCMEncoderDecoder) BytesPerSample() int {
	return encdec.bitsPerSample / 8
}

func (encdec linearPCMEncoderDecoder) Encode(pcmData frame.PCMFrame) (frame.EncodedFrame, error) {
	encoded := make(frame.EncodedFrame, len(pcmData)*encdec.BytesPerSample())
	switch encdec.bitsPerSample {
	case 8:
		for i, sample := range pcmData {
			encoded[i] = byte(QuantizeSample(sample, 8))
		}
	case 16:
		for i, sample := range pcmData {
			binary.LittleEndian.PutUint16(encoded[2*i:], uint16(int16(QuantizeSample(sample, 16))))
		}
	}
	return encoded, nil
}

func (encdec linearPCMEncoderDecoder) Decode(encodedData frame.EncodedFrame) (frame.PCMFrame, error) {
	bytesPerSample := encdec.BytesPerSample()
	if len(encodedData)%bytesPerSample != 0 {
		return nil, fmt.Errorf("encoded frame of %d bytes is not a whole number of %d bit samples", len(encodedData), encdec.bitsPerSample)
	}

	decoded := make(frame.PCMFrame, len(encodedData)/bytesPerSample)
	switch encdec.bitsPerSample {
	case 8:
		for i, b := range encodedData {
			decoded[i] = DequantizeSample(int(b), 8)
		}
	case 16:
		for i := range decoded {
			v := int16(binary.LittleEndian.Uint16(encodedData[2*i:]))
			decoded[i] = DequantizeSample(int(v), 16)
		}
	}
	return decoded, nil
}
