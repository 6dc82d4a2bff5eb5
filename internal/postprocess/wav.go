package postprocess

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// EncodeWAV packages mono float samples in [-1,1] as a 16-bit PCM WAV stream.
// Samples outside the range are clipped.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, errors.New("wav: sample rate must be positive")
	}
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataLen := len(samples) * channels * bitsPerSample / 8
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	_ = binary.Write(buf, le, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, le, uint32(16))
	_ = binary.Write(buf, le, uint16(1)) // PCM
	_ = binary.Write(buf, le, uint16(channels))
	_ = binary.Write(buf, le, uint32(sampleRate))
	_ = binary.Write(buf, le, uint32(sampleRate*channels*bitsPerSample/8))
	_ = binary.Write(buf, le, uint16(channels*bitsPerSample/8))
	_ = binary.Write(buf, le, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, le, uint32(dataLen))
	for _, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		var pcm int16
		if v < 0 {
			pcm = int16(v * 0x8000)
		} else {
			pcm = int16(v * 0x7fff)
		}
		_ = binary.Write(buf, le, pcm)
	}
	return buf.Bytes(), nil
}
