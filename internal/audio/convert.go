package audio

import (
	"encoding/binary"
	"math"
)

// DecodeFloat32LE decodes little-endian float32 samples from raw into dst,
// growing dst only when it is too small. It returns the filled slice.
func DecodeFloat32LE(dst []float32, raw []byte) []float32 {
	n := len(raw) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return dst
}
