// ABOUTME: Byte buffer conversions for float32 device formats
// ABOUTME: Converts little-endian float32 device buffers to and from sample slices
package device

import (
	"encoding/binary"
	"math"
)

// bytesToFloat32 decodes little-endian float32 samples from src into dst
func bytesToFloat32(dst []float32, src []byte) int {
	n := len(src) / 4
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return n
}

// float32ToBytes encodes samples into dst as little-endian float32
func float32ToBytes(dst []byte, src []float32) int {
	n := len(dst) / 4
	if n > len(src) {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(src[i]))
	}
	return n
}

// scratch returns buf resized to n, reallocating only when it grows
func scratch(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}
