// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines pipeline constants, Vec3 positions, and the Ring sample FIFO
// Package audio provides fundamental audio types for the voice pipeline.
//
// The whole pipeline runs at a single working format: mono, 16 kHz,
// 20 ms frames of 320 samples. Samples travel between components as
// normalized float32 values in [-1, 1] and are converted to 16-bit PCM
// only at the codec boundary.
//
// Example:
//
//	pcm := make([]int16, audio.FrameSize)
//	audio.FloatsToInt16(pcm, frame)
//
//	ring := audio.NewRing(audio.FrameSize * 4)
//	ring.Write(decoded)
//	oldest := ring.Peek(audio.FrameSize)
package audio
