// ABOUTME: Audio encoder package for compressing voice frames
// ABOUTME: Provides Encoder interface and implementations for Opus and PCM
// Package encode provides voice frame encoders.
//
// Supports: Opus (VoIP profile), raw 16-bit PCM
//
// Encoders take one frame of 16-bit PCM (320 samples for 20ms at 16kHz)
// and return one packet.
//
// Example:
//
//	encoder, err := encode.NewOpus(audio.VoiceFormat(audio.CodecOpus), encode.DefaultSettings())
//	packet, err := encoder.Encode(pcm)
package encode
