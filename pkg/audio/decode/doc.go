// ABOUTME: Audio decoder package for voice packets
// ABOUTME: Provides Decoder interface and implementations for Opus and PCM
// Package decode provides voice decoders with packet loss concealment.
//
// Supports: Opus, raw 16-bit PCM
//
// Each remote speaker owns its own decoder, since Opus decoders carry
// state between packets. Conceal extrapolates audio for packets that
// never arrived (Opus PLC), or returns silence for PCM.
//
// Example:
//
//	decoder, err := decode.NewOpus(audio.VoiceFormat(audio.CodecOpus))
//	samples, err := decoder.Decode(packet)
//	filler, err := decoder.Conceal(audio.FrameSize)
package decode
