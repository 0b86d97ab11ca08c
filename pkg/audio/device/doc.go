// ABOUTME: Audio device package for capture and playback streams
// ABOUTME: Provides the Backend interface with malgo, oto, synthetic and external implementations
// Package device opens float32 audio streams on an audio subsystem.
//
// A Backend opens capture and playback streams. Each stream invokes its
// callback periodically on a thread owned by the backend once started.
//
// Example:
//
//	backend := device.NewMalgo()
//	defer backend.Close()
//	stream, err := backend.OpenCapture(device.Config{SampleRate: 16000, Channels: 1},
//		func(samples []float32) { /* consume */ })
//	err = stream.Start()
package device
