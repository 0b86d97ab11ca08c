// ABOUTME: Realtime voice chat audio engine package
// ABOUTME: Capture, playback and the talking-state orchestrator
// Package voicechat implements a realtime voice chat audio engine.
//
// Capture reads the microphone, cuts it into 20 ms frames at 16 kHz and
// encodes them. Playback decodes packets from remote speakers into
// per-speaker jitter buffers, conceals lost packets, positions each speaker
// in 3D relative to the listener and mixes everything into a stereo
// output. Manager ties the two together behind a talking on/off switch and
// a send callback owned by the transport.
//
// Device callbacks run on threads owned by the audio backend. Capture and
// Playback each guard their state with one mutex and never hold both.
//
// Example:
//
//	m := voicechat.NewManager(voicechat.DefaultOptions())
//	err := m.Initialize(func(isTalking bool, packet []byte) {
//		// frame packet and hand it to the network
//	})
//	m.StartTalking()
//	m.OnReceiveVoiceData(speaker, packet, speakerPos, listenerPos, yaw)
//	m.StopTalking()
//	m.Shutdown()
package voicechat
