// ABOUTME: Voice relay wire protocol package
// ABOUTME: Defines the binary voice datagram and JSON control messages
// Package protocol implements the voice relay wire protocol.
//
// Encoded voice packets travel as binary datagrams; talking state and
// speaker positions travel as JSON control messages.
//
// Example:
//
//	data, err := protocol.VoiceDatagram{SpeakerID: 7, Payload: packet}.MarshalBinary()
//	dgram, err := protocol.ParseVoiceDatagram(data)
package protocol
