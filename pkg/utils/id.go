package utils

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

// GenerateRoomID produces the opaque, URL-safe short identifier a viewer
// assigns at session creation. It is short enough to read aloud
// or embed in a QR code, which is the reason for base32 over hex: no
// ambiguous-looking characters, fixed case.
func GenerateRoomID() string {
	b := make([]byte, 5)
	rand.Read(b)
	return strings.ToLower(strings.TrimRight(base32.StdEncoding.EncodeToString(b), "="))
}

// GeneratePeerID generates a unique control-connection identifier.
func GeneratePeerID() string {
	return GenerateID("peer")
}

// GenerateFrameID generates a unique frame identifier for callers (for
// example the benchmark harness) that originate Frame Requests themselves
// rather than echoing one from a capture peer.
func GenerateFrameID() string {
	return GenerateID("frame")
}
