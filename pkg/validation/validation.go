package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// RoomIDRegex validates the opaque room identifier format.
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// PeerIDRegex validates control-connection identifier format.
	PeerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// FrameIDRegex validates the opaque per-session frame identifier.
	FrameIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRoomID validates a room identifier carried on join-room/offer/
// answer/ice-candidate/process-frame.
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room is required")
	}
	if len(roomID) > 100 {
		return fmt.Errorf("room is too long (max 100 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room format")
	}
	return nil
}

// ValidatePeerID validates peer ID
func ValidatePeerID(peerID string) error {
	if peerID == "" {
		return fmt.Errorf("peer ID is required")
	}
	if len(peerID) > 100 {
		return fmt.Errorf("peer ID is too long (max 100 characters)")
	}
	if !PeerIDRegex.MatchString(peerID) {
		return fmt.Errorf("invalid peer ID format")
	}
	return nil
}

// ValidateFrameID validates the opaque frame identifier on a Frame Request.
func ValidateFrameID(frameID string) error {
	if frameID == "" {
		return fmt.Errorf("frame_id is required")
	}
	if len(frameID) > 200 {
		return fmt.Errorf("frame_id is too long (max 200 characters)")
	}
	if !FrameIDRegex.MatchString(frameID) {
		return fmt.Errorf("invalid frame_id format")
	}
	return nil
}

// ValidateFrameDimensions validates the width/height carried on a frame
// request. Zero or negative dimensions, or dimensions past a sane
// upper bound, are rejected before the frame ever reaches decode.
func ValidateFrameDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("width and height must be positive")
	}
	const maxDimension = 8192
	if width > maxDimension || height > maxDimension {
		return fmt.Errorf("width and height must not exceed %d", maxDimension)
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
