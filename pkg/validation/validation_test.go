package validation

import (
	"strings"
	"testing"
)

func TestValidateRoomID(t *testing.T) {
	tests := []struct {
		name    string
		roomID  string
		wantErr bool
	}{
		{"valid room id", "room-123", false},
		{"valid with underscore", "room_123", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid chars", "room 123", true},
		{"invalid chars 2", "room@123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomID(tt.roomID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRoomID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePeerID(t *testing.T) {
	tests := []struct {
		name    string
		peerID  string
		wantErr bool
	}{
		{"valid peer id", "peer_abcd1234", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid chars", "peer id", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePeerID(tt.peerID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePeerID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFrameID(t *testing.T) {
	tests := []struct {
		name    string
		frameID string
		wantErr bool
	}{
		{"valid frame id", "f1", false},
		{"empty", "", true},
		{"invalid chars", "frame id", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFrameID(tt.frameID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFrameID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFrameDimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantErr       bool
	}{
		{"valid 640x640", 640, 640, false},
		{"zero width", 0, 640, true},
		{"negative height", 640, -1, true},
		{"too large", 100000, 640, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFrameDimensions(tt.width, tt.height)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFrameDimensions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid http", "http://example.com", false},
		{"valid https", "https://example.com", false},
		{"valid ws", "ws://example.com", false},
		{"valid wss", "wss://example.com", false},
		{"empty", "", true},
		{"invalid scheme", "ftp://example.com", true},
		{"no host", "http://", true},
		{"invalid format", "not-a-url", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNonEmptyString(t *testing.T) {
	if err := ValidateNonEmptyString("  ", "field"); err == nil {
		t.Error("expected error for whitespace-only string")
	}
	if err := ValidateNonEmptyString("value", "field"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateStringLength(t *testing.T) {
	if err := ValidateStringLength("ab", 3, 10, "field"); err == nil {
		t.Error("expected error for too-short string")
	}
	if err := ValidateStringLength(strings.Repeat("a", 20), 3, 10, "field"); err == nil {
		t.Error("expected error for too-long string")
	}
	if err := ValidateStringLength("abcde", 3, 10, "field"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
