// utils/roomcode.go
package utils

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	RoomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	RoomCodeLength   = 6
)

// NewRoomCode returns a random 6-character uppercase alphanumeric code. Uniqueness is the
// caller's concern.
func NewRoomCode() (string, error) {
	code, err := gonanoid.Generate(RoomCodeAlphabet, RoomCodeLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}
	return code, nil
}

// NormalizeRoomCode uppercases and trims user input so "ab12cd " finds "AB12CD".
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoomCode reports whether code has the shape NewRoomCode produces.
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(RoomCodeAlphabet, r) {
			return false
		}
	}
	return true
}
