package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// RoomCodeLength is the length of a join code in characters.
const RoomCodeLength = 32

// GenerateRoomCode returns a random 32-character hex join code.
func GenerateRoomCode() (string, error) {
	buf := make([]byte, RoomCodeLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// GenerateTicketSecret returns the random secret stored alongside the main
// producer record when a tool ticket is issued.
func GenerateTicketSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
