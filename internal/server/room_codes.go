package server

import (
	"errors"
	"math/rand"
	"strings"
)

const (
	roomCodeLength   = 6
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// maxRoomCodeAttempts bounds retries against codes already in the store.
	maxRoomCodeAttempts = 32
)

var (
	ErrRoomCodeLength  = errors.New("INVALID_ROOM_CODE: Room code must be exactly 6 characters")
	ErrRoomCodeCharset = errors.New("INVALID_ROOM_CODE: Room code must contain only letters A-Z and digits 0-9")
)

func GenerateRoomCode(rng *rand.Rand) string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeAlphabet[rng.Intn(len(roomCodeAlphabet))]
	}
	return string(code)
}

func ValidateRoomCode(code string) error {
	if len(code) != roomCodeLength {
		return ErrRoomCodeLength
	}

	code = strings.ToUpper(code)
	for _, ch := range code {
		if !strings.ContainsRune(roomCodeAlphabet, ch) {
			return ErrRoomCodeCharset
		}
	}

	return nil
}

func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
