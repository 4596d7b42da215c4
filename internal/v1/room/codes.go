package room

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// Room code alphabet, with visually ambiguous glyphs (I, O, 0, 1) removed.
const (
	codePrefix    = "OX-"
	codeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength    = 5
	codeRetries   = 24
	maxCodeLength = 24
)

// GenerateRoomCode returns a fresh code not matched by exists. After the
// retry budget it falls back to a timestamp-derived code, which cannot
// collide with the random form.
func GenerateRoomCode(exists func(types.RoomCodeType) bool) types.RoomCodeType {
	buf := make([]byte, codeLength)
	for attempt := 0; attempt < codeRetries; attempt++ {
		if _, err := rand.Read(buf); err != nil {
			break
		}
		var sb strings.Builder
		sb.WriteString(codePrefix)
		for _, b := range buf {
			sb.WriteByte(codeAlphabet[int(b)%len(codeAlphabet)])
		}
		code := types.RoomCodeType(sb.String())
		if !exists(code) {
			return code
		}
	}
	return types.RoomCodeType(codePrefix + strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36)))
}

// NormalizeRoomCode uppercases and trims a client-supplied code.
func NormalizeRoomCode(raw string) types.RoomCodeType {
	return types.RoomCodeType(strings.ToUpper(strings.TrimSpace(raw)))
}

// ValidRoomCode reports whether a normalized code fits the wire format:
// uppercase letters, digits, underscore or hyphen, at most 24 characters.
func ValidRoomCode(code types.RoomCodeType) bool {
	if code == "" || len(code) > maxCodeLength {
		return false
	}
	for _, r := range string(code) {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}
