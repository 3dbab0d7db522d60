package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const (
	idBytes     = 24
	maxIDLength = 128
)

// IDGenerator produces new session identifiers.
type IDGenerator func() (string, error)

// NewID returns 24 bytes from crypto/rand encoded as unpadded URL-safe base64.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrIDGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidID reports whether id could have been issued by a generator using the
// URL-safe base64 alphabet. It is a shape check only.
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
