package auth

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// EncodeToken renders a token identifier as a URL- and header-safe string
// suitable for an Authorization: Bearer value. The mapping is a plain
// reversible byte-to-text encoding, not a hash: the raw identifier must be
// recoverable exactly for the storage lookup.
func EncodeToken(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// DecodeToken recovers the token identifier from its text encoding.
func DecodeToken(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%w: empty token", ErrDecode)
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: token is not a valid identifier", ErrDecode)
	}
	return id, nil
}
