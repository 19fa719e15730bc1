package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

const (
	hashScheme      = "argon2id"
	hashMemory      = 64 * 1024
	hashIterations  = 2
	hashParallelism = 1
	hashKeyLength   = 32
)

// MakePassword derives a stored password record using argon2id with the
// user's own identifier as salt. Two users with the same password never
// share a record, and a record made for one user never verifies under
// another. The encoding carries a scheme/version tag so future upgrades
// are detectable.
func MakePassword(userID uuid.UUID, plaintext string) string {
	salt := userID[:]
	digest := argon2.IDKey([]byte(plaintext), salt, hashIterations, hashMemory, hashParallelism, hashKeyLength)
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		hashScheme,
		argon2.Version,
		hashMemory,
		hashIterations,
		hashParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
}

// VerifyPassword re-derives the digest from the given user id and
// plaintext using the record's declared parameters and compares in
// constant time. Malformed records verify false, never panic.
func VerifyPassword(record string, userID uuid.UUID, plaintext string) bool {
	memory, iterations, parallelism, digest, ok := parsePasswordRecord(record)
	if !ok {
		return false
	}
	computed := argon2.IDKey([]byte(plaintext), userID[:], iterations, memory, parallelism, uint32(len(digest)))
	return subtle.ConstantTimeCompare(computed, digest) == 1
}

func parsePasswordRecord(record string) (memory uint32, iterations uint32, parallelism uint8, digest []byte, ok bool) {
	parts := strings.Split(record, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != hashScheme {
		return 0, 0, 0, nil, false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, false
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return 0, 0, 0, nil, false
	}
	if memory == 0 || iterations == 0 || parallelism == 0 {
		return 0, 0, 0, nil, false
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return 0, 0, 0, nil, false
	}
	return memory, iterations, parallelism, digest, true
}
