package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// DerivePublicID returns the hex SHA-256 digest of id. It is computed once,
// when the account is created.
func DerivePublicID(id ID) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
