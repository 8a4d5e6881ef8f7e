package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"time"
)

// HashPassword digests a poll owner password. Plain SHA-256 encoded as
// base64; the digest is what gets stored, never the raw password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyPassword reports whether password hashes to hash.
func VerifyPassword(password, hash string) bool {
	computed := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// VerifyAdminPassword accepts the lower-cased English name of the
// current UTC weekday. Weak on purpose: it is a rotating shared secret
// for a trusted-operator page, not an account credential.
func VerifyAdminPassword(password string) bool {
	weekday := strings.ToLower(time.Now().UTC().Weekday().String())
	return strings.ToLower(password) == weekday
}
