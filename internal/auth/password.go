package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"
)

// Scheme names the format a stored password hash was recognised as.
type Scheme string

const (
	SchemeBcrypt    Scheme = "bcrypt"
	SchemeScrypt    Scheme = "scrypt"
	SchemeSHA256    Scheme = "sha256"
	SchemePlaintext Scheme = "plaintext"
)

// scrypt parameters of the hashes written by the previous stack.
const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// BcryptCost is the work factor for newly written hashes.
var BcryptCost = bcrypt.DefaultCost

// HashPassword returns a bcrypt hash for password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks password against a stored hash. Formats are tried
// in order: bcrypt, scrypt ("hexhash.hexsalt"), unsalted SHA-256 hex, then
// plaintext. A value recognised as a hash is never compared as plaintext.
func VerifyPassword(stored, password string) (Scheme, bool) {
	if stored == "" {
		return "", false
	}
	scheme := DetectScheme(stored)
	var ok bool
	switch scheme {
	case SchemeBcrypt:
		ok = bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	case SchemeScrypt:
		ok = verifyScrypt(stored, password)
	case SchemeSHA256:
		ok = verifySHA256(stored, password)
	default:
		ok = subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
	}
	if !ok {
		return "", false
	}
	return scheme, true
}

// DetectScheme classifies a stored password value.
func DetectScheme(stored string) Scheme {
	switch {
	case isBcrypt(stored):
		return SchemeBcrypt
	case isScrypt(stored):
		return SchemeScrypt
	case isSHA256(stored):
		return SchemeSHA256
	default:
		return SchemePlaintext
	}
}

// NeedsRehash reports whether a hash verified with scheme should be replaced.
func NeedsRehash(scheme Scheme) bool {
	return scheme != SchemeBcrypt
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

func isScrypt(stored string) bool {
	hashHex, saltHex, ok := strings.Cut(stored, ".")
	if !ok || hashHex == "" || saltHex == "" {
		return false
	}
	_, err := hex.DecodeString(hashHex)
	return err == nil
}

func isSHA256(stored string) bool {
	if len(stored) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(stored)
	return err == nil
}

func verifyScrypt(stored, password string) bool {
	hashHex, saltHex, _ := strings.Cut(stored, ".")
	want, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}
	// The salt is used in its hex text form, as it was generated.
	got, err := scrypt.Key([]byte(password), []byte(saltHex), scryptN, scryptR, scryptP, len(want))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

func verifySHA256(stored, password string) bool {
	want, err := hex.DecodeString(stored)
	if err != nil {
		return false
	}
	sum := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(sum[:], want) == 1
}
