// Package crypto hashes and verifies root credentials for the embedded store.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Signin happens once per session, so the cost is paid once.
const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
)

// Credential is a stored password verifier: never the password itself.
type Credential struct {
	Salt []byte
	Hash []byte
}

// NewCredential derives a verifier for password with a fresh random salt.
func NewCredential(password string) (Credential, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, err
	}
	return Credential{Salt: salt, Hash: hash([]byte(password), salt)}, nil
}

// Verify reports whether password matches the credential in constant time.
func (c Credential) Verify(password string) bool {
	if len(c.Salt) == 0 || len(c.Hash) == 0 {
		return false
	}
	got := hash([]byte(password), c.Salt)
	return subtle.ConstantTimeCompare(got, c.Hash) == 1
}

func hash(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
