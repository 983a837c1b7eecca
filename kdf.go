package encpack

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the derived key length (AES-256 / ChaCha20)
	KeySize = 32

	// SaltSize is the salt length generated for new packages
	SaltSize = 16

	// MaxParallelism is the largest accepted Argon2 parallelism
	MaxParallelism = 16

	// MaxMemoryCost is the largest accepted Argon2 memory cost in KiB (4 GiB)
	MaxMemoryCost = 4 * 1024 * 1024
)

// DeriveKey derives a 32-byte key from password and salt with Argon2id.
// Identical inputs always produce identical keys; nothing is cached.
func DeriveKey(password, salt []byte, params KDFParams) ([]byte, error) {
	if len(password) == 0 {
		return nil, NewValidationError("password", nil, "password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, NewValidationError("salt", nil, "salt cannot be empty")
	}
	if err := ValidateKDFParams(params); err != nil {
		return nil, err
	}

	key := argon2.IDKey(
		password,
		salt,
		params.TimeCost,
		params.MemoryCost,
		params.Parallelism,
		KeySize,
	)
	return key, nil
}

// GenerateSalt returns SaltSize random bytes
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// PasswordKeyProvider implements KeyProvider using Argon2id
type PasswordKeyProvider struct {
	password []byte
	params   KDFParams
}

// NewPasswordKeyProvider creates a key provider bound to a password and
// cost parameters. Zero parameters are replaced by DefaultKDFParams.
func NewPasswordKeyProvider(password []byte, params KDFParams) *PasswordKeyProvider {
	if params == (KDFParams{}) {
		params = DefaultKDFParams()
	}
	return &PasswordKeyProvider{
		password: password,
		params:   params,
	}
}

// Params returns the cost parameters used by DeriveKey
func (p *PasswordKeyProvider) Params() KDFParams {
	return p.params
}

// DeriveKey derives an encryption key from the password and salt
func (p *PasswordKeyProvider) DeriveKey(salt []byte) ([]byte, error) {
	return DeriveKey(p.password, salt, p.params)
}

// GenerateSalt generates a new random salt
func (p *PasswordKeyProvider) GenerateSalt() ([]byte, error) {
	return GenerateSalt()
}

// zeroBytes overwrites key material
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
