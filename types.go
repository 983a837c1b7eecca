package encpack

import (
	"time"

	"github.com/charmbracelet/log"
)

// CipherSuite represents the AEAD algorithm used for chunk records
type CipherSuite uint8

const (
	// CipherAuto selects AES-256-GCM
	CipherAuto CipherSuite = iota
	// CipherAES256GCM uses AES-256 with Galois/Counter Mode
	CipherAES256GCM
	// CipherChaCha20Poly1305 uses ChaCha20 stream cipher with Poly1305 MAC
	CipherChaCha20Poly1305
)

// String returns the string representation of the cipher suite
func (c CipherSuite) String() string {
	switch c {
	case CipherAuto:
		return "auto"
	case CipherAES256GCM:
		return "aes-256-gcm"
	case CipherChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return "unknown"
	}
}

// ParseCipherSuite parses the names returned by CipherSuite.String.
func ParseCipherSuite(s string) (CipherSuite, error) {
	switch s {
	case "", "auto":
		return CipherAuto, nil
	case "aes-256-gcm", "aes":
		return CipherAES256GCM, nil
	case "chacha20-poly1305", "chacha20":
		return CipherChaCha20Poly1305, nil
	default:
		return 0, NewValidationError("cipher", s, "unknown cipher suite")
	}
}

// FormatVersion identifies the on-disk container layout
type FormatVersion uint8

const (
	// FormatV1 is the original layout: AES-256-GCM only, no trailer
	FormatV1 FormatVersion = 1
	// FormatV2 adds a cipher suite byte and a finalize trailer
	FormatV2 FormatVersion = 2
)

// String returns "v1" or "v2"
func (v FormatVersion) String() string {
	switch v {
	case FormatV1:
		return "v1"
	case FormatV2:
		return "v2"
	default:
		return "unknown"
	}
}

// ParseFormatVersion parses "v1"/"v2" (or "1"/"2").
func ParseFormatVersion(s string) (FormatVersion, error) {
	switch s {
	case "", "v2", "2":
		return FormatV2, nil
	case "v1", "1":
		return FormatV1, nil
	default:
		return 0, NewValidationError("format", s, "unknown format version")
	}
}

// KDFParams contains the Argon2id cost parameters persisted in the package header
type KDFParams struct {
	TimeCost    uint32 // Number of passes (Argon2 "time")
	MemoryCost  uint32 // Memory in KiB
	Parallelism uint8  // Degree of parallelism, at most MaxParallelism
}

// DefaultKDFParams returns the parameters used when none are given
func DefaultKDFParams() KDFParams {
	return KDFParams{
		TimeCost:    2,
		MemoryCost:  100 * 1024,
		Parallelism: 8,
	}
}

// Entry is one file to be packaged
type Entry struct {
	SourcePath   string // Path on the packer's filesystem
	RelativePath string // Path inside the package, forward-slash separated
}

// Config contains configuration for a Packer
type Config struct {
	// Format selects the layout written by Build (default FormatV2)
	Format FormatVersion

	// Cipher suite for chunk records; FormatV1 only supports AES-256-GCM
	Cipher CipherSuite

	// ChunkSize is the plaintext size of each chunk (default 1 MiB)
	ChunkSize int

	// Logger receives progress messages; nil discards them
	Logger *log.Logger

	// Now returns the current time, used for creation timestamps and
	// extraction directory names
	Now func() time.Time
}

// DefaultConfig returns the configuration used by the package-level helpers
func DefaultConfig() *Config {
	return &Config{
		Format:    FormatV2,
		Cipher:    CipherAES256GCM,
		ChunkSize: DefaultChunkSize,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Format != 0 && c.Format != FormatV1 && c.Format != FormatV2 {
		return NewValidationError("format", c.Format, "unsupported format version")
	}
	if c.Cipher != CipherAuto && c.Cipher != CipherAES256GCM && c.Cipher != CipherChaCha20Poly1305 {
		return &ValidationError{
			Field:   "cipher",
			Value:   c.Cipher,
			Message: "unsupported cipher suite",
			Err:     ErrUnsupportedCipher,
		}
	}
	if c.Format == FormatV1 && c.Cipher == CipherChaCha20Poly1305 {
		return NewValidationError("cipher", c.Cipher, "format v1 only supports aes-256-gcm")
	}
	if c.ChunkSize != 0 {
		if err := ValidateChunkSize(c.ChunkSize); err != nil {
			return err
		}
	}
	return nil
}

// withDefaults returns a copy with zero values replaced
func (c *Config) withDefaults() *Config {
	out := *c
	if out.Format == 0 {
		out.Format = FormatV2
	}
	if out.Cipher == CipherAuto {
		out.Cipher = CipherAES256GCM
	}
	if out.ChunkSize == 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.Logger == nil {
		out.Logger = discardLogger()
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return &out
}

// KeyProvider is an interface for providing encryption keys
type KeyProvider interface {
	// DeriveKey derives an encryption key from the given salt
	DeriveKey(salt []byte) ([]byte, error)

	// GenerateSalt generates a new random salt
	GenerateSalt() ([]byte, error)
}
