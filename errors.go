package encpack

import (
	"errors"
	"fmt"
)

// Error types represent different categories of errors. Every structured
// error matches one of the sentinel errors below with errors.Is, so callers
// can branch on the outcome without knowing the concrete type.

// Sentinel errors, one per outcome reported to callers
var (
	ErrNotAPackage      = errors.New("not an encpack package")
	ErrTruncatedFile    = errors.New("package file is truncated")
	ErrInvalidMetadata  = errors.New("package metadata is invalid")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrAuthFailed       = errors.New("authentication failed - wrong password or corrupted data")
	ErrPathEscape       = errors.New("path escapes the output directory")
	ErrIOFailure        = errors.New("i/o failure")
)

// Other sentinel errors
var (
	ErrUnsupportedVersion = errors.New("unsupported package format version")
	ErrUnsupportedCipher  = errors.New("unsupported cipher suite")
	ErrNilConfig          = errors.New("config cannot be nil")
	ErrNilFileSystem      = errors.New("filesystem cannot be nil")
	ErrFinalized          = errors.New("package writer already finalized")
)

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports ErrInvalidParameter for every validation error
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// EncryptionError represents an encryption failure
type EncryptionError struct {
	Operation string // "encrypt" or "decrypt"
	Path      string // Relative path inside the package, if applicable
	ChunkIdx  int64  // Chunk index, -1 if not applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *EncryptionError) Error() string {
	if e.Path != "" && e.ChunkIdx >= 0 {
		return fmt.Sprintf("%s error: %s (chunk %d): %s", e.Operation, e.Path, e.ChunkIdx, e.Message)
	} else if e.Path != "" {
		return fmt.Sprintf("%s error: %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Operation, e.Message)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// IOError represents a file system I/O error
type IOError struct {
	Operation string // "read", "write", "seek", "open", "close", etc.
	Path      string // File path
	Offset    int64  // File offset, -1 if not applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" && e.Offset >= 0 {
		return fmt.Sprintf("io error: %s %s at offset %d: %s", e.Operation, e.Path, e.Offset, e.Message)
	} else if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("io error: %s: %s", e.Operation, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is reports ErrIOFailure for every I/O error
func (e *IOError) Is(target error) bool {
	return target == ErrIOFailure
}

// CorruptionError represents a malformed, truncated or hostile package
type CorruptionError struct {
	Path     string // Package path or relative entry path
	ChunkIdx int64  // Chunk index, -1 if not applicable
	Message  string // Human-readable error message
	Err      error  // One of ErrNotAPackage, ErrTruncatedFile, ErrInvalidMetadata, ErrPathEscape
}

func (e *CorruptionError) Error() string {
	if e.ChunkIdx >= 0 {
		return fmt.Sprintf("corruption error: %s (chunk %d): %s", e.Path, e.ChunkIdx, e.Message)
	} else if e.Path != "" {
		return fmt.Sprintf("corruption error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("corruption error: %s", e.Message)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// Is reports an unknown format version as ErrNotAPackage as well
func (e *CorruptionError) Is(target error) bool {
	return target == ErrNotAPackage && e.Err == ErrUnsupportedVersion
}

// AuthenticationError represents a failed tag verification. A wrong
// password and tampered ciphertext produce the same error.
type AuthenticationError struct {
	Path     string // Relative path inside the package
	ChunkIdx uint32 // Chunk that failed to verify
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *AuthenticationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("authentication error: %s (chunk %d): %s", e.Path, e.ChunkIdx, e.Message)
	}
	return fmt.Sprintf("authentication error: %s", e.Message)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Helper functions for creating structured errors

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewEncryptionError creates a new encryption error
func NewEncryptionError(operation, path string, err error) error {
	return &EncryptionError{
		Operation: operation,
		Path:      path,
		ChunkIdx:  -1,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewIOError creates a new I/O error
func NewIOError(operation, path string, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Offset:    -1,
		Message:   err.Error(),
		Err:       err,
	}
}

// newIOErrorAt creates a new I/O error at a file offset
func newIOErrorAt(operation, path string, offset int64, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Offset:    offset,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewCorruptionError creates a new corruption error wrapping kind
func NewCorruptionError(path string, kind error, message string) error {
	return &CorruptionError{
		Path:     path,
		ChunkIdx: -1,
		Message:  message,
		Err:      kind,
	}
}

// NewAuthenticationError creates a new authentication error for a chunk
func NewAuthenticationError(path string, chunkIdx uint32) error {
	return &AuthenticationError{
		Path:     path,
		ChunkIdx: chunkIdx,
		Message:  "wrong password or corrupted data",
		Err:      ErrAuthFailed,
	}
}

// Error checking helpers

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsEncryptionError checks if an error is an encryption error
func IsEncryptionError(err error) bool {
	var ee *EncryptionError
	return errors.As(err, &ee)
}

// IsIOError checks if an error is an I/O error
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

// IsCorruptionError checks if an error is a corruption error
func IsCorruptionError(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// IsAuthenticationError checks if an error is an authentication error
func IsAuthenticationError(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}
