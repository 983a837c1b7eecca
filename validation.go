package encpack

import (
	"fmt"
	"path"
	"strings"
)

// ValidateKDFParams checks Argon2id cost parameters. Values that Argon2
// would silently adjust are rejected instead.
func ValidateKDFParams(p KDFParams) error {
	if p.TimeCost == 0 {
		return &ValidationError{
			Field:   "time_cost",
			Value:   p.TimeCost,
			Message: "time cost must be positive",
		}
	}
	if p.MemoryCost == 0 {
		return &ValidationError{
			Field:   "memory_cost",
			Value:   p.MemoryCost,
			Message: "memory cost must be positive",
		}
	}
	if p.Parallelism == 0 {
		return &ValidationError{
			Field:   "parallelism",
			Value:   p.Parallelism,
			Message: "parallelism must be positive",
		}
	}
	if p.Parallelism > MaxParallelism {
		return &ValidationError{
			Field:   "parallelism",
			Value:   p.Parallelism,
			Message: fmt.Sprintf("parallelism %d exceeds maximum %d", p.Parallelism, MaxParallelism),
		}
	}
	if p.MemoryCost < 8*uint32(p.Parallelism) {
		return &ValidationError{
			Field:   "memory_cost",
			Value:   p.MemoryCost,
			Message: fmt.Sprintf("memory cost must be at least %d KiB for parallelism %d", 8*uint32(p.Parallelism), p.Parallelism),
		}
	}
	if p.MemoryCost > MaxMemoryCost {
		return &ValidationError{
			Field:   "memory_cost",
			Value:   p.MemoryCost,
			Message: fmt.Sprintf("memory cost %d KiB exceeds maximum %d KiB", p.MemoryCost, MaxMemoryCost),
		}
	}
	return nil
}

// ValidateChunkSize checks that a chunk size is within acceptable bounds
func ValidateChunkSize(size int) error {
	if size < MinChunkSize {
		return &ValidationError{
			Field:   "chunk_size",
			Value:   size,
			Message: fmt.Sprintf("chunk size %d below minimum %d", size, MinChunkSize),
		}
	}
	if size > MaxChunkSize {
		return &ValidationError{
			Field:   "chunk_size",
			Value:   size,
			Message: fmt.Sprintf("chunk size %d above maximum %d", size, MaxChunkSize),
		}
	}
	return nil
}

// ValidateKey checks if a key has the correct size
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		return &ValidationError{
			Field:   "key",
			Value:   len(key),
			Message: fmt.Sprintf("invalid key size: got %d bytes, expected %d bytes", len(key), KeySize),
		}
	}
	return nil
}

// ValidateNonce checks if a nonce has the size the engine expects
func ValidateNonce(nonce []byte, size int) error {
	if len(nonce) != size {
		return &ValidationError{
			Field:   "nonce",
			Value:   len(nonce),
			Message: fmt.Sprintf("invalid nonce size: got %d bytes, expected %d bytes", len(nonce), size),
		}
	}
	return nil
}

// NormalizeRelativePath converts a host relative path to the package form:
// forward slashes, cleaned, no leading "./".
func NormalizeRelativePath(rel string) string {
	rel = strings.ReplaceAll(rel, `\`, "/")
	return path.Clean(rel)
}

// ValidateRelativePath rejects entry paths that are empty, absolute, or
// resolve outside the directory they are extracted into.
func ValidateRelativePath(rel string) error {
	escape := func(msg string) error {
		return NewCorruptionError(rel, ErrPathEscape, msg)
	}
	if rel == "" {
		return escape("empty path")
	}
	if strings.ContainsAny(rel, "\\\x00") {
		return escape("path contains a backslash or NUL byte")
	}
	if path.IsAbs(rel) || hasVolumeName(rel) {
		return escape("absolute path")
	}
	clean := path.Clean(rel)
	if clean == "." {
		return escape("path does not name a file")
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return escape("path resolves outside the output directory")
	}
	return nil
}

// hasVolumeName reports a Windows drive prefix such as "C:"
func hasVolumeName(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
