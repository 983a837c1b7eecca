package encpack

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Package file layout (all integers little-endian):
// ┌─────────────────────────────────────┐
// │ Header                              │
// │ - Magic "ENCPACKv1"/"ENCPACKv2" (9) │
// │ - Salt length (uint8) + salt        │
// │ - Time cost (uint32)                │
// │ - Memory cost KiB (uint32)          │
// │ - Parallelism (uint8)               │
// │ - Cipher suite (uint8, v2 only)     │
// │ - Metadata length (uint64)          │ <- backfilled by Finalize
// ├─────────────────────────────────────┤
// │ Chunk record                        │ <- offset recorded in metadata
// │ - Nonce length (uint8) + nonce      │
// │ - Ciphertext length (uint64)        │
// │ - Ciphertext + auth tag             │
// ├─────────────────────────────────────┤
// │ ... more chunk records              │
// ├─────────────────────────────────────┤
// │ Metadata block (JSON)               │
// ├─────────────────────────────────────┤
// │ Trailer (v2 only)                   │
// │ - SHA-256 of metadata block (32)    │
// │ - "EPKFINAL" (8)                    │
// └─────────────────────────────────────┘

const (
	// MagicSize is the length of the magic tag
	MagicSize = 9

	// MagicV1 identifies the original layout
	MagicV1 = "ENCPACKv1"

	// MagicV2 identifies the layout with cipher byte and trailer
	MagicV2 = "ENCPACKv2"

	// TrailerMagic marks a finalized v2 package
	TrailerMagic = "EPKFINAL"

	// TrailerSize is the size of the v2 trailer
	TrailerSize = sha256.Size + 8

	// DefaultChunkSize is the default plaintext chunk size (1 MiB)
	DefaultChunkSize = 1024 * 1024

	// MinChunkSize is the minimum allowed chunk size (64 bytes, for testing)
	MinChunkSize = 64

	// MaxChunkSize is the maximum allowed chunk size (16 MB)
	MaxChunkSize = 16 * 1024 * 1024

	// MaxMetadataSize bounds the metadata block read into memory
	MaxMetadataSize = 256 * 1024 * 1024
)

// magicPrefix is shared by all format versions
const magicPrefix = "ENCPACKv"

// Header is the fixed-order header at the start of every package
type Header struct {
	Version     FormatVersion
	Salt        []byte
	KDF         KDFParams
	Cipher      CipherSuite // Always CipherAES256GCM for v1
	MetadataLen uint64
}

// NewHeader creates a header for a new package
func NewHeader(version FormatVersion, salt []byte, kdf KDFParams, cipher CipherSuite) *Header {
	if version == FormatV1 {
		cipher = CipherAES256GCM
	}
	return &Header{
		Version: version,
		Salt:    salt,
		KDF:     kdf,
		Cipher:  cipher,
	}
}

// Magic returns the magic tag for the header's version
func (h *Header) Magic() string {
	if h.Version == FormatV1 {
		return MagicV1
	}
	return MagicV2
}

// Size returns the total size of the header in bytes
func (h *Header) Size() int64 {
	n := int64(MagicSize + 1 + len(h.Salt) + 4 + 4 + 1 + 8)
	if h.Version == FormatV2 {
		n++
	}
	return n
}

// MetadataLenOffset returns the file offset of the metadata length field
func (h *Header) MetadataLenOffset() int64 {
	return h.Size() - 8
}

// TrailerLen returns the number of bytes following the metadata block
func (h *Header) TrailerLen() int64 {
	if h.Version == FormatV2 {
		return TrailerSize
	}
	return 0
}

// WriteTo writes the header to the given writer
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	if len(h.Salt) == 0 || len(h.Salt) > 255 {
		return 0, NewValidationError("salt", len(h.Salt), "salt length must be between 1 and 255 bytes")
	}

	buf := new(bytes.Buffer)
	buf.WriteString(h.Magic())
	buf.WriteByte(uint8(len(h.Salt)))
	buf.Write(h.Salt)

	// Fixed-size fields
	if err := binary.Write(buf, binary.LittleEndian, h.KDF.TimeCost); err != nil {
		return 0, fmt.Errorf("failed to write time cost: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, h.KDF.MemoryCost); err != nil {
		return 0, fmt.Errorf("failed to write memory cost: %w", err)
	}
	buf.WriteByte(h.KDF.Parallelism)
	if h.Version == FormatV2 {
		buf.WriteByte(uint8(h.Cipher))
	}
	if err := binary.Write(buf, binary.LittleEndian, h.MetadataLen); err != nil {
		return 0, fmt.Errorf("failed to write metadata length: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadFrom reads the header from the given reader. The magic tag is
// checked before anything else.
func (h *Header) ReadFrom(r io.Reader) (int64, error) {
	var totalRead int64

	magic := make([]byte, MagicSize)
	n, err := io.ReadFull(r, magic)
	totalRead += int64(n)
	if err != nil {
		if isShortRead(err) && n > 0 && bytes.HasPrefix([]byte(MagicV2), magic[:n]) {
			return totalRead, truncated("magic")
		}
		if isShortRead(err) {
			return totalRead, NewCorruptionError("", ErrNotAPackage, "missing magic tag")
		}
		return totalRead, fmt.Errorf("failed to read magic: %w", err)
	}

	switch string(magic) {
	case MagicV1:
		h.Version = FormatV1
	case MagicV2:
		h.Version = FormatV2
	default:
		if bytes.HasPrefix(magic, []byte(magicPrefix)) {
			return totalRead, NewCorruptionError("", ErrUnsupportedVersion, fmt.Sprintf("unsupported format %q", magic))
		}
		return totalRead, NewCorruptionError("", ErrNotAPackage, "bad magic tag")
	}

	// Read salt
	var saltLen [1]byte
	if err := readField(r, saltLen[:], "salt length", &totalRead); err != nil {
		return totalRead, err
	}
	h.Salt = make([]byte, saltLen[0])
	if err := readField(r, h.Salt, "salt", &totalRead); err != nil {
		return totalRead, err
	}

	// Read cost parameters
	var fixed [9]byte
	if err := readField(r, fixed[:], "kdf parameters", &totalRead); err != nil {
		return totalRead, err
	}
	h.KDF.TimeCost = binary.LittleEndian.Uint32(fixed[0:4])
	h.KDF.MemoryCost = binary.LittleEndian.Uint32(fixed[4:8])
	h.KDF.Parallelism = fixed[8]

	h.Cipher = CipherAES256GCM
	if h.Version == FormatV2 {
		var c [1]byte
		if err := readField(r, c[:], "cipher suite", &totalRead); err != nil {
			return totalRead, err
		}
		h.Cipher = CipherSuite(c[0])
	}

	var metaLen [8]byte
	if err := readField(r, metaLen[:], "metadata length", &totalRead); err != nil {
		return totalRead, err
	}
	h.MetadataLen = binary.LittleEndian.Uint64(metaLen[:])

	return totalRead, nil
}

// Validate checks the header fields read from a package
func (h *Header) Validate() error {
	if h.Version != FormatV1 && h.Version != FormatV2 {
		return NewCorruptionError("", ErrUnsupportedVersion, fmt.Sprintf("unsupported format version %d", h.Version))
	}
	if len(h.Salt) == 0 {
		return NewCorruptionError("", ErrInvalidMetadata, "salt cannot be empty")
	}
	if h.Cipher != CipherAES256GCM && h.Cipher != CipherChaCha20Poly1305 {
		return &ValidationError{
			Field:   "cipher",
			Value:   h.Cipher,
			Message: "unsupported cipher suite",
			Err:     ErrUnsupportedCipher,
		}
	}
	return ValidateKDFParams(h.KDF)
}

// ChunkRecord is one encrypted chunk as stored in the package
type ChunkRecord struct {
	Nonce      []byte
	Ciphertext []byte // Includes the authentication tag
}

// Size returns the encoded size of the record
func (c *ChunkRecord) Size() int64 {
	return int64(1 + len(c.Nonce) + 8 + len(c.Ciphertext))
}

// WriteTo writes the chunk record to a writer
func (c *ChunkRecord) WriteTo(w io.Writer) (int64, error) {
	if len(c.Nonce) == 0 || len(c.Nonce) > 255 {
		return 0, NewValidationError("nonce", len(c.Nonce), "nonce length must be between 1 and 255 bytes")
	}

	var hdr [1 + 255 + 8]byte
	hdr[0] = uint8(len(c.Nonce))
	copy(hdr[1:], c.Nonce)
	binary.LittleEndian.PutUint64(hdr[1+len(c.Nonce):], uint64(len(c.Ciphertext)))
	hdrLen := 1 + len(c.Nonce) + 8

	n, err := w.Write(hdr[:hdrLen])
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(c.Ciphertext)
	return int64(n + m), err
}

// ReadLimited reads a chunk record. Ciphertext lengths above maxCiphertext
// are treated as corruption, so a damaged length field cannot force a
// huge allocation.
func (c *ChunkRecord) ReadLimited(r io.Reader, maxCiphertext uint64) (int64, error) {
	var totalRead int64

	var nonceLen [1]byte
	if err := readField(r, nonceLen[:], "nonce length", &totalRead); err != nil {
		return totalRead, err
	}
	if nonceLen[0] == 0 {
		return totalRead, NewCorruptionError("", ErrInvalidMetadata, "chunk record has empty nonce")
	}
	c.Nonce = make([]byte, nonceLen[0])
	if err := readField(r, c.Nonce, "nonce", &totalRead); err != nil {
		return totalRead, err
	}

	var ctLen [8]byte
	if err := readField(r, ctLen[:], "ciphertext length", &totalRead); err != nil {
		return totalRead, err
	}
	size := binary.LittleEndian.Uint64(ctLen[:])
	if size > maxCiphertext {
		return totalRead, truncated(fmt.Sprintf("ciphertext length %d exceeds the %d bytes available", size, maxCiphertext))
	}
	c.Ciphertext = make([]byte, size)
	if err := readField(r, c.Ciphertext, "ciphertext", &totalRead); err != nil {
		return totalRead, err
	}

	return totalRead, nil
}

// Trailer closes a finalized v2 package
type Trailer struct {
	Digest [sha256.Size]byte // SHA-256 of the metadata block
}

// NewTrailer computes the trailer for a metadata block
func NewTrailer(metadata []byte) *Trailer {
	return &Trailer{Digest: sha256.Sum256(metadata)}
}

// WriteTo writes the trailer to a writer
func (t *Trailer) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, 0, TrailerSize)
	buf = append(buf, t.Digest[:]...)
	buf = append(buf, TrailerMagic...)
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom reads the trailer. A missing end marker means the package was
// never finalized.
func (t *Trailer) ReadFrom(r io.Reader) (int64, error) {
	var buf [TrailerSize]byte
	var totalRead int64
	if err := readField(r, buf[:], "trailer", &totalRead); err != nil {
		return totalRead, err
	}
	if string(buf[sha256.Size:]) != TrailerMagic {
		return totalRead, truncated("missing end marker, package was not finalized")
	}
	copy(t.Digest[:], buf[:sha256.Size])
	return totalRead, nil
}

// Verify checks the metadata block against the digest
func (t *Trailer) Verify(metadata []byte) error {
	if sha256.Sum256(metadata) != t.Digest {
		return NewCorruptionError("", ErrInvalidMetadata, "metadata digest mismatch")
	}
	return nil
}

// readField reads exactly len(buf) bytes, reporting short reads as
// ErrTruncatedFile
func readField(r io.Reader, buf []byte, name string, total *int64) error {
	n, err := io.ReadFull(r, buf)
	*total += int64(n)
	if err != nil {
		if isShortRead(err) {
			return truncated(name)
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return nil
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func truncated(what string) error {
	return NewCorruptionError("", ErrTruncatedFile, "short read: "+what)
}
