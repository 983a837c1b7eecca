package encpack

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/absfs/absfs"
)

// PackageInfo summarizes a package without decrypting it
type PackageInfo struct {
	Path        string
	Format      FormatVersion
	Cipher      CipherSuite
	KDF         KDFParams
	Salt        []byte
	Files       []FileEntry
	CreatedAt   time.Time
	ChunkSize   int   // 0 for v1 packages
	TotalSize   int64 // Sum of original file sizes
	PackageSize int64
}

// PackageReader gives access to the cleartext header and metadata of a
// package and reads chunk records at their recorded offsets.
type PackageReader struct {
	path     string
	file     absfs.File
	size     int64
	header   *Header
	metadata *Metadata

	dataStart int64 // First byte after the header
	dataEnd   int64 // First byte of the metadata block
	closed    bool
}

// OpenPackage opens and parses a package. No password is needed.
func OpenPackage(fs absfs.FileSystem, name string) (*PackageReader, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}
	file, err := fs.Open(name)
	if err != nil {
		return nil, NewIOError("open", name, err)
	}

	r := &PackageReader{path: name, file: file}
	if err := r.load(); err != nil {
		file.Close()
		return nil, withPath(err, name)
	}
	return r, nil
}

// load reads the header, the trailer (v2) and the metadata block
func (r *PackageReader) load() error {
	size, err := r.file.Seek(0, io.SeekEnd)
	if err != nil {
		return NewIOError("seek", r.path, err)
	}
	r.size = size
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return NewIOError("seek", r.path, err)
	}

	r.header = &Header{}
	if _, err := r.header.ReadFrom(bufio.NewReaderSize(r.file, 512)); err != nil {
		return err
	}
	if err := r.header.Validate(); err != nil {
		return err
	}

	r.dataStart = r.header.Size()
	trailerLen := r.header.TrailerLen()
	if size < r.dataStart+trailerLen {
		return truncated("package ends before the metadata block")
	}

	var trailer *Trailer
	if r.header.Version == FormatV2 {
		if _, err := r.file.Seek(size-TrailerSize, io.SeekStart); err != nil {
			return NewIOError("seek", r.path, err)
		}
		trailer = &Trailer{}
		if _, err := trailer.ReadFrom(r.file); err != nil {
			return err
		}
	}

	if r.header.MetadataLen == 0 {
		return truncated("metadata length was never written")
	}
	available := size - r.dataStart - trailerLen
	if r.header.MetadataLen > uint64(available) {
		return truncated(fmt.Sprintf("metadata length %d exceeds the %d bytes available", r.header.MetadataLen, available))
	}
	if r.header.MetadataLen > MaxMetadataSize {
		return invalidMetadata(fmt.Sprintf("metadata length %d exceeds maximum %d", r.header.MetadataLen, MaxMetadataSize))
	}

	metaLen := int64(r.header.MetadataLen)
	r.dataEnd = size - trailerLen - metaLen
	if _, err := r.file.Seek(r.dataEnd, io.SeekStart); err != nil {
		return newIOErrorAt("seek", r.path, r.dataEnd, err)
	}
	data := make([]byte, metaLen)
	var n int64
	if err := readField(r.file, data, "metadata", &n); err != nil {
		return err
	}

	if trailer != nil {
		if err := trailer.Verify(data); err != nil {
			return err
		}
	}

	meta, err := UnmarshalMetadata(data, r.header.Version)
	if err != nil {
		return err
	}
	if err := meta.Validate(r.dataStart, r.dataEnd); err != nil {
		return err
	}
	r.metadata = meta
	return nil
}

// Header returns the parsed header
func (r *PackageReader) Header() *Header {
	return r.header
}

// Metadata returns the parsed metadata
func (r *PackageReader) Metadata() *Metadata {
	return r.metadata
}

// Info returns a summary of the package
func (r *PackageReader) Info() *PackageInfo {
	return &PackageInfo{
		Path:        r.path,
		Format:      r.header.Version,
		Cipher:      r.header.Cipher,
		KDF:         r.header.KDF,
		Salt:        append([]byte(nil), r.header.Salt...),
		Files:       r.metadata.Files,
		CreatedAt:   r.metadata.CreatedAt,
		ChunkSize:   r.metadata.ChunkSize,
		TotalSize:   r.metadata.TotalSize(),
		PackageSize: r.size,
	}
}

// ReadChunk reads the chunk record at ref.Offset
func (r *PackageReader) ReadChunk(ref ChunkRef) (*ChunkRecord, error) {
	if ref.Offset < r.dataStart || ref.Offset >= r.dataEnd {
		return nil, invalidMetadata(fmt.Sprintf("chunk offset %d outside chunk region", ref.Offset))
	}
	if _, err := r.file.Seek(ref.Offset, io.SeekStart); err != nil {
		return nil, newIOErrorAt("seek", r.path, ref.Offset, err)
	}

	record := &ChunkRecord{}
	maxCiphertext := uint64(r.dataEnd - ref.Offset)
	if _, err := record.ReadLimited(r.file, maxCiphertext); err != nil {
		return nil, withPath(err, r.path)
	}
	return record, nil
}

// Close closes the package file. Closing twice is a no-op.
func (r *PackageReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.file.Close(); err != nil {
		return NewIOError("close", r.path, err)
	}
	return nil
}

// withPath fills in the package path on corruption errors that were
// raised by codecs without one
func withPath(err error, name string) error {
	var ce *CorruptionError
	if errors.As(err, &ce) && ce.Path == "" {
		ce.Path = name
	}
	return err
}
