package encpack

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/absfs/absfs"
)

// PackageWriter assembles a package file in two passes. Chunk records are
// appended sequentially, then Finalize writes the metadata block (and the
// v2 trailer) and patches the metadata length in the header. A package
// closed without Finalize has a zero length field and, in v2, no trailer,
// so readers report it as truncated.
type PackageWriter struct {
	path      string
	file      absfs.File
	out       *bufio.Writer
	header    *Header
	engine    CipherEngine
	chunkSize int

	pos       int64 // Offset of the next byte written to out
	buf       []byte
	files     []FileEntry
	finalized bool
	closed    bool
}

// CreatePackage creates (or truncates) name on fs and writes the header
// with a placeholder metadata length.
func CreatePackage(fs absfs.FileSystem, name string, header *Header, engine CipherEngine, chunkSize int) (*PackageWriter, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}
	if err := ValidateChunkSize(chunkSize); err != nil {
		return nil, err
	}
	if header.Version == FormatV1 && header.Cipher != CipherAES256GCM {
		return nil, NewValidationError("cipher", header.Cipher, "format v1 only supports aes-256-gcm")
	}

	if err := mkdirParent(fs, name); err != nil {
		return nil, NewIOError("mkdir", name, err)
	}
	file, err := fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, NewIOError("create", name, err)
	}

	w := &PackageWriter{
		path:      name,
		file:      file,
		out:       bufio.NewWriterSize(file, 256*1024),
		header:    header,
		engine:    engine,
		chunkSize: chunkSize,
		buf:       make([]byte, chunkSize),
	}

	header.MetadataLen = 0
	n, err := header.WriteTo(w.out)
	if err != nil {
		file.Close()
		return nil, newIOErrorAt("write", name, 0, err)
	}
	w.pos = n

	return w, nil
}

// AppendFile streams r into chunk records and returns the resulting entry.
// relPath must already be normalized.
func (w *PackageWriter) AppendFile(relPath string, r io.Reader) (FileEntry, error) {
	if w.finalized || w.closed {
		return FileEntry{}, ErrFinalized
	}

	entry := FileEntry{Path: relPath, Chunks: []ChunkRef{}}
	for idx := uint32(0); ; idx++ {
		n, readErr := io.ReadFull(r, w.buf)
		if n > 0 {
			nonce, ciphertext, err := EncryptChunk(w.engine, w.buf[:n])
			if err != nil {
				return FileEntry{}, &EncryptionError{
					Operation: "encrypt",
					Path:      relPath,
					ChunkIdx:  int64(idx),
					Message:   err.Error(),
					Err:       err,
				}
			}

			// The offset is taken before the record is written
			offset := w.pos
			record := ChunkRecord{Nonce: nonce, Ciphertext: ciphertext}
			written, err := record.WriteTo(w.out)
			w.pos += written
			if err != nil {
				return FileEntry{}, newIOErrorAt("write", w.path, offset, err)
			}

			entry.Chunks = append(entry.Chunks, ChunkRef{Index: idx, Offset: offset})
			entry.Size += int64(n)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			return FileEntry{}, NewIOError("read", relPath, readErr)
		}
	}

	w.files = append(w.files, entry)
	return entry, nil
}

// Files returns the entries appended so far
func (w *PackageWriter) Files() []FileEntry {
	return w.files
}

// Finalize writes the metadata block, the trailer for v2, and backfills the
// metadata length in the header.
func (w *PackageWriter) Finalize(created time.Time) error {
	if w.finalized || w.closed {
		return ErrFinalized
	}

	meta := &Metadata{
		Files:     w.files,
		CreatedAt: created,
	}
	if w.header.Version == FormatV2 {
		meta.ChunkSize = w.chunkSize
	}
	data, err := MarshalMetadata(meta, w.header.Version)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if _, err := w.out.Write(data); err != nil {
		return newIOErrorAt("write", w.path, w.pos, err)
	}
	w.pos += int64(len(data))

	if w.header.Version == FormatV2 {
		n, err := NewTrailer(data).WriteTo(w.out)
		if err != nil {
			return newIOErrorAt("write", w.path, w.pos, err)
		}
		w.pos += n
	}

	if err := w.out.Flush(); err != nil {
		return NewIOError("flush", w.path, err)
	}

	// Patch the placeholder
	lenOffset := w.header.MetadataLenOffset()
	if _, err := w.file.Seek(lenOffset, io.SeekStart); err != nil {
		return newIOErrorAt("seek", w.path, lenOffset, err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	if _, err := w.file.Write(lenBuf[:]); err != nil {
		return newIOErrorAt("write", w.path, lenOffset, err)
	}
	w.header.MetadataLen = uint64(len(data))

	if err := w.file.Sync(); err != nil {
		return NewIOError("sync", w.path, err)
	}

	w.finalized = true
	return nil
}

// Finalized reports whether Finalize completed
func (w *PackageWriter) Finalized() bool {
	return w.finalized
}

// Close closes the underlying file. Closing an unfinalized writer flushes
// what was written and leaves an incomplete package behind.
func (w *PackageWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.out.Flush()
	if err := w.file.Close(); err != nil {
		return NewIOError("close", w.path, err)
	}
	if flushErr != nil {
		return NewIOError("flush", w.path, flushErr)
	}
	return nil
}
