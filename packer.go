package encpack

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/absfs/absfs"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ExtractDirPrefix prefixes the directory created by Extract
const ExtractDirPrefix = "encpack_"

// Packer builds, inspects and extracts packages on a filesystem
type Packer struct {
	fs     absfs.FileSystem
	config *Config
	log    *log.Logger
}

// New creates a new Packer over fs
func New(fs absfs.FileSystem, config *Config) (*Packer, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg := config.withDefaults()
	return &Packer{
		fs:     fs,
		config: cfg,
		log:    cfg.Logger,
	}, nil
}

// FileSystem returns the filesystem the packer operates on
func (p *Packer) FileSystem() absfs.FileSystem {
	return p.fs
}

// Build packages entries into outputPath, protected by password.
func (p *Packer) Build(entries []Entry, password []byte, outputPath string, params KDFParams) (err error) {
	if err := ValidateKDFParams(params); err != nil {
		return err
	}
	if len(password) == 0 {
		return NewValidationError("password", nil, "password cannot be empty")
	}
	rels, err := normalizeEntries(entries)
	if err != nil {
		return err
	}

	provider := NewPasswordKeyProvider(password, params)
	salt, err := provider.GenerateSalt()
	if err != nil {
		return err
	}
	p.log.Debug("deriving key", "time_cost", params.TimeCost, "memory_cost", params.MemoryCost, "parallelism", params.Parallelism)
	key, err := provider.DeriveKey(salt)
	if err != nil {
		return err
	}
	defer zeroBytes(key)

	engine, err := NewCipherEngine(p.config.Cipher, key)
	if err != nil {
		return NewEncryptionError("init", outputPath, err)
	}

	header := NewHeader(p.config.Format, salt, params, p.config.Cipher)
	w, err := CreatePackage(p.fs, outputPath, header, engine, p.config.ChunkSize)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for i, e := range entries {
		entry, err := p.appendEntry(w, e.SourcePath, rels[i])
		if err != nil {
			return err
		}
		p.log.Debug("packed file", "path", entry.Path, "size", entry.Size, "chunks", len(entry.Chunks))
	}

	if err := w.Finalize(p.config.Now()); err != nil {
		return err
	}

	p.log.Info("package built", "path", outputPath, "files", len(entries), "format", p.config.Format, "cipher", p.config.Cipher)
	return nil
}

func (p *Packer) appendEntry(w *PackageWriter, source, rel string) (FileEntry, error) {
	src, err := p.fs.Open(source)
	if err != nil {
		return FileEntry{}, NewIOError("open", source, err)
	}
	defer src.Close()

	return w.AppendFile(rel, src)
}

// normalizeEntries returns the package paths of entries, rejecting escapes
// and duplicates before anything is written.
func normalizeEntries(entries []Entry) ([]string, error) {
	rels := make([]string, len(entries))
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		if e.SourcePath == "" {
			return nil, NewValidationError("source_path", i, "entry has no source path")
		}
		rel := NormalizeRelativePath(e.RelativePath)
		if err := ValidateRelativePath(rel); err != nil {
			return nil, &ValidationError{
				Field:   "relative_path",
				Value:   e.RelativePath,
				Message: "invalid relative path",
				Err:     err,
			}
		}
		if prev, dup := seen[rel]; dup {
			return nil, NewValidationError("relative_path", rel, fmt.Sprintf("entries %d and %d share the same path", prev, i))
		}
		seen[rel] = i
		rels[i] = rel
	}
	return rels, nil
}

// Inspect reads the header and metadata of a package. It needs no
// password and decrypts nothing.
func (p *Packer) Inspect(packagePath string) (*PackageInfo, error) {
	r, err := OpenPackage(p.fs, packagePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	info := r.Info()
	p.log.Debug("inspected package", "path", packagePath, "files", len(info.Files), "format", info.Format)
	return info, nil
}

// Extract decrypts every file of the package into a new, uniquely named
// directory under outputDir and returns that directory. Files written
// before a failure stay on disk.
func (p *Packer) Extract(packagePath string, password []byte, outputDir string) (string, error) {
	r, err := OpenPackage(p.fs, packagePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	engine, err := p.openEngine(r, password)
	if err != nil {
		return "", err
	}

	target := path.Join(outputDir, p.extractDirName())
	if err := p.fs.MkdirAll(target, 0755); err != nil {
		return "", NewIOError("mkdir", target, err)
	}

	for _, f := range r.Metadata().Files {
		if err := p.extractFile(r, engine, f, target); err != nil {
			return target, err
		}
		p.log.Debug("extracted file", "path", f.Path, "size", f.Size)
	}

	p.log.Info("package extracted", "path", packagePath, "output", target, "files", len(r.Metadata().Files))
	return target, nil
}

// openEngine derives the key from the header's persisted parameters
func (p *Packer) openEngine(r *PackageReader, password []byte) (CipherEngine, error) {
	h := r.Header()
	p.log.Debug("deriving key", "time_cost", h.KDF.TimeCost, "memory_cost", h.KDF.MemoryCost, "parallelism", h.KDF.Parallelism)
	key, err := DeriveKey(password, h.Salt, h.KDF)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	engine, err := NewCipherEngine(h.Cipher, key)
	if err != nil {
		return nil, NewEncryptionError("init", r.path, err)
	}
	return engine, nil
}

func (p *Packer) extractDirName() string {
	id := uuid.New().String()
	return ExtractDirPrefix + p.config.Now().Format("20060102_150405") + "_" + id[:8]
}

func (p *Packer) extractFile(r *PackageReader, engine CipherEngine, f FileEntry, target string) (err error) {
	// Paths were validated with the metadata; checked again here because
	// this is the point where they reach the filesystem.
	if err := ValidateRelativePath(f.Path); err != nil {
		return err
	}
	dest := path.Join(target, f.Path)
	if err := mkdirParent(p.fs, dest); err != nil {
		return NewIOError("mkdir", dest, err)
	}

	out, err := p.fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return NewIOError("create", dest, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = NewIOError("close", dest, cerr)
		}
	}()

	bw := bufio.NewWriterSize(out, 256*1024)
	written, err := decryptEntry(r, engine, f, bw)
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return NewIOError("write", dest, err)
	}
	if written != f.Size {
		return &CorruptionError{
			Path:     f.Path,
			ChunkIdx: -1,
			Message:  fmt.Sprintf("decrypted %d bytes, metadata records %d", written, f.Size),
			Err:      ErrInvalidMetadata,
		}
	}
	return nil
}

// decryptEntry decrypts the chunks of f in index order into w
func decryptEntry(r *PackageReader, engine CipherEngine, f FileEntry, w io.Writer) (int64, error) {
	var written int64
	for _, ref := range f.Chunks {
		record, err := r.ReadChunk(ref)
		if err != nil {
			return written, err
		}
		plaintext, err := DecryptChunk(engine, record.Nonce, record.Ciphertext)
		if err != nil {
			return written, NewAuthenticationError(f.Path, ref.Index)
		}
		if written+int64(len(plaintext)) > f.Size {
			return written, &CorruptionError{
				Path:     f.Path,
				ChunkIdx: int64(ref.Index),
				Message:  "file is larger than its recorded size",
				Err:      ErrInvalidMetadata,
			}
		}
		if _, err := w.Write(plaintext); err != nil {
			return written, NewIOError("write", f.Path, err)
		}
		written += int64(len(plaintext))
	}
	return written, nil
}

// VerifyReport summarizes a successful Verify
type VerifyReport struct {
	Files  int
	Chunks int
	Bytes  int64
}

// Verify decrypts every chunk of the package without writing anything
func (p *Packer) Verify(packagePath string, password []byte) (*VerifyReport, error) {
	r, err := OpenPackage(p.fs, packagePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	engine, err := p.openEngine(r, password)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{}
	for _, f := range r.Metadata().Files {
		n, err := decryptEntry(r, engine, f, io.Discard)
		if err != nil {
			return nil, err
		}
		if n != f.Size {
			return nil, &CorruptionError{
				Path:     f.Path,
				ChunkIdx: -1,
				Message:  fmt.Sprintf("decrypted %d bytes, metadata records %d", n, f.Size),
				Err:      ErrInvalidMetadata,
			}
		}
		report.Files++
		report.Chunks += len(f.Chunks)
		report.Bytes += n
	}

	p.log.Info("package verified", "path", packagePath, "files", report.Files, "chunks", report.Chunks)
	return report, nil
}

// mkdirParent creates the parent directory of name if it has one
func mkdirParent(fs absfs.FileSystem, name string) error {
	dir := path.Dir(name)
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	return fs.MkdirAll(dir, 0755)
}

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

// Package-level helpers over the host filesystem

// Build packages entries on the host filesystem with DefaultConfig
func Build(entries []Entry, password []byte, outputPath string, params KDFParams) error {
	p, err := New(NewOSFS(""), DefaultConfig())
	if err != nil {
		return err
	}
	return p.Build(entries, password, outputPath, params)
}

// Inspect reads a package on the host filesystem
func Inspect(packagePath string) (*PackageInfo, error) {
	p, err := New(NewOSFS(""), DefaultConfig())
	if err != nil {
		return nil, err
	}
	return p.Inspect(packagePath)
}

// Extract extracts a package on the host filesystem
func Extract(packagePath string, password []byte, outputDir string) (string, error) {
	p, err := New(NewOSFS(""), DefaultConfig())
	if err != nil {
		return "", err
	}
	return p.Extract(packagePath, password, outputDir)
}

// Verify verifies a package on the host filesystem
func Verify(packagePath string, password []byte) (*VerifyReport, error) {
	p, err := New(NewOSFS(""), DefaultConfig())
	if err != nil {
		return nil, err
	}
	return p.Verify(packagePath, password)
}
