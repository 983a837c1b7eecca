package encpack

import (
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
)

// RekeyOptions contains options for re-encrypting a package
type RekeyOptions struct {
	// NewPassword protects the re-encrypted package
	NewPassword []byte

	// KDF cost parameters for the new key; zero keeps the current ones
	KDF KDFParams

	// Cipher suite to use (if different from the original)
	Cipher CipherSuite

	// Format to write (if different from the original)
	Format FormatVersion

	// OutputPath receives the new package. Empty replaces the package in
	// place once the new one is complete.
	OutputPath string
}

// Rekey decrypts every chunk of a package with oldPassword and writes a
// new package under opts.NewPassword with a fresh salt and fresh nonces.
// File contents are streamed chunk by chunk.
func (p *Packer) Rekey(packagePath string, oldPassword []byte, opts RekeyOptions) (err error) {
	if len(opts.NewPassword) == 0 {
		return NewValidationError("new_password", nil, "password cannot be empty")
	}

	r, err := OpenPackage(p.fs, packagePath)
	if err != nil {
		return err
	}
	defer r.Close()

	oldEngine, err := p.openEngine(r, oldPassword)
	if err != nil {
		return err
	}

	h := r.Header()
	params := opts.KDF
	if params == (KDFParams{}) {
		params = h.KDF
	}
	if err := ValidateKDFParams(params); err != nil {
		return err
	}
	format := opts.Format
	if format == 0 {
		format = h.Version
	}
	suite := opts.Cipher
	if suite == CipherAuto {
		suite = h.Cipher
	}
	if format == FormatV1 && suite != CipherAES256GCM {
		return NewValidationError("cipher", suite, "format v1 only supports aes-256-gcm")
	}
	chunkSize := r.Metadata().ChunkSize
	if chunkSize == 0 {
		chunkSize = p.config.ChunkSize
	}

	provider := NewPasswordKeyProvider(opts.NewPassword, params)
	salt, err := provider.GenerateSalt()
	if err != nil {
		return err
	}
	key, err := provider.DeriveKey(salt)
	if err != nil {
		return err
	}
	defer zeroBytes(key)
	newEngine, err := NewCipherEngine(suite, key)
	if err != nil {
		return NewEncryptionError("init", packagePath, err)
	}

	var keepTarget bool
	target := opts.OutputPath
	inPlace := target == "" || path.Clean(target) == path.Clean(packagePath)
	if inPlace {
		target = packagePath + ".rekey-" + uuid.New().String()[:8]
	}

	w, err := CreatePackage(p.fs, target, NewHeader(format, salt, params, suite), newEngine, chunkSize)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil && inPlace && !keepTarget {
			p.fs.Remove(target)
		}
	}()

	for _, f := range r.Metadata().Files {
		if err := rekeyEntry(r, oldEngine, w, f); err != nil {
			return err
		}
		p.log.Debug("re-encrypted file", "path", f.Path, "size", f.Size)
	}

	if err := w.Finalize(r.Metadata().CreatedAt); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	if inPlace {
		r.Close()
		if err := replaceFile(p.fs, target, packagePath); err != nil {
			// Keep the new package if the original is no longer at packagePath
			if _, statErr := p.fs.Stat(packagePath); statErr != nil {
				keepTarget = true
			}
			return NewIOError("rename", target, err)
		}
		target = packagePath
	}

	p.log.Info("package re-encrypted", "path", target, "format", format, "cipher", suite)
	return nil
}

// rekeyEntry pipes the decrypted chunks of f into w
func rekeyEntry(r *PackageReader, engine CipherEngine, w *PackageWriter, f FileEntry) error {
	pr, pw := io.Pipe()

	var decErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, decErr = decryptEntry(r, engine, f, pw)
		pw.CloseWithError(decErr)
	}()

	entry, err := w.AppendFile(f.Path, pr)
	pr.Close()
	<-done

	if decErr != nil && !errors.Is(decErr, io.ErrClosedPipe) {
		return decErr
	}
	if err != nil {
		return err
	}
	if entry.Size != f.Size {
		return &CorruptionError{
			Path:     f.Path,
			ChunkIdx: -1,
			Message:  fmt.Sprintf("decrypted %d bytes, metadata records %d", entry.Size, f.Size),
			Err:      ErrInvalidMetadata,
		}
	}
	return nil
}

// replaceFile renames src over dst. When Rename refuses an existing dst,
// dst is moved aside first and moved back if src still cannot take its
// place. dst is never removed before src is in position.
func replaceFile(fs absfs.FileSystem, src, dst string) error {
	err := fs.Rename(src, dst)
	if err == nil {
		return nil
	}
	if _, statErr := fs.Stat(dst); statErr != nil {
		return err
	}

	backup := dst + ".bak-" + uuid.New().String()[:8]
	if bErr := fs.Rename(dst, backup); bErr != nil {
		return err
	}
	if err := fs.Rename(src, dst); err != nil {
		if rErr := fs.Rename(backup, dst); rErr != nil {
			return fmt.Errorf("%w (original kept at %s: %v)", err, backup, rErr)
		}
		return err
	}
	fs.Remove(backup)
	return nil
}
