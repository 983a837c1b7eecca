// Package encpack packages a set of files into a single password-protected
// container and extracts them again.
//
// # Overview
//
// Every file is split into fixed-size chunks. Each chunk is encrypted on
// its own with an AEAD cipher under a fresh random nonce, so a modified
// byte anywhere in a chunk is detected when that chunk is decrypted. A
// JSON metadata block at the end of the package records, for every file,
// its relative path, its original size and the offsets of its chunks.
//
// The header and the metadata are stored in the clear. A package can be
// inspected without the password; file names and sizes are not secret.
//
// # Supported Cipher Suites
//
//   - AES-256-GCM: the only suite of format v1 and the default of v2
//   - ChaCha20-Poly1305: available in format v2
//
// # Key Derivation
//
// The key is derived with Argon2id from the password and a random 16-byte
// salt. The salt and the cost parameters (time, memory in KiB and
// parallelism) are stored in the header, so extraction needs only the
// password. The key is derived again on every call.
//
// # Basic Usage
//
//	base, _ := memfs.NewFS()
//	p, err := encpack.New(base, encpack.DefaultConfig())
//	if err != nil {
//	    panic(err)
//	}
//
//	entries, _ := p.CollectEntries("/docs")
//	err = p.Build(entries, []byte("correct horse"), "/docs.epk", encpack.DefaultKDFParams())
//
//	info, _ := p.Inspect("/docs.epk")
//	dir, err := p.Extract("/docs.epk", []byte("correct horse"), "/restore")
//
// The package-level Build, Inspect, Extract and Verify functions do the
// same on the host filesystem.
//
// # File Format
//
// See format.go for the byte layout. Format v1 is the original layout.
// Format v2 adds a cipher suite byte to the header and a trailer holding a
// SHA-256 digest of the metadata and an end marker; a v2 package without
// the trailer was never finalized and is reported as truncated.
//
// # Errors
//
// Every failure matches one of ErrNotAPackage, ErrTruncatedFile,
// ErrInvalidMetadata, ErrInvalidParameter, ErrAuthFailed, ErrPathEscape or
// ErrIOFailure with errors.Is. A wrong password and a tampered chunk both
// produce ErrAuthFailed.
package encpack
