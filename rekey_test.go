package encpack

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/absfs/absfs"
)

func TestRekey_InPlace(t *testing.T) {
	fs := newTestFS(t)
	p := newTestPacker(t, fs, &Config{ChunkSize: 64})
	files := map[string][]byte{
		"a.txt":     patternData(200),
		"empty.txt": {},
		"d/b.txt":   []byte("short"),
	}
	buildTestPackage(t, p, "/test.epk", files)
	before, _ := p.Inspect("/test.epk")

	newPassword := []byte("a brand new passphrase")
	err := p.Rekey("/test.epk", testPassword, RekeyOptions{NewPassword: newPassword})
	if err != nil {
		t.Fatalf("Rekey failed: %v", err)
	}

	after, err := p.Inspect("/test.epk")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if bytes.Equal(before.Salt, after.Salt) {
		t.Error("Rekey kept the old salt")
	}
	if after.KDF != before.KDF || after.Cipher != before.Cipher || after.Format != before.Format {
		t.Errorf("Rekey changed parameters: %+v -> %+v", before, after)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", after.CreatedAt, before.CreatedAt)
	}

	if _, err := p.Verify("/test.epk", testPassword); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("old password still works: %v", err)
	}
	dir, err := p.Extract("/test.epk", newPassword, "/out")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for rel, want := range files {
		assertFileEquals(t, fs, dir+"/"+rel, want)
	}

	if names := listDir(t, fs, "/"); len(names) != 3 {
		// test.epk, src and out; no temporary package left behind
		t.Errorf("unexpected root entries %v", names)
	}
}

func TestRekey_UpgradeFormat(t *testing.T) {
	fs := newTestFS(t)
	p := newTestPacker(t, fs, &Config{Format: FormatV1, ChunkSize: 64})
	buildTestPackage(t, p, "/old.epk", map[string][]byte{"f.bin": patternData(150)})

	err := p.Rekey("/old.epk", testPassword, RekeyOptions{
		NewPassword: testPassword,
		Format:      FormatV2,
		Cipher:      CipherChaCha20Poly1305,
		OutputPath:  "/new.epk",
	})
	if err != nil {
		t.Fatalf("Rekey failed: %v", err)
	}

	old, err := p.Inspect("/old.epk")
	if err != nil || old.Format != FormatV1 {
		t.Fatalf("source package changed: %+v, %v", old, err)
	}
	info, err := p.Inspect("/new.epk")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Format != FormatV2 || info.Cipher != CipherChaCha20Poly1305 {
		t.Errorf("new package is %v/%v", info.Format, info.Cipher)
	}
	if info.ChunkSize != 64 {
		t.Errorf("ChunkSize = %d, want 64", info.ChunkSize)
	}

	report, err := p.Verify("/new.epk", testPassword)
	if err != nil || report.Bytes != 150 {
		t.Fatalf("Verify = %+v, %v", report, err)
	}
}

func TestRekey_Errors(t *testing.T) {
	fs := newTestFS(t)
	p := newTestPacker(t, fs, nil)
	buildTestPackage(t, p, "/test.epk", map[string][]byte{"f": []byte("data")})
	original := rawPackage(t, fs, "/test.epk")

	if err := p.Rekey("/test.epk", []byte("wrong"), RekeyOptions{NewPassword: []byte("x")}); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("wrong password: got %v, want ErrAuthFailed", err)
	}
	if err := p.Rekey("/test.epk", testPassword, RekeyOptions{}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("empty new password: got %v, want ErrInvalidParameter", err)
	}
	err := p.Rekey("/test.epk", testPassword, RekeyOptions{
		NewPassword: []byte("x"),
		Format:      FormatV1,
		Cipher:      CipherChaCha20Poly1305,
	})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("v1 with chacha: got %v, want ErrInvalidParameter", err)
	}

	if !bytes.Equal(rawPackage(t, fs, "/test.epk"), original) {
		t.Fatal("failed Rekey modified the package")
	}
	if names := listDir(t, fs, "/"); len(names) != 2 {
		t.Errorf("unexpected root entries %v", names)
	}
}

// renameFS refuses the renames selected by refuse
type renameFS struct {
	absfs.FileSystem
	refuse func(fs absfs.FileSystem, oldpath, newpath string) bool
}

func (fs *renameFS) Rename(oldpath, newpath string) error {
	if fs.refuse(fs.FileSystem, oldpath, newpath) {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: os.ErrPermission}
	}
	return fs.FileSystem.Rename(oldpath, newpath)
}

func TestRekey_InPlaceRenameFailures(t *testing.T) {
	exists := func(fs absfs.FileSystem, name string) bool {
		_, err := fs.Stat(name)
		return err == nil
	}

	tests := []struct {
		name    string
		refuse  func(fs absfs.FileSystem, oldpath, newpath string) bool
		wantErr bool
	}{
		{
			name:    "every rename refused",
			refuse:  func(absfs.FileSystem, string, string) bool { return true },
			wantErr: true,
		},
		{
			name:   "existing target refused",
			refuse: func(fs absfs.FileSystem, _, newpath string) bool { return exists(fs, newpath) },
		},
		{
			name: "new package cannot be moved",
			refuse: func(_ absfs.FileSystem, oldpath, _ string) bool {
				return strings.Contains(oldpath, ".rekey-")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &renameFS{FileSystem: newTestFS(t), refuse: tt.refuse}
			p := newTestPacker(t, fs, &Config{ChunkSize: 64})
			buildTestPackage(t, p, "/test.epk", map[string][]byte{"f.bin": patternData(150)})
			original := rawPackage(t, fs, "/test.epk")

			newPassword := []byte("another passphrase")
			err := p.Rekey("/test.epk", testPassword, RekeyOptions{NewPassword: newPassword})

			if tt.wantErr {
				if !errors.Is(err, ErrIOFailure) {
					t.Fatalf("Rekey() error = %v, want ErrIOFailure", err)
				}
				if !bytes.Equal(rawPackage(t, fs, "/test.epk"), original) {
					t.Fatal("original package changed after a failed replace")
				}
				if _, err := p.Verify("/test.epk", testPassword); err != nil {
					t.Fatalf("original no longer verifies: %v", err)
				}
			} else {
				if err != nil {
					t.Fatalf("Rekey failed: %v", err)
				}
				if _, err := p.Verify("/test.epk", newPassword); err != nil {
					t.Fatalf("rekeyed package does not verify: %v", err)
				}
			}

			// test.epk and src; no temporary or backup package left behind
			if names := listDir(t, fs, "/"); len(names) != 2 {
				t.Errorf("unexpected root entries %v", names)
			}
		})
	}
}
