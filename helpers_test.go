package encpack

import (
	"bytes"
	"io"
	"os"
	"path"
	"sort"
	"testing"
	"time"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
)

// testPassword is used by every test that does not check wrong passwords
var testPassword = []byte("correct horse battery staple")

// testParams keeps Argon2id cheap in tests
func testParams() KDFParams {
	return KDFParams{TimeCost: 1, MemoryCost: 64, Parallelism: 1}
}

// fixedNow returns a clock frozen at a known instant
func fixedNow() time.Time {
	return time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)
}

func newTestFS(t testing.TB) absfs.FileSystem {
	t.Helper()
	fs, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("failed to create memfs: %v", err)
	}
	return fs
}

func newTestPacker(t testing.TB, fs absfs.FileSystem, config *Config) *Packer {
	t.Helper()
	if config == nil {
		config = DefaultConfig()
	}
	if config.Now == nil {
		config.Now = fixedNow
	}
	p, err := New(fs, config)
	if err != nil {
		t.Fatalf("failed to create packer: %v", err)
	}
	return p
}

func writeTestFile(t testing.TB, fs absfs.FileSystem, name string, data []byte) {
	t.Helper()
	if dir := path.Dir(name); dir != "/" && dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("MkdirAll(%q) failed: %v", dir, err)
		}
	}
	f, err := fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		t.Fatalf("Write(%q) failed: %v", name, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close(%q) failed: %v", name, err)
	}
}

func readTestFile(t testing.TB, fs absfs.FileSystem, name string) []byte {
	t.Helper()
	f, err := fs.Open(name)
	if err != nil {
		t.Fatalf("Open(%q) failed: %v", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll(%q) failed: %v", name, err)
	}
	return data
}

// patternData returns n bytes that differ between chunks
func patternData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

// buildTestPackage writes files to fs and packs them into pkg
func buildTestPackage(t testing.TB, p *Packer, pkg string, files map[string][]byte) {
	t.Helper()
	fs := p.FileSystem()
	var entries []Entry
	for _, rel := range sortedKeys(files) {
		src := path.Join("/src", rel)
		writeTestFile(t, fs, src, files[rel])
		entries = append(entries, Entry{SourcePath: src, RelativePath: rel})
	}
	if err := p.Build(entries, testPassword, pkg, testParams()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// rawPackage returns the bytes of a package file
func rawPackage(t testing.TB, fs absfs.FileSystem, name string) []byte {
	t.Helper()
	return readTestFile(t, fs, name)
}

// overwritePackage replaces a package file with data
func overwritePackage(t testing.TB, fs absfs.FileSystem, name string, data []byte) {
	t.Helper()
	writeTestFile(t, fs, name, data)
}

func assertFileEquals(t testing.TB, fs absfs.FileSystem, name string, want []byte) {
	t.Helper()
	got := readTestFile(t, fs, name)
	if !bytes.Equal(got, want) {
		t.Fatalf("%s: content mismatch (got %d bytes, want %d bytes)", name, len(got), len(want))
	}
}
