package encpack

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestCipherEngines(t *testing.T) {
	suites := []CipherSuite{CipherAES256GCM, CipherChaCha20Poly1305}

	for _, suite := range suites {
		t.Run(suite.String(), func(t *testing.T) {
			engine, err := NewCipherEngine(suite, testKey(t))
			if err != nil {
				t.Fatalf("NewCipherEngine failed: %v", err)
			}
			if engine.NonceSize() != NonceSize {
				t.Errorf("NonceSize() = %d, want %d", engine.NonceSize(), NonceSize)
			}
			if engine.Overhead() != 16 {
				t.Errorf("Overhead() = %d, want 16", engine.Overhead())
			}

			for _, size := range []int{0, 1, 1000, 64 * 1024} {
				plaintext := patternData(size)
				nonce, ciphertext, err := EncryptChunk(engine, plaintext)
				if err != nil {
					t.Fatalf("EncryptChunk(%d) failed: %v", size, err)
				}
				if len(ciphertext) != size+engine.Overhead() {
					t.Errorf("ciphertext length = %d, want %d", len(ciphertext), size+engine.Overhead())
				}

				got, err := DecryptChunk(engine, nonce, ciphertext)
				if err != nil {
					t.Fatalf("DecryptChunk(%d) failed: %v", size, err)
				}
				if !bytes.Equal(got, plaintext) {
					t.Fatalf("round trip mismatch for %d bytes", size)
				}
			}
		})
	}
}

func TestEncryptChunk_FreshNonce(t *testing.T) {
	engine, err := NewAESGCMEngine(testKey(t))
	if err != nil {
		t.Fatalf("NewAESGCMEngine failed: %v", err)
	}

	plaintext := []byte("same plaintext")
	n1, c1, _ := EncryptChunk(engine, plaintext)
	n2, c2, _ := EncryptChunk(engine, plaintext)

	if bytes.Equal(n1, n2) {
		t.Error("two encryptions reused a nonce")
	}
	if bytes.Equal(c1, c2) {
		t.Error("two encryptions produced identical ciphertext")
	}
}

func TestDecryptChunk_AuthFailures(t *testing.T) {
	key := testKey(t)
	engine, _ := NewAESGCMEngine(key)
	nonce, ciphertext, err := EncryptChunk(engine, []byte("attack at dawn"))
	if err != nil {
		t.Fatalf("EncryptChunk failed: %v", err)
	}

	flip := func(b []byte, i int) []byte {
		out := append([]byte(nil), b...)
		out[i] ^= 0x01
		return out
	}

	wrongKey := testKey(t)
	wrongEngine, _ := NewAESGCMEngine(wrongKey)

	tests := []struct {
		name       string
		engine     CipherEngine
		nonce      []byte
		ciphertext []byte
	}{
		{"wrong key", wrongEngine, nonce, ciphertext},
		{"flipped nonce", engine, flip(nonce, 0), ciphertext},
		{"flipped ciphertext", engine, nonce, flip(ciphertext, 0)},
		{"flipped tag", engine, nonce, flip(ciphertext, len(ciphertext)-1)},
		{"short nonce", engine, nonce[:8], ciphertext},
		{"short ciphertext", engine, nonce, ciphertext[:4]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptChunk(tt.engine, tt.nonce, tt.ciphertext)
			if !errors.Is(err, ErrAuthFailed) {
				t.Fatalf("DecryptChunk() error = %v, want ErrAuthFailed", err)
			}
		})
	}
}

func TestNewCipherEngine_Errors(t *testing.T) {
	if _, err := NewCipherEngine(CipherAES256GCM, make([]byte, 16)); !IsValidationError(err) {
		t.Errorf("short key: got %v, want ValidationError", err)
	}
	if _, err := NewCipherEngine(CipherSuite(99), testKey(t)); !errors.Is(err, ErrUnsupportedCipher) {
		t.Errorf("unknown suite: got %v, want ErrUnsupportedCipher", err)
	}
}

func TestParseCipherSuite(t *testing.T) {
	tests := []struct {
		in      string
		want    CipherSuite
		wantErr bool
	}{
		{"", CipherAuto, false},
		{"aes-256-gcm", CipherAES256GCM, false},
		{"aes", CipherAES256GCM, false},
		{"chacha20-poly1305", CipherChaCha20Poly1305, false},
		{"rot13", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseCipherSuite(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCipherSuite(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCipherSuite(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
