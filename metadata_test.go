package encpack

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func sampleMetadata() *Metadata {
	return &Metadata{
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 500_000_000, time.UTC),
		ChunkSize: 64,
		Files: []FileEntry{
			{Path: "a.txt", Size: 100, Chunks: []ChunkRef{{0, 30}, {1, 120}}},
			{Path: "dir/empty", Size: 0, Chunks: []ChunkRef{}},
			{Path: "dir/b.bin", Size: 64, Chunks: []ChunkRef{{0, 200}}},
		},
	}
}

func TestMetadata_RoundTrip(t *testing.T) {
	for _, version := range []FormatVersion{FormatV1, FormatV2} {
		t.Run(version.String(), func(t *testing.T) {
			m := sampleMetadata()
			data, err := MarshalMetadata(m, version)
			if err != nil {
				t.Fatalf("MarshalMetadata failed: %v", err)
			}

			got, err := UnmarshalMetadata(data, version)
			if err != nil {
				t.Fatalf("UnmarshalMetadata failed: %v", err)
			}
			if len(got.Files) != len(m.Files) {
				t.Fatalf("got %d files, want %d", len(got.Files), len(m.Files))
			}
			for i, f := range got.Files {
				want := m.Files[i]
				if f.Path != want.Path || f.Size != want.Size || len(f.Chunks) != len(want.Chunks) {
					t.Errorf("file %d = %+v, want %+v", i, f, want)
				}
				for j := range f.Chunks {
					if f.Chunks[j] != want.Chunks[j] {
						t.Errorf("file %d chunk %d = %+v, want %+v", i, j, f.Chunks[j], want.Chunks[j])
					}
				}
			}
			if d := got.CreatedAt.Sub(m.CreatedAt); d < -time.Millisecond || d > time.Millisecond {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, m.CreatedAt)
			}
			if err := got.Validate(30, 1000); version == FormatV2 && err != nil {
				t.Errorf("Validate failed: %v", err)
			}
		})
	}
}

func TestMetadata_V1Keys(t *testing.T) {
	data, err := MarshalMetadata(sampleMetadata(), FormatV1)
	if err != nil {
		t.Fatalf("MarshalMetadata failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if _, ok := doc["olusturma_tarihi"].(float64); !ok {
		t.Errorf("missing float olusturma_tarihi in %s", data)
	}
	files, ok := doc["dosyalar"].([]any)
	if !ok || len(files) != 3 {
		t.Fatalf("dosyalar = %v", doc["dosyalar"])
	}
	first := files[0].(map[string]any)
	for _, key := range []string{"goreceli_yol", "orjinal_boyut", "chunklar"} {
		if _, ok := first[key]; !ok {
			t.Errorf("file entry is missing %q", key)
		}
	}
	chunk := first["chunklar"].([]any)[0].(map[string]any)
	if _, ok := chunk["pos"]; !ok {
		t.Error("chunk entry is missing \"pos\"")
	}
}

func TestMetadata_V2EmptyChunksIsArray(t *testing.T) {
	m := &Metadata{ChunkSize: 64, Files: []FileEntry{{Path: "empty"}}}
	data, err := MarshalMetadata(m, FormatV2)
	if err != nil {
		t.Fatalf("MarshalMetadata failed: %v", err)
	}
	if !strings.Contains(string(data), `"chunks":[]`) {
		t.Errorf("empty file should encode an empty chunk list: %s", data)
	}
	if m.Files[0].Chunks != nil {
		t.Error("MarshalMetadata modified its input")
	}
}

func TestUnmarshalMetadata_Strict(t *testing.T) {
	tests := []struct {
		name    string
		version FormatVersion
		data    string
	}{
		{"not json", FormatV2, `not json`},
		{"trailing data", FormatV2, `{"version":2,"created_at":"2024-01-01T00:00:00Z","chunk_size":64,"files":[]} {}`},
		{"unknown field", FormatV2, `{"version":2,"created_at":"2024-01-01T00:00:00Z","chunk_size":64,"files":[],"extra":1}`},
		{"missing version", FormatV2, `{"created_at":"2024-01-01T00:00:00Z","chunk_size":64,"files":[]}`},
		{"wrong version", FormatV2, `{"version":3,"created_at":"2024-01-01T00:00:00Z","chunk_size":64,"files":[]}`},
		{"missing files", FormatV2, `{"version":2,"created_at":"2024-01-01T00:00:00Z","chunk_size":64}`},
		{"bad chunk size", FormatV2, `{"version":2,"created_at":"2024-01-01T00:00:00Z","chunk_size":1,"files":[]}`},
		{"v1 missing timestamp", FormatV1, `{"dosyalar":[]}`},
		{"v1 missing size", FormatV1, `{"dosyalar":[{"goreceli_yol":"a","chunklar":[]}],"olusturma_tarihi":1.5}`},
		{"v1 missing pos", FormatV1, `{"dosyalar":[{"goreceli_yol":"a","orjinal_boyut":1,"chunklar":[{"index":0}]}],"olusturma_tarihi":1.5}`},
		{"v1 unknown field", FormatV1, `{"dosyalar":[],"olusturma_tarihi":1.5,"surum":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalMetadata([]byte(tt.data), tt.version)
			if !errors.Is(err, ErrInvalidMetadata) {
				t.Fatalf("UnmarshalMetadata() error = %v, want ErrInvalidMetadata", err)
			}
		})
	}
}

func TestMetadata_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Metadata)
		want   error
	}{
		{"valid", func(m *Metadata) {}, nil},
		{"escape", func(m *Metadata) { m.Files[0].Path = "../evil" }, ErrPathEscape},
		{"absolute", func(m *Metadata) { m.Files[0].Path = "/etc/passwd" }, ErrPathEscape},
		{"duplicate", func(m *Metadata) { m.Files[2].Path = "a.txt" }, ErrInvalidMetadata},
		{"negative size", func(m *Metadata) { m.Files[1].Size = -1 }, ErrInvalidMetadata},
		{"index gap", func(m *Metadata) { m.Files[0].Chunks[1].Index = 2 }, ErrInvalidMetadata},
		{"offset before region", func(m *Metadata) { m.Files[0].Chunks[0].Offset = 10 }, ErrInvalidMetadata},
		{"offset after region", func(m *Metadata) { m.Files[0].Chunks[1].Offset = 1000 }, ErrInvalidMetadata},
		{"too few chunks", func(m *Metadata) { m.Files[0].Chunks = m.Files[0].Chunks[:1] }, ErrInvalidMetadata},
		{"empty with chunks", func(m *Metadata) { m.Files[1].Chunks = []ChunkRef{{0, 40}} }, ErrInvalidMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleMetadata()
			tt.mutate(m)
			err := m.Validate(30, 1000)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMetadata_Totals(t *testing.T) {
	m := sampleMetadata()
	if m.TotalSize() != 164 {
		t.Errorf("TotalSize() = %d, want 164", m.TotalSize())
	}
	if m.ChunkCount() != 3 {
		t.Errorf("ChunkCount() = %d, want 3", m.ChunkCount())
	}
}
