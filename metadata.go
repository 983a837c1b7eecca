package encpack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// MetadataSchemaVersion is the schema version written into v2 metadata
const MetadataSchemaVersion = 2

// ChunkRef locates one chunk record of a file
type ChunkRef struct {
	Index  uint32 `json:"index"`
	Offset int64  `json:"offset"`
}

// FileEntry describes one packaged file
type FileEntry struct {
	Path   string     `json:"path"` // Forward-slash relative path
	Size   int64      `json:"size"` // Original size in bytes
	Chunks []ChunkRef `json:"chunks"`
}

// Metadata is the trailing block that describes how to reassemble files
type Metadata struct {
	Files     []FileEntry
	CreatedAt time.Time
	ChunkSize int // 0 when unknown (v1 packages)
}

// TotalSize returns the sum of all original file sizes
func (m *Metadata) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// ChunkCount returns the number of chunk records referenced
func (m *Metadata) ChunkCount() int {
	var n int
	for _, f := range m.Files {
		n += len(f.Chunks)
	}
	return n
}

// metadataV2 is the JSON document written by FormatV2
type metadataV2 struct {
	Version   int         `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	ChunkSize int         `json:"chunk_size"`
	Files     []FileEntry `json:"files"`
}

// metadataV1 is the JSON document of the original tool; the key names
// are part of the v1 format.
type metadataV1 struct {
	Files     []fileEntryV1 `json:"dosyalar"`
	CreatedAt *float64      `json:"olusturma_tarihi"`
}

type fileEntryV1 struct {
	Path   *string      `json:"goreceli_yol"`
	Size   *int64       `json:"orjinal_boyut"`
	Chunks []chunkRefV1 `json:"chunklar"`
}

type chunkRefV1 struct {
	Index *uint32 `json:"index"`
	Pos   *int64  `json:"pos"`
}

// MarshalMetadata encodes metadata in the schema of the given format
func MarshalMetadata(m *Metadata, version FormatVersion) ([]byte, error) {
	switch version {
	case FormatV1:
		doc := metadataV1{Files: make([]fileEntryV1, 0, len(m.Files))}
		created := float64(m.CreatedAt.UnixNano()) / 1e9
		doc.CreatedAt = &created
		for i := range m.Files {
			f := &m.Files[i]
			entry := fileEntryV1{
				Path:   &f.Path,
				Size:   &f.Size,
				Chunks: make([]chunkRefV1, 0, len(f.Chunks)),
			}
			for j := range f.Chunks {
				c := &f.Chunks[j]
				entry.Chunks = append(entry.Chunks, chunkRefV1{Index: &c.Index, Pos: &c.Offset})
			}
			doc.Files = append(doc.Files, entry)
		}
		return json.Marshal(doc)
	case FormatV2:
		files := make([]FileEntry, len(m.Files))
		copy(files, m.Files)
		for i := range files {
			if files[i].Chunks == nil {
				files[i].Chunks = []ChunkRef{}
			}
		}
		return json.Marshal(metadataV2{
			Version:   MetadataSchemaVersion,
			CreatedAt: m.CreatedAt.UTC(),
			ChunkSize: m.ChunkSize,
			Files:     files,
		})
	default:
		return nil, ErrUnsupportedVersion
	}
}

// UnmarshalMetadata decodes a metadata block. Unknown fields and missing
// required fields are rejected.
func UnmarshalMetadata(data []byte, version FormatVersion) (*Metadata, error) {
	switch version {
	case FormatV1:
		return unmarshalV1(data)
	case FormatV2:
		return unmarshalV2(data)
	default:
		return nil, ErrUnsupportedVersion
	}
}

func strictDecode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalidMetadata(fmt.Sprintf("failed to parse metadata: %v", err))
	}
	if dec.More() {
		return invalidMetadata("trailing data after metadata document")
	}
	return nil
}

func unmarshalV2(data []byte) (*Metadata, error) {
	var doc struct {
		Version   *int         `json:"version"`
		CreatedAt *time.Time   `json:"created_at"`
		ChunkSize *int         `json:"chunk_size"`
		Files     *[]FileEntry `json:"files"`
	}
	if err := strictDecode(data, &doc); err != nil {
		return nil, err
	}
	switch {
	case doc.Version == nil:
		return nil, invalidMetadata("missing version")
	case *doc.Version != MetadataSchemaVersion:
		return nil, invalidMetadata(fmt.Sprintf("unsupported metadata schema version %d", *doc.Version))
	case doc.CreatedAt == nil:
		return nil, invalidMetadata("missing created_at")
	case doc.ChunkSize == nil:
		return nil, invalidMetadata("missing chunk_size")
	case doc.Files == nil:
		return nil, invalidMetadata("missing files")
	}
	if err := ValidateChunkSize(*doc.ChunkSize); err != nil {
		return nil, invalidMetadata(err.Error())
	}
	return &Metadata{
		Files:     *doc.Files,
		CreatedAt: *doc.CreatedAt,
		ChunkSize: *doc.ChunkSize,
	}, nil
}

func unmarshalV1(data []byte) (*Metadata, error) {
	var doc metadataV1
	if err := strictDecode(data, &doc); err != nil {
		return nil, err
	}
	if doc.CreatedAt == nil {
		return nil, invalidMetadata("missing olusturma_tarihi")
	}
	if doc.Files == nil {
		return nil, invalidMetadata("missing dosyalar")
	}
	if math.IsNaN(*doc.CreatedAt) || math.IsInf(*doc.CreatedAt, 0) {
		return nil, invalidMetadata("invalid creation timestamp")
	}

	sec, frac := math.Modf(*doc.CreatedAt)
	m := &Metadata{
		Files:     make([]FileEntry, 0, len(doc.Files)),
		CreatedAt: time.Unix(int64(sec), int64(frac*1e9)).UTC(),
	}
	for i, f := range doc.Files {
		if f.Path == nil || f.Size == nil || f.Chunks == nil {
			return nil, invalidMetadata(fmt.Sprintf("file entry %d is missing a required field", i))
		}
		entry := FileEntry{Path: *f.Path, Size: *f.Size, Chunks: make([]ChunkRef, 0, len(f.Chunks))}
		for j, c := range f.Chunks {
			if c.Index == nil || c.Pos == nil {
				return nil, invalidMetadata(fmt.Sprintf("chunk %d of %q is missing a required field", j, *f.Path))
			}
			entry.Chunks = append(entry.Chunks, ChunkRef{Index: *c.Index, Offset: *c.Pos})
		}
		m.Files = append(m.Files, entry)
	}
	return m, nil
}

// Validate checks the structural invariants of the metadata against the
// chunk region [dataStart, dataEnd) of the package file.
func (m *Metadata) Validate(dataStart, dataEnd int64) error {
	seen := make(map[string]struct{}, len(m.Files))
	for _, f := range m.Files {
		if err := ValidateRelativePath(f.Path); err != nil {
			return err
		}
		if _, dup := seen[f.Path]; dup {
			return invalidMetadata(fmt.Sprintf("duplicate entry %q", f.Path))
		}
		seen[f.Path] = struct{}{}

		if f.Size < 0 {
			return invalidMetadata(fmt.Sprintf("%q has negative size", f.Path))
		}
		if f.Size == 0 && len(f.Chunks) != 0 {
			return invalidMetadata(fmt.Sprintf("%q is empty but lists chunks", f.Path))
		}
		if f.Size > 0 && len(f.Chunks) == 0 {
			return invalidMetadata(fmt.Sprintf("%q has no chunks", f.Path))
		}
		if m.ChunkSize > 0 {
			want := (f.Size + int64(m.ChunkSize) - 1) / int64(m.ChunkSize)
			if int64(len(f.Chunks)) != want {
				return invalidMetadata(fmt.Sprintf("%q lists %d chunks, expected %d", f.Path, len(f.Chunks), want))
			}
		}
		for i, c := range f.Chunks {
			if c.Index != uint32(i) {
				return invalidMetadata(fmt.Sprintf("%q chunk %d has index %d", f.Path, i, c.Index))
			}
			if c.Offset < dataStart || c.Offset >= dataEnd {
				return invalidMetadata(fmt.Sprintf("%q chunk %d offset %d outside chunk region", f.Path, i, c.Offset))
			}
		}
	}
	return nil
}

func invalidMetadata(msg string) error {
	return NewCorruptionError("", ErrInvalidMetadata, msg)
}
