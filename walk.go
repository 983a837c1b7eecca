package encpack

import (
	"fmt"
	"path"
	"sort"

	"github.com/absfs/absfs"
)

// CollectEntries expands roots into package entries. A file root becomes
// one entry named by its base name. A directory root is walked
// recursively and its files are named relative to the directory.
func CollectEntries(fs absfs.FileSystem, roots ...string) ([]Entry, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}

	var entries []Entry
	seen := make(map[string]string)
	for _, root := range roots {
		info, err := fs.Stat(root)
		if err != nil {
			return nil, NewIOError("stat", root, err)
		}

		var found []Entry
		if info.IsDir() {
			if err := walkDir(fs, root, "", &found); err != nil {
				return nil, err
			}
			sort.Slice(found, func(i, j int) bool {
				return found[i].RelativePath < found[j].RelativePath
			})
		} else {
			found = []Entry{{SourcePath: root, RelativePath: path.Base(NormalizeRelativePath(root))}}
		}

		for _, e := range found {
			if prev, dup := seen[e.RelativePath]; dup {
				return nil, NewValidationError("relative_path", e.RelativePath,
					fmt.Sprintf("%s and %s map to the same package path", prev, e.SourcePath))
			}
			seen[e.RelativePath] = e.SourcePath
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func walkDir(fs absfs.FileSystem, dir, rel string, out *[]Entry) error {
	f, err := fs.Open(dir)
	if err != nil {
		return NewIOError("open", dir, err)
	}
	infos, err := f.Readdir(-1)
	f.Close()
	if err != nil {
		return NewIOError("readdir", dir, err)
	}

	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}
		src := path.Join(dir, name)
		relPath := path.Join(rel, name)
		switch {
		case info.IsDir():
			if err := walkDir(fs, src, relPath, out); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			*out = append(*out, Entry{SourcePath: src, RelativePath: relPath})
		}
	}
	return nil
}

// CollectEntries expands roots on the packer's filesystem
func (p *Packer) CollectEntries(roots ...string) ([]Entry, error) {
	return CollectEntries(p.fs, roots...)
}
