package fs

import (
	"io/fs"

	"github.com/gobwas/glob"
)

// FilterFS applies include/exclude glob filters on top of another fs.FS.
// Directories always remain traversable; only files are filtered. A file is
// visible if it matches at least one include pattern (or the include list is
// empty) and matches no exclude pattern.
type FilterFS struct {
	fsys     fs.FS
	included []glob.Glob
	excluded []glob.Glob
}

// NewFilterFS compiles the given glob patterns ('/'-separated) and wraps fsys.
// With no patterns, fsys is returned as-is.
func NewFilterFS(fsys fs.FS, included, excluded []string) (fs.FS, error) {
	if len(included) == 0 && len(excluded) == 0 {
		return fsys, nil
	}

	f := &FilterFS{fsys: fsys}

	for _, pattern := range included {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		f.included = append(f.included, g)
	}

	for _, pattern := range excluded {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		f.excluded = append(f.excluded, g)
	}

	return f, nil
}

func (f *FilterFS) visible(name string) bool {
	if len(f.included) > 0 {
		var ok bool
		for _, g := range f.included {
			if g.Match(name) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	for _, g := range f.excluded {
		if g.Match(name) {
			return false
		}
	}

	return true
}

func (f *FilterFS) Open(name string) (fs.File, error) {
	file, err := f.fsys.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if info.IsDir() {
		if d, ok := file.(fs.ReadDirFile); ok {
			return &filterDir{ReadDirFile: d, fsys: f, path: name}, nil
		}
		return file, nil
	}

	if !f.visible(name) {
		file.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	return file, nil
}

type filterDir struct {
	fs.ReadDirFile
	fsys *FilterFS
	path string
}

func (d *filterDir) ReadDir(count int) ([]fs.DirEntry, error) {
	// Filtering on top of counted reads would need buffering; everything in
	// this codebase reads directories whole.
	entries, err := d.ReadDirFile.ReadDir(count)
	if err != nil {
		return entries, err
	}

	filtered := entries[:0]
	for _, e := range entries {
		name := e.Name()
		if d.path != "." {
			name = d.path + "/" + name
		}
		if e.IsDir() || d.fsys.visible(name) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}
