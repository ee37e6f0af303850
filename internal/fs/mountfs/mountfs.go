// This is based on testing/fstest, go1.25.2:
// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// Altered to take a map of prefixes to fs.FS instances,
// allowing us to simplify the code a little.

package mountfs

import (
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// A MountFS presents a set of fs.FS instances as a single filesystem, each
// mounted under its prefix. Parent directories of mount points are
// synthesized on demand.
//
// File system operations must not run concurrently with changes to the
// map, which would be a race.
type MountFS map[string]fs.FS

func New(m map[string]fs.FS) MountFS {
	return m
}

// A mountFile describes a synthesized directory entry in a [MountFS].
type mountFile struct {
	Mode    fs.FileMode
	ModTime time.Time
}

var _ fs.FS = MountFS(nil)

// Open opens the named file.
func (fsys MountFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	name = filepath.ToSlash(name)
	if sub := fsys[name]; sub != nil {
		return &mntDir{path: name, fileInfo: fileInfo{name: path.Base(name), f: &mountFile{Mode: fs.ModeDir | 0555}}, fsys: sub}, nil
	}
	for prefix := range fsys {
		if strings.HasPrefix(name, prefix+"/") {
			return fsys[prefix].Open(name[len(prefix)+1:])
		}
	}

	// Directory, possibly synthesized from mount prefixes.
	synthesize := make(map[string]bool)
	if name == "." {
		for prefix := range fsys {
			i := strings.Index(prefix, "/")
			if i < 0 {
				if prefix != "." {
					synthesize[prefix] = true
				}
			} else {
				synthesize[prefix[:i]] = true
			}
		}
	} else {
		dir := name + "/"
		for prefix := range fsys {
			if strings.HasPrefix(prefix, dir) {
				elem := prefix[len(dir):]
				if i := strings.Index(elem, "/"); i < 0 {
					synthesize[elem] = true
				} else {
					synthesize[elem[:i]] = true
				}
			}
		}
		// Neither a mount point nor a parent of one: does not exist.
		if len(synthesize) == 0 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
	}

	list := make([]fileInfo, 0, len(synthesize))
	for entry := range synthesize {
		list = append(list, fileInfo{name: entry, f: &mountFile{Mode: fs.ModeDir | 0555}})
	}
	slices.SortFunc(list, func(a, b fileInfo) int {
		return strings.Compare(a.name, b.name)
	})

	var elem string
	if name == "." {
		elem = "."
	} else {
		elem = name[strings.LastIndex(name, "/")+1:]
	}
	return &mountDir{path: name, fileInfo: fileInfo{name: elem, f: &mountFile{Mode: fs.ModeDir | 0555}}, entry: list}, nil
}

// A fileInfo implements fs.FileInfo and fs.DirEntry for a synthesized entry.
type fileInfo struct {
	name string
	f    *mountFile
}

func (i *fileInfo) Name() string               { return path.Base(i.name) }
func (i *fileInfo) Size() int64                { return 0 }
func (i *fileInfo) Mode() fs.FileMode          { return i.f.Mode }
func (i *fileInfo) Type() fs.FileMode          { return i.f.Mode.Type() }
func (i *fileInfo) ModTime() time.Time         { return i.f.ModTime }
func (i *fileInfo) IsDir() bool                { return i.f.Mode&fs.ModeDir != 0 }
func (i *fileInfo) Sys() any                   { return nil }
func (i *fileInfo) Info() (fs.FileInfo, error) { return i, nil }

func (i *fileInfo) String() string {
	return fs.FormatFileInfo(i)
}

// A mountDir is a synthesized directory open for reading.
type mountDir struct {
	path string
	fileInfo
	entry  []fileInfo
	offset int
}

func (d *mountDir) Stat() (fs.FileInfo, error) { return &d.fileInfo, nil }
func (*mountDir) Close() error                 { return nil }
func (d *mountDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.path, Err: fs.ErrInvalid}
}

func (d *mountDir) ReadDir(count int) ([]fs.DirEntry, error) {
	n := len(d.entry) - d.offset
	if n == 0 && count > 0 {
		return nil, io.EOF
	}
	if count > 0 && n > count {
		n = count
	}
	list := make([]fs.DirEntry, n)
	for i := range list {
		list[i] = &d.entry[d.offset+i]
	}
	d.offset += n
	return list, nil
}

// A mntDir is a mount point directory deferring reads to the mounted fs.
type mntDir struct {
	path string
	fileInfo
	fsys fs.FS
}

func (*mntDir) Close() error                 { return nil }
func (d *mntDir) Stat() (fs.FileInfo, error) { return &d.fileInfo, nil }
func (d *mntDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.path, Err: fs.ErrInvalid}
}

func (d *mntDir) ReadDir(int) ([]fs.DirEntry, error) {
	return fs.ReadDir(d.fsys, ".") // NB: ignoring the count is fine for our usage.
}
