package fs

import (
	"errors"
	"io/fs"
	"os"
	"testing/fstest"
)

// FSContainsFiles returns true if the given fs.FS contains any files, and false otherwise.
func FSContainsFiles(fsys fs.FS) (bool, error) {
	// errFound is a sentinel error used to stop the walk when a file is found.
	errFound := os.ErrExist

	err := fs.WalkDir(fsys, ".", func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return errFound
		}
		return nil
	})
	if err == errFound {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// MapFS builds an in-memory fs.FS from a path -> content map. Test helper.
func MapFS(m map[string]string) fs.FS {
	m0 := make(map[string]*fstest.MapFile, len(m))
	for p, f := range m {
		m0[p] = &fstest.MapFile{Data: []byte(f)}
	}
	return fstest.MapFS(m0)
}
