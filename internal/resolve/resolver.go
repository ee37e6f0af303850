package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// ErrNotFound reports that a package is not resolvable on the module path.
var ErrNotFound = errors.New("package not found")

// Package is a resolved third-party package install.
type Package struct {
	Name  string
	Dir   string // directory containing the entry file
	Entry string // path of the package entry file
}

// Resolver locates installed packages by name. Implementations are injected
// into the augmenter so it can be exercised without a real package index.
type Resolver interface {
	Resolve(name string) (Package, error)
}

// DirResolver resolves packages against a list of module directories
// (node_modules layout), first hit wins. Resolution reads the package
// manifest to find the entry file; the install directory is the entry file's
// containing directory.
type DirResolver struct {
	moduleDirs []string
}

func NewDirResolver(moduleDirs ...string) *DirResolver {
	return &DirResolver{moduleDirs: moduleDirs}
}

// manifest is the subset of package.json we interpret.
type manifest struct {
	Main string `json:"main"`
}

const (
	manifestFile = "package.json"
	defaultEntry = "index.js"
)

func (r *DirResolver) Resolve(name string) (Package, error) {
	if name == "" {
		return Package{}, fmt.Errorf("empty package name: %w", ErrNotFound)
	}

	for _, dir := range r.moduleDirs {
		pkgDir := filepath.Join(dir, filepath.FromSlash(name))
		entry, err := entryFile(pkgDir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Package{}, fmt.Errorf("failed to resolve package %q: %w", name, err)
		}

		return Package{Name: name, Entry: entry, Dir: filepath.Dir(entry)}, nil
	}

	return Package{}, fmt.Errorf("cannot resolve package %q: %w", name, ErrNotFound)
}

// entryFile returns the path of the package's entry file under pkgDir. The
// manifest's "main" field wins; without a manifest (or without "main") the
// default index.js applies. The entry file must exist.
func entryFile(pkgDir string) (string, error) {
	entry := defaultEntry

	bs, err := os.ReadFile(filepath.Join(pkgDir, manifestFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// no manifest, fall through to the default entry
	case err != nil:
		return "", err
	default:
		var m manifest
		if err := yaml.Unmarshal(bs, &m); err != nil {
			return "", fmt.Errorf("invalid manifest in %s: %w", pkgDir, err)
		}
		if m.Main != "" {
			entry = m.Main
		}
	}

	path := filepath.Join(pkgDir, filepath.FromSlash(entry))
	if _, err := os.Stat(path); err != nil {
		return "", err
	}

	return path, nil
}
