package builder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/yalue/merged_fs"

	"github.com/bundlesmith/bundlesmith/internal/config"
	bsm_fs "github.com/bundlesmith/bundlesmith/internal/fs"
	"github.com/bundlesmith/bundlesmith/internal/fs/mountfs"
	"github.com/bundlesmith/bundlesmith/internal/loaders"
)

// Source is one tree of files feeding a pipeline build. Entry directories
// mount at the artifact root; resolved packages mount under their install
// path so directory-scoped rules see the paths they were built against.
type Source struct {
	Name  string
	Mount string // artifact path prefix, empty for the root

	// dirs record the underlying OS directories, kept for diagnostics
	dirs []Dir

	// fses are the fs.FS instances used for building, with per-source
	// includes/excludes already applied
	fses []fs.FS
}

// Dir is a directory on the local filesystem to include as a source.
type Dir struct {
	Path          string   // local fs path to source files
	IncludedFiles []string // inclusion filter on files to load from path
	ExcludedFiles []string // exclusion filter on files to skip from path
}

func NewSource(name string) *Source {
	return &Source{Name: name}
}

func (s *Source) WithMount(mount string) *Source {
	s.Mount = strings.Trim(path.Clean("/"+strings.TrimSuffix(mount, "/")), "/")
	return s
}

func (s *Source) AddDir(d Dir) error {
	s.dirs = append(s.dirs, d)

	f, err := bsm_fs.NewFilterFS(os.DirFS(d.Path), d.IncludedFiles, d.ExcludedFiles)
	if err != nil {
		return err
	}
	s.AddFS(f)
	return nil
}

func (s *Source) AddFS(f fs.FS) {
	s.fses = append(s.fses, f)
}

// Builder assembles a pipeline's sources, applies its transformation rules
// and writes the artifact.
type Builder struct {
	pipeline string
	sources  []*Source
	rules    config.Rules
	registry *loaders.Registry
	excluded []string
	output   io.Writer
}

// Result describes a finished build.
type Result struct {
	Revision  string
	FileCount int
}

func New() *Builder {
	return &Builder{registry: loaders.NewRegistry()}
}

func (b *Builder) WithPipeline(name string) *Builder {
	b.pipeline = name
	return b
}

func (b *Builder) WithSources(srcs []*Source) *Builder {
	b.sources = srcs
	return b
}

func (b *Builder) WithRules(rules config.Rules) *Builder {
	b.rules = rules
	return b
}

func (b *Builder) WithLoaders(registry *loaders.Registry) *Builder {
	b.registry = registry
	return b
}

func (b *Builder) WithExcluded(excluded []string) *Builder {
	b.excluded = excluded
	return b
}

func (b *Builder) WithOutput(w io.Writer) *Builder {
	b.output = w
	return b
}

// Build merges the sources into one tree, runs every file through the first
// matching rule's loader chain (unmatched files copy through), and writes a
// gzipped tar artifact with a build manifest. The revision is a digest over
// the processed content, stable across rebuilds of identical input.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	fsys, err := b.assemble()
	if err != nil {
		return nil, err
	}

	paths := []string{}
	if err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, p)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk sources: %w", err)
	}
	sort.Strings(paths)

	digest := sha256.New()
	files := make([]file, 0, len(paths))

	for _, p := range paths {
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, err
		}

		processed, err := b.process(ctx, "/"+p, content)
		if err != nil {
			return nil, err
		}

		fmt.Fprintf(digest, "%s\x00", p)
		digest.Write(processed)
		files = append(files, file{path: p, content: processed})
	}

	result := &Result{
		Revision:  hex.EncodeToString(digest.Sum(nil)),
		FileCount: len(files),
	}

	if b.output != nil {
		if err := writeArchive(b.output, b.pipeline, result.Revision, files); err != nil {
			return nil, fmt.Errorf("write artifact: %w", err)
		}
	}

	return result, nil
}

// process runs content through the loader chain of the first rule matching
// the file's absolute-style path.
func (b *Builder) process(ctx context.Context, path string, content []byte) ([]byte, error) {
	i := slices.IndexFunc(b.rules, func(r config.Rule) bool { return r.Matches(path) })
	if i < 0 {
		return content, nil
	}

	for _, use := range b.rules[i].Use {
		loader, err := b.registry.Get(use.Loader)
		if err != nil {
			return nil, err
		}

		content, err = loader.Process(ctx, path, content, use.Options)
		if err != nil {
			return nil, fmt.Errorf("loader %q on %s: %w", use.Loader, path, err)
		}
	}

	return content, nil
}

// assemble merges all source filesystems, mounting prefixed sources under
// their mount path and applying the pipeline-level exclusion filter on top.
func (b *Builder) assemble() (fs.FS, error) {
	var root []fs.FS
	prefixed := map[string][]fs.FS{}

	for _, src := range b.sources {
		for _, f := range src.fses {
			files, err := bsm_fs.FSContainsFiles(f)
			if err != nil {
				return nil, fmt.Errorf("source %s check files: %w", src.Name, err)
			}
			if !files {
				continue
			}

			if src.Mount == "" {
				root = append(root, f)
			} else {
				prefixed[src.Mount] = append(prefixed[src.Mount], f)
			}
		}
	}

	mounts := make(map[string]fs.FS, len(prefixed))
	for prefix, fses := range prefixed {
		mounts[prefix] = merged_fs.MergeMultiple(fses...)
	}
	if len(mounts) > 0 {
		root = append(root, mountfs.New(mounts))
	}

	return bsm_fs.NewFilterFS(merged_fs.MergeMultiple(root...), nil, b.excluded)
}

type file struct {
	path    string
	content []byte
}
