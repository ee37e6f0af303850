// Package augment appends transformation rules to pipeline configurations.
// Augmenters are designed as links in a chain: each receives a pipeline,
// mutates its rule list by appending, and hands the same reference on.
package augment

import (
	"cmp"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/bundlesmith/bundlesmith/internal/config"
	"github.com/bundlesmith/bundlesmith/internal/resolve"
)

// An Augmenter rewrites a pipeline configuration and returns it for the next
// augmenter in the chain.
type Augmenter func(*config.Pipeline) (*config.Pipeline, error)

const (
	// TranspileLoader is the loader name referenced by appended rules.
	TranspileLoader = "transpile"

	// DefaultPreset targets broadly-compatible output syntax.
	DefaultPreset = "env"
)

// ShapeError reports a malformed input configuration, e.g. a nil pipeline
// with no rule list to append to.
type ShapeError struct {
	msg string
}

func (e *ShapeError) Error() string {
	return e.msg
}

// TranspileDependency returns an augmenter that resolves the install
// directory of the named package and appends exactly one rule to the
// pipeline: files under that directory ending in .js run through the
// transpile loader with the given preset (DefaultPreset if empty).
//
// The matcher carries both the directory-scoped pattern test and the include
// allow-list; the pattern is the gate, the include list restricts the files
// considered. Pre-existing rules are never removed, reordered, or inspected,
// so applying the augmenter twice appends two identical rules. If the package
// does not resolve, the error propagates and the pipeline is left unmodified.
func TranspileDependency(resolver resolve.Resolver, pkg, preset string) Augmenter {
	return func(p *config.Pipeline) (*config.Pipeline, error) {
		if p == nil {
			return nil, &ShapeError{msg: "pipeline has no rule list to append to"}
		}

		installed, err := resolver.Resolve(pkg)
		if err != nil {
			return nil, err
		}

		dir := filepath.ToSlash(installed.Dir)
		test, err := config.NewPattern(regexp.QuoteMeta(dir) + `.*\.js$`)
		if err != nil {
			return nil, fmt.Errorf("failed to build matcher for package %q: %w", pkg, err)
		}

		p.Rules = append(p.Rules, config.Rule{
			Test:    test,
			Include: config.StringSet{dir},
			Use: []config.LoaderRef{{
				Loader:  TranspileLoader,
				Options: map[string]any{"presets": []any{cmp.Or(preset, DefaultPreset)}},
			}},
		})

		return p, nil
	}
}

// Dependencies chains one TranspileDependency augmenter per configured
// dependency, in order.
func Dependencies(resolver resolve.Resolver, deps config.Dependencies) Augmenter {
	augmenters := make([]Augmenter, len(deps))
	for i, d := range deps {
		augmenters[i] = TranspileDependency(resolver, d.Package, d.Preset)
	}
	return Chain(augmenters...)
}

// Chain composes augmenters left to right, stopping at the first error.
func Chain(augmenters ...Augmenter) Augmenter {
	return func(p *config.Pipeline) (*config.Pipeline, error) {
		var err error
		for _, a := range augmenters {
			if p, err = a(p); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
}
