package loaders

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-viper/mapstructure/v2"
)

// Transpile downlevels source syntax according to named presets. This is a
// line-level rewrite, not a parser; JS semantic fidelity is out of scope.
type Transpile struct{}

type transpileOptions struct {
	Presets []string `mapstructure:"presets"`
}

type preset func(content []byte) []byte

var presets = map[string]preset{
	"env": envPreset,
}

func (*Transpile) Process(_ context.Context, path string, content []byte, options map[string]any) ([]byte, error) {
	var opts transpileOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("invalid transpile options for %s: %w", path, err)
	}

	for _, name := range opts.Presets {
		p, ok := presets[name]
		if !ok {
			return nil, fmt.Errorf("unknown transpile preset %q", name)
		}
		content = p(content)
	}

	return content, nil
}

var blockScopedDecl = regexp.MustCompile(`\b(const|let)\b`)

// envPreset rewrites block-scoped declarations to var declarations so the
// output runs on environments without const/let support.
func envPreset(content []byte) []byte {
	return blockScopedDecl.ReplaceAll(content, []byte("var"))
}
