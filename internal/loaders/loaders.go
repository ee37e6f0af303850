// Package loaders implements the processing steps a rule's loader chain
// refers to by name.
package loaders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// A Loader transforms the content of one matched file. Options carry the
// configuration mapping from the rule's loader reference.
type Loader interface {
	Process(ctx context.Context, path string, content []byte, options map[string]any) ([]byte, error)
}

// Registry maps loader names to implementations.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns a registry with the built-in loaders (transpile, json,
// raw) registered.
func NewRegistry() *Registry {
	r := &Registry{loaders: map[string]Loader{}}
	r.Register("transpile", &Transpile{})
	r.Register("json", &JSON{})
	r.Register("raw", &Raw{})
	return r
}

func (r *Registry) Register(name string, l Loader) {
	r.loaders[name] = l
}

func (r *Registry) Get(name string) (Loader, error) {
	l, ok := r.loaders[name]
	if !ok {
		return nil, fmt.Errorf("unknown loader %q", name)
	}
	return l, nil
}

// Raw passes file content through unchanged.
type Raw struct{}

func (*Raw) Process(_ context.Context, _ string, content []byte, _ map[string]any) ([]byte, error) {
	return content, nil
}

// JSON validates and compacts JSON documents.
type JSON struct{}

func (*JSON) Process(_ context.Context, path string, content []byte, _ map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, content); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return buf.Bytes(), nil
}
