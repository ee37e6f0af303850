package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

// Rule pairs a resource matcher with an ordered loader chain. A file is
// processed by the first rule that matches it.
type Rule struct {
	Test    Pattern     `json:"test"`
	Include StringSet   `json:"include,omitempty"`
	Exclude StringSet   `json:"exclude,omitempty"`
	Use     []LoaderRef `json:"use"`

	_ struct{} `additionalProperties:"false"`
}

// Matches reports whether the rule applies to the file at path. The include
// list restricts matching to files physically located under one of its
// directories, and the pattern test is the actual gate. Both conditions must
// hold. The two checks are intentionally not collapsed into one.
func (r Rule) Matches(path string) bool {
	if len(r.Include) > 0 && !slices.ContainsFunc(r.Include, func(dir string) bool { return within(path, dir) }) {
		return false
	}

	if slices.ContainsFunc(r.Exclude, func(dir string) bool { return within(path, dir) }) {
		return false
	}

	return r.Test.MatchString(path)
}

func (r *Rule) UnmarshalJSON(bs []byte) error {
	type rawRule Rule // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawRule

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode rule: %w", err)
	}

	*r = Rule(raw)
	return r.validate()
}

func (r *Rule) UnmarshalYAML(bs []byte) error {
	type rawRule Rule
	var raw rawRule

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode rule: %w", err)
	}

	*r = Rule(raw)
	return r.validate()
}

func (r *Rule) validate() error {
	if r.Test.String() == "" {
		return errors.New("rule test pattern is required")
	}

	if len(r.Use) == 0 {
		return errors.New("rule needs at least one loader")
	}

	for _, u := range r.Use {
		if u.Loader == "" {
			return errors.New("loader name is required")
		}
	}

	return nil
}

func (r Rule) Equal(other Rule) bool {
	return r.Test.Equal(other.Test) &&
		r.Include.Equal(other.Include) &&
		r.Exclude.Equal(other.Exclude) &&
		slices.EqualFunc(r.Use, other.Use, LoaderRef.Equal)
}

// Rules is an ordered sequence; order determines match precedence, so
// equality is positional.
type Rules []Rule

func (a Rules) Equal(b Rules) bool {
	return slices.EqualFunc(a, b, Rule.Equal)
}

// LoaderRef names a processing step and its configuration mapping.
type LoaderRef struct {
	Loader  string         `json:"loader"`
	Options map[string]any `json:"options,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (l LoaderRef) Equal(other LoaderRef) bool {
	return l.Loader == other.Loader && reflect.DeepEqual(l.Options, other.Options)
}

// within reports whether path sits at or below dir. Both are slash paths; a
// leading slash is insignificant.
func within(path, dir string) bool {
	if dir == "" {
		return true
	}
	path = strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/")
	dir = strings.TrimSuffix(strings.TrimPrefix(dir, "/"), "/")
	return path == dir || strings.HasPrefix(path, dir+"/")
}
