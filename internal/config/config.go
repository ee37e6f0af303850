package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"time"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"
)

// Internal configuration data structures for bundlesmith.

// Metadata contains metadata about the configuration file itself. It is not
// interpreted by the service; tooling uses it to track generated documents.
type Metadata struct {
	GeneratedBy string `json:"generated_by"`
	GeneratedAt string `json:"generated_at"`

	_ struct{} `additionalProperties:"false"`
}

// Root is the top-level configuration structure used by bundlesmith.
type Root struct {
	Metadata  Metadata             `json:"metadata"`
	Pipelines map[string]*Pipeline `json:"pipelines,omitempty"`
	RulePacks map[string]*RulePack `json:"rule_packs,omitempty"`
	Resolver  *Resolver            `json:"resolver,omitempty"`
	Database  *Database            `json:"database,omitempty"`
	Service   *Service             `json:"service,omitempty"`
}

// SetSQLitePersistentByDefault sets the database configuration to use a SQLite
// database stored in the given persistence directory if no other database
// configuration exists. The 'run' command uses this to change its default
// behavior from other commands.
func (r *Root) SetSQLitePersistentByDefault(persistenceDir string) bool {
	if r.Database == nil {
		r.Database = &Database{}
	}

	if r.Database.SQL == nil {
		r.Database.SQL = &SQLDatabase{}
	}

	switch r.Database.SQL.Driver {
	case "", "sqlite3", "sqlite":
		if r.Database.SQL.DSN == "" {
			r.Database.SQL.Driver = "sqlite"
			r.Database.SQL.DSN = filepath.Join(persistenceDir, "sqlite.db")
		}
		return true
	}
	return false
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Root struct.
// This lets us define resources in a more user-friendly way with mappings
// where keys are the resource names.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal(r)
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal(r)
}

func (*Root) unmarshal(raw *Root) error {
	for name := range raw.Pipelines {
		raw.Pipelines[name] = cmp.Or(raw.Pipelines[name], &Pipeline{})
		raw.Pipelines[name].Name = name
	}

	for name := range raw.RulePacks {
		raw.RulePacks[name] = cmp.Or(raw.RulePacks[name], &RulePack{})
		raw.RulePacks[name].Name = name
	}

	return nil
}

func (r *Root) SortedPipelines() iter.Seq2[int, *Pipeline] {
	return iterator(r.Pipelines, func(p *Pipeline) string { return p.Name })
}

func (r *Root) SortedRulePacks() iter.Seq2[int, *RulePack] {
	return iterator(r.RulePacks, func(p *RulePack) string { return p.Name })
}

// PackRulesFor returns the rules contributed by rule packs whose selectors
// match the pipeline's labels, in pack name order.
func (r *Root) PackRulesFor(p *Pipeline) Rules {
	var rules Rules
	for _, pack := range r.SortedRulePacks() {
		if pack.Selector.Matches(p.Labels) && !pack.ExcludeSelector.PtrMatches(p.Labels) {
			rules = append(rules, pack.Rules...)
		}
	}
	return rules
}

func iterator[V any](m map[string]V, name func(V) string) func(func(int, V) bool) {
	names := make([]string, 0, len(m))
	for _, v := range m {
		names = append(names, name(v))
	}

	sort.Strings(names)

	return func(yield func(int, V) bool) {
		for i, name := range names {
			if !yield(i, m[name]) {
				return
			}
		}
	}
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

// Pipeline defines the configuration for a single build pipeline.
type Pipeline struct {
	Name          string       `json:"name"`
	Labels        Labels       `json:"labels,omitempty"`
	Entries       []Entry      `json:"entries,omitempty"`
	Dependencies  Dependencies `json:"dependencies,omitempty"`
	Rules         Rules        `json:"rules,omitempty"`
	Output        Output       `json:"output,omitzero"`
	ExcludedFiles StringSet    `json:"excluded_files,omitempty"`
	Interval      Duration     `json:"rebuild_interval,omitzero"`

	_ struct{} `additionalProperties:"false"`
}

func (p *Pipeline) UnmarshalJSON(bs []byte) error {
	type rawPipeline Pipeline // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawPipeline

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode pipeline: %w", err)
	}

	*p = Pipeline(raw)
	return p.validate()
}

func (p *Pipeline) UnmarshalYAML(bs []byte) error {
	type rawPipeline Pipeline
	var raw rawPipeline

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode pipeline: %w", err)
	}

	*p = Pipeline(raw)
	return p.validate()
}

func (p *Pipeline) validate() error {
	for _, pattern := range p.ExcludedFiles {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("failed to compile excluded file pattern %q: %w", pattern, err)
		}
	}

	for i := range p.Dependencies {
		if p.Dependencies[i].Package == "" {
			return errors.New("dependency package name is required")
		}
	}

	return p.Output.validate()
}

func (p *Pipeline) Equal(other *Pipeline) bool {
	return fastEqual(p, other, func(p, other *Pipeline) bool {
		return p.Name == other.Name &&
			maps.Equal(p.Labels, other.Labels) &&
			slices.EqualFunc(p.Entries, other.Entries, Entry.Equal) &&
			p.Dependencies.Equal(other.Dependencies) &&
			p.Rules.Equal(other.Rules) &&
			p.Output.Equal(&other.Output) &&
			p.ExcludedFiles.Equal(other.ExcludedFiles) &&
			p.Interval == other.Interval
	})
}

type Pipelines []*Pipeline

func (a Pipelines) Equal(b Pipelines) bool {
	return setEqual(a, b, func(p *Pipeline) string { return p.Name }, (*Pipeline).Equal)
}

// Entry names a directory of first-party sources feeding a pipeline.
type Entry struct {
	Path          string    `json:"path"`
	IncludedFiles StringSet `json:"included_files,omitempty"`
	ExcludedFiles StringSet `json:"excluded_files,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (e Entry) Equal(other Entry) bool {
	return e.Path == other.Path &&
		e.IncludedFiles.Equal(other.IncludedFiles) &&
		e.ExcludedFiles.Equal(other.ExcludedFiles)
}

// Dependency names a third-party package whose sources get a transpile rule
// appended at configuration load (see the augment package).
type Dependency struct {
	Package string `json:"package"`
	Preset  string `json:"preset,omitempty"` // defaults to "env"

	_ struct{} `additionalProperties:"false"`
}

func (d Dependency) Equal(other Dependency) bool {
	return d == other
}

type Dependencies []Dependency

func (a Dependencies) Equal(b Dependencies) bool {
	return slices.EqualFunc(a, b, Dependency.Equal)
}

// RulePack attaches shared rules to every pipeline whose labels match the
// selector.
type RulePack struct {
	Name            string    `json:"name"`
	Selector        Selector  `json:"selector"` // Schema validation overrides Selector to object of string array values.
	ExcludeSelector *Selector `json:"exclude_selector,omitempty"`
	Rules           Rules     `json:"rules,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (a *RulePack) Equal(other *RulePack) bool {
	return fastEqual(a, other, func(a, other *RulePack) bool {
		return a.Name == other.Name &&
			a.Selector.Equal(other.Selector) &&
			a.ExcludeSelector.PtrEqual(other.ExcludeSelector) &&
			a.Rules.Equal(other.Rules)
	})
}

type RulePacks []*RulePack

func (a RulePacks) Equal(b RulePacks) bool {
	return setEqual(a, b, func(p *RulePack) string { return p.Name }, (*RulePack).Equal)
}

// Resolver configures where installed packages are looked up.
type Resolver struct {
	ModuleDirs StringSet `json:"module_dirs,omitempty"`
	CacheSize  int       `json:"cache_size,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (r *Resolver) Equal(other *Resolver) bool {
	return fastEqual(r, other, func(r, other *Resolver) bool {
		return r.ModuleDirs.Equal(other.ModuleDirs) && r.CacheSize == other.CacheSize
	})
}

// Duration marshals as strings like "5m" or "0.5s" instead of int64.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	val, err := time.ParseDuration(str)
	*d = Duration(val)
	return err
}

func (d *Duration) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	val, err := time.ParseDuration(s)
	*d = Duration(val)
	return err
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

type Labels map[string]string

type Selector struct {
	s map[string]StringSet
	m map[string][]glob.Glob // Pre-compiled glob patterns for faster matching
}

func MustNewSelector(s map[string]StringSet) Selector {
	ss := Selector{s: make(map[string]StringSet), m: make(map[string][]glob.Glob)}
	for key, value := range s {
		if err := ss.Set(key, value); err != nil {
			panic(err)
		}
	}

	return ss
}

func (*Selector) PrepareJSONSchema(schema *jsonschema.Schema) error {
	str := jsonschema.String.ToSchemaOrBool()

	arr := jsonschema.Array.ToSchemaOrBool()
	arr.TypeObject.ItemsEns().SchemaOrBool = &str

	schema.Type = nil
	schema.AddType(jsonschema.Object)
	schema.AdditionalProperties = &arr

	return nil
}

// Matches checks if the given labels match the selector. Empty selector value
// matches any label value.
func (s *Selector) Matches(labels Labels) bool {
	for expLabel, expValues := range s.m {
		v, ok := labels[expLabel]
		if !ok || (len(expValues) > 0 && !slices.ContainsFunc(expValues, func(ev glob.Glob) bool { return ev.Match(v) })) {
			return false
		}
	}
	return true
}

func (s Selector) Equal(other Selector) bool {
	return maps.EqualFunc(s.s, other.s, StringSet.Equal)
}

func (s *Selector) PtrMatches(labels Labels) bool {
	if s == nil {
		return false
	}
	return s.Matches(labels)
}

func (s *Selector) PtrEqual(other *Selector) bool {
	if s == other {
		return true
	} else if s == nil || other == nil {
		return false
	}
	return s.Equal(*other)
}

func (s Selector) MarshalYAML() (any, error) {
	return maps.Clone(s.s), nil
}

func (s Selector) MarshalJSON() ([]byte, error) {
	x, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return json.Marshal(x)
}

func (s *Selector) UnmarshalYAML(bs []byte) error {
	raw := make(map[string][]string)
	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return err
	}

	return s.unmarshal(raw)
}

func (s *Selector) UnmarshalJSON(bs []byte) error {
	raw := make(map[string][]string)
	if err := json.Unmarshal(bs, &raw); err != nil {
		return err
	}

	return s.unmarshal(raw)
}

func (s *Selector) unmarshal(raw map[string][]string) error {
	*s = Selector{s: make(map[string]StringSet), m: make(map[string][]glob.Glob)}
	for key, value := range raw {
		if err := s.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Selector) Get(key string) ([]string, bool) {
	s.init()
	v, ok := s.s[key]
	return v, ok
}

func (s *Selector) Keys() []string {
	s.init()
	return slices.Collect(maps.Keys(s.s))
}

func (s *Selector) Set(key string, value []string) error {
	s.init()

	if len(value) > 0 {
		for _, v := range value {
			g, err := glob.Compile(v)
			if err != nil {
				return fmt.Errorf("failed to decode value for key %q: %w", key, err)
			}
			s.m[key] = append(s.m[key], g)
		}
	} else {
		s.m[key] = []glob.Glob{}
	}

	s.s[key] = value
	return nil
}

func (s *Selector) Len() int {
	return len(s.s)
}

func (s *Selector) init() {
	if s.s == nil {
		s.s = make(map[string]StringSet)
		s.m = make(map[string][]glob.Glob)
	}
}

type StringSet []string

func (a StringSet) Equal(b StringSet) bool {
	return setEqual(a, b, func(s string) string { return s }, func(a, b string) bool { return a == b })
}

func (a StringSet) Add(value string) StringSet {
	i := sort.Search(len(a), func(i int) bool { return a[i] >= value })
	if i < len(a) && a[i] == value {
		return a
	}

	return slices.Insert(a, i, value)
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	return Parse(bs)
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &root, nil
}

// Output defines where a pipeline's built artifact goes.
type Output struct {
	FileSystem *FileSystemStorage `json:"filesystem,omitempty"`
}

func (o *Output) Equal(other *Output) bool {
	return fastEqual(o, other, func(o, other *Output) bool {
		return o.FileSystem.Equal(other.FileSystem)
	})
}

func (o *Output) validate() error {
	return o.FileSystem.validate()
}

// FileSystemStorage defines the configuration for a local filesystem artifact.
type FileSystemStorage struct {
	Path string `json:"path"` // Path to the artifact on the local filesystem.
}

func (f *FileSystemStorage) Equal(other *FileSystemStorage) bool {
	return fastEqual(f, other, func(f, other *FileSystemStorage) bool {
		return f.Path == other.Path
	})
}

func (f *FileSystemStorage) validate() error {
	if f == nil {
		return nil
	}

	if f.Path == "" {
		return errors.New("filesystem storage path is required")
	}

	return nil
}

type Database struct {
	SQL *SQLDatabase `json:"sql,omitempty"`
}

type SQLDatabase struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type Service struct {
	// Addr is the listen address for the status API, e.g. "localhost:8282".
	Addr string `json:"addr,omitempty"`
	// ApiPrefix prefixes all endpoints (including health and metrics) with its
	// value. It must start with `/` and not end with `/`.
	ApiPrefix string   `json:"api_prefix,omitempty" pattern:"^/([^/].*[^/])?$"`
	Workers   int      `json:"workers,omitempty"`
	_         struct{} `additionalProperties:"false"`
}

func setEqual[K comparable, V any](a, b []V, key func(V) K, eq func(a, b V) bool) bool {
	if len(a) == 1 && len(b) == 1 {
		return eq(a[0], b[0])
	}

	m := make(map[K]V, len(a))
	for _, v := range a {
		m[key(v)] = v
	}

	n := make(map[K]V, len(b))
	for _, v := range b {
		n[key(v)] = v
	}

	return maps.EqualFunc(m, n, eq)
}

func fastEqual[V any](a, b *V, slowEqual func(a, b *V) bool) bool {
	if a == b {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	return slowEqual(a, b)
}

// Pattern is a regular expression that marshals as its source text.
type Pattern struct {
	src string
	re  *regexp.Regexp
}

func MustNewPattern(src string) Pattern {
	p, err := NewPattern(src)
	if err != nil {
		panic(err)
	}
	return p
}

func NewPattern(src string) (Pattern, error) {
	re, err := regexp.Compile(src)
	if err != nil {
		return Pattern{}, fmt.Errorf("failed to compile rule pattern %q: %w", src, err)
	}
	return Pattern{src: src, re: re}, nil
}

func (p Pattern) String() string { return p.src }

func (p Pattern) MatchString(s string) bool {
	if p.re == nil {
		return false
	}
	return p.re.MatchString(s)
}

func (p Pattern) Equal(other Pattern) bool { return p.src == other.src }

func (*Pattern) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.AddType(jsonschema.String)
	return nil
}

func (p Pattern) MarshalYAML() (any, error) {
	return p.src, nil
}

func (p Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.src)
}

func (p *Pattern) UnmarshalYAML(bs []byte) error {
	var src string
	if err := yaml.Unmarshal(bs, &src); err != nil {
		return fmt.Errorf("expected scalar node: %w", err)
	}
	var err error
	*p, err = NewPattern(src)
	return err
}

func (p *Pattern) UnmarshalJSON(bs []byte) error {
	var src string
	if err := json.Unmarshal(bs, &src); err != nil {
		return err
	}
	var err error
	*p, err = NewPattern(src)
	return err
}
