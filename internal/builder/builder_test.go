package builder_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bundlesmith/bundlesmith/internal/builder"
	"github.com/bundlesmith/bundlesmith/internal/config"
	"github.com/bundlesmith/bundlesmith/internal/test/tempfs"
)

func TestBuilder(t *testing.T) {

	type sourceMock struct {
		name          string
		mount         string
		files         map[string]string
		includedFiles []string
		excludedFiles []string
	}

	cases := []struct {
		note     string
		sources  []sourceMock
		rules    config.Rules
		excluded []string
		exp      map[string]string
	}{
		{
			note: "no rules copies through",
			sources: []sourceMock{
				{
					name: "src",
					files: map[string]string{
						"main.js":   `const a = 1;`,
						"data.json": `{"a": 1}`,
					},
				},
			},
			exp: map[string]string{
				"main.js":   `const a = 1;`,
				"data.json": `{"a": 1}`,
			},
		},
		{
			note: "first matching rule wins",
			sources: []sourceMock{
				{
					name: "src",
					files: map[string]string{
						"main.js": `const a = 1;`,
					},
				},
			},
			rules: config.Rules{
				{
					Test: config.MustNewPattern(`\.js$`),
					Use: []config.LoaderRef{{
						Loader:  "transpile",
						Options: map[string]any{"presets": []any{"env"}},
					}},
				},
				{
					// never reached: the rule above already matched
					Test: config.MustNewPattern(`main\.js$`),
					Use:  []config.LoaderRef{{Loader: "missing"}},
				},
			},
			exp: map[string]string{
				"main.js": `var a = 1;`,
			},
		},
		{
			note: "include scopes a rule to a mounted package",
			sources: []sourceMock{
				{
					name: "src",
					files: map[string]string{
						"main.js": `const app = 1;`,
					},
				},
				{
					name:  "candela",
					mount: "node_modules/candela",
					files: map[string]string{
						"index.js": `const pkg = 1;`,
					},
				},
			},
			rules: config.Rules{
				{
					Test:    config.MustNewPattern(`node_modules/candela.*\.js$`),
					Include: config.StringSet{"node_modules/candela"},
					Use: []config.LoaderRef{{
						Loader:  "transpile",
						Options: map[string]any{"presets": []any{"env"}},
					}},
				},
			},
			exp: map[string]string{
				"main.js":                       `const app = 1;`,
				"node_modules/candela/index.js": `var pkg = 1;`,
			},
		},
		{
			note: "json loader compacts",
			sources: []sourceMock{
				{
					name: "src",
					files: map[string]string{
						"data.json": "{\n  \"a\": 1\n}",
					},
				},
			},
			rules: config.Rules{
				{
					Test: config.MustNewPattern(`\.json$`),
					Use:  []config.LoaderRef{{Loader: "json"}},
				},
			},
			exp: map[string]string{
				"data.json": `{"a":1}`,
			},
		},
		{
			note: "source include and exclude filters",
			sources: []sourceMock{
				{
					name: "src",
					files: map[string]string{
						"main.js":      `const a = 1;`,
						"main.test.js": `const t = 1;`,
						"README.md":    `# readme`,
					},
					includedFiles: []string{"*.js"},
					excludedFiles: []string{"*.test.js"},
				},
			},
			exp: map[string]string{
				"main.js": `const a = 1;`,
			},
		},
		{
			note: "pipeline-level exclusion",
			sources: []sourceMock{
				{
					name: "src",
					files: map[string]string{
						"main.js":          `const a = 1;`,
						"vendor/bundle.js": `const v = 1;`,
					},
				},
			},
			excluded: []string{"vendor/**"},
			exp: map[string]string{
				"main.js": `const a = 1;`,
			},
		},
		{
			note: "empty sources are skipped",
			sources: []sourceMock{
				{
					name: "src",
					files: map[string]string{
						"main.js": `const a = 1;`,
					},
				},
				{
					name:          "empty",
					mount:         "node_modules/empty",
					files:         map[string]string{".keep": ``},
					includedFiles: []string{"*.js"},
				},
			},
			exp: map[string]string{
				"main.js": `const a = 1;`,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			allFiles := map[string]string{}
			for i, src := range tc.sources {
				for k, v := range src.files {
					allFiles[fmt.Sprintf("src%d/%v", i, k)] = v
				}
			}

			tempfs.WithTempFS(t, allFiles, func(t *testing.T, root string) {
				buf := bytes.NewBuffer(nil)

				var srcs []*builder.Source
				for i, src := range tc.sources {
					s := builder.NewSource(src.name)
					if src.mount != "" {
						s = s.WithMount(src.mount)
					}
					if err := s.AddDir(builder.Dir{
						Path:          filepath.Join(root, fmt.Sprintf("src%d", i)),
						IncludedFiles: src.includedFiles,
						ExcludedFiles: src.excludedFiles,
					}); err != nil {
						t.Fatal(err)
					}
					srcs = append(srcs, s)
				}

				result, err := builder.New().
					WithPipeline("test").
					WithSources(srcs).
					WithRules(tc.rules).
					WithExcluded(tc.excluded).
					WithOutput(buf).
					Build(t.Context())
				if err != nil {
					t.Fatal(err)
				}

				if exp, act := len(tc.exp), result.FileCount; exp != act {
					t.Fatalf("expected %d files, got %d", exp, act)
				}
				if result.Revision == "" {
					t.Fatal("expected a revision")
				}

				got := readArchive(t, buf)
				delete(got, builder.ManifestPath)
				if diff := cmp.Diff(tc.exp, got); diff != "" {
					t.Fatalf("unexpected artifact contents (-want +got):\n%s", diff)
				}
			})
		})
	}
}

func TestBuilderRevisionStability(t *testing.T) {
	files := map[string]string{
		"src/a.js": `const a = 1;`,
		"src/b.js": `const b = 2;`,
	}

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		build := func(t *testing.T) *builder.Result {
			t.Helper()
			s := builder.NewSource("src")
			if err := s.AddDir(builder.Dir{Path: filepath.Join(root, "src")}); err != nil {
				t.Fatal(err)
			}
			result, err := builder.New().WithPipeline("test").WithSources([]*builder.Source{s}).Build(t.Context())
			if err != nil {
				t.Fatal(err)
			}
			return result
		}

		r1, r2 := build(t), build(t)
		if r1.Revision != r2.Revision {
			t.Fatalf("expected stable revision, got %q and %q", r1.Revision, r2.Revision)
		}
	})
}

func TestBuilderManifest(t *testing.T) {
	files := map[string]string{
		"src/main.js": `const a = 1;`,
	}

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		buf := bytes.NewBuffer(nil)

		s := builder.NewSource("src")
		if err := s.AddDir(builder.Dir{Path: filepath.Join(root, "src")}); err != nil {
			t.Fatal(err)
		}

		result, err := builder.New().
			WithPipeline("app").
			WithSources([]*builder.Source{s}).
			WithOutput(buf).
			Build(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		m, err := builder.ReadManifest(buf)
		if err != nil {
			t.Fatal(err)
		}

		if m.Pipeline != "app" || m.Revision != result.Revision || m.Files != 1 || m.BuiltAt == "" {
			t.Fatalf("unexpected manifest %+v", m)
		}
	})
}

func TestBuilderUnknownLoader(t *testing.T) {
	files := map[string]string{
		"src/main.js": `const a = 1;`,
	}

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		s := builder.NewSource("src")
		if err := s.AddDir(builder.Dir{Path: filepath.Join(root, "src")}); err != nil {
			t.Fatal(err)
		}

		_, err := builder.New().
			WithSources([]*builder.Source{s}).
			WithRules(config.Rules{{
				Test: config.MustNewPattern(`\.js$`),
				Use:  []config.LoaderRef{{Loader: "sass"}},
			}}).
			Build(t.Context())
		if err == nil {
			t.Fatal("expected unknown loader error")
		}
	})
}

func readArchive(t *testing.T, r io.Reader) map[string]string {
	t.Helper()

	gz, err := gzip.NewReader(r)
	if err != nil {
		t.Fatal(err)
	}
	defer gz.Close()

	files := map[string]string{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files
		}
		if err != nil {
			t.Fatal(err)
		}
		bs, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		files[hdr.Name] = string(bs)
	}
}
