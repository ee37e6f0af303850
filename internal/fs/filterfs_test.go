package fs_test

import (
	"errors"
	io_fs "io/fs"
	"slices"
	"testing"

	bsm_fs "github.com/bundlesmith/bundlesmith/internal/fs"
)

func TestFilterFS(t *testing.T) {
	source := bsm_fs.MapFS(map[string]string{
		"main.js":          "const a = 1;",
		"main.test.js":     "const t = 1;",
		"styles.css":       "body {}",
		"vendor/bundle.js": "const v = 1;",
		"vendor/data.json": "{}",
	})

	cases := []struct {
		note     string
		included []string
		excluded []string
		exp      []string
	}{
		{
			note: "no patterns passes everything",
			exp:  []string{"main.js", "main.test.js", "styles.css", "vendor/bundle.js", "vendor/data.json"},
		},
		{
			note:     "include top-level js",
			included: []string{"*.js"},
			exp:      []string{"main.js", "main.test.js"},
		},
		{
			note:     "include any js",
			included: []string{"**.js"},
			exp:      []string{"main.js", "main.test.js", "vendor/bundle.js"},
		},
		{
			note:     "exclude tests",
			excluded: []string{"*.test.js"},
			exp:      []string{"main.js", "styles.css", "vendor/bundle.js", "vendor/data.json"},
		},
		{
			note:     "exclude directory subtree",
			excluded: []string{"vendor/**"},
			exp:      []string{"main.js", "main.test.js", "styles.css"},
		},
		{
			note:     "include and exclude combined",
			included: []string{"**.js"},
			excluded: []string{"*.test.js", "vendor/**"},
			exp:      []string{"main.js"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			fsys, err := bsm_fs.NewFilterFS(source, tc.included, tc.excluded)
			if err != nil {
				t.Fatal(err)
			}

			var got []string
			if err := io_fs.WalkDir(fsys, ".", func(path string, d io_fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					got = append(got, path)
				}
				return nil
			}); err != nil {
				t.Fatal(err)
			}
			slices.Sort(got)

			if !slices.Equal(tc.exp, got) {
				t.Fatalf("expected files %v, got %v", tc.exp, got)
			}
		})
	}
}

func TestFilterFSOpenHidesFiles(t *testing.T) {
	source := bsm_fs.MapFS(map[string]string{
		"main.js":      "const a = 1;",
		"main.test.js": "const t = 1;",
	})

	fsys, err := bsm_fs.NewFilterFS(source, nil, []string{"*.test.js"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fsys.Open("main.js"); err != nil {
		t.Fatal(err)
	}

	if _, err := fsys.Open("main.test.js"); !errors.Is(err, io_fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist for filtered file, got %v", err)
	}
}

func TestFilterFSInvalidPattern(t *testing.T) {
	if _, err := bsm_fs.NewFilterFS(bsm_fs.MapFS(nil), []string{"[unclosed"}, nil); err == nil {
		t.Fatal("expected error for invalid glob pattern")
	}
}

func TestFSContainsFiles(t *testing.T) {
	hasFiles, err := bsm_fs.FSContainsFiles(bsm_fs.MapFS(map[string]string{"a.js": ""}))
	if err != nil {
		t.Fatal(err)
	}
	if !hasFiles {
		t.Fatal("expected files to be found")
	}

	empty, err := bsm_fs.NewFilterFS(bsm_fs.MapFS(map[string]string{"a.js": ""}), []string{"*.css"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	hasFiles, err = bsm_fs.FSContainsFiles(empty)
	if err != nil {
		t.Fatal(err)
	}
	if hasFiles {
		t.Fatal("expected no files behind the filter")
	}
}
