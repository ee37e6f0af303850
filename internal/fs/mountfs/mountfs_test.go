package mountfs_test

import (
	"io/fs"
	"testing"

	bsm_fs "github.com/bundlesmith/bundlesmith/internal/fs"
	"github.com/bundlesmith/bundlesmith/internal/fs/mountfs"
)

func TestMountFS(t *testing.T) {
	files0 := bsm_fs.MapFS(map[string]string{"a.js": "const a = 1;"})
	files1 := bsm_fs.MapFS(map[string]string{"d.js": "const d = 1;"})
	files2 := bsm_fs.MapFS(map[string]string{
		"b.js": "const b = 1;",
		"c.js": "const c = 1;",
	})
	fsys := mountfs.New(map[string]fs.FS{
		"node_modules/candela/lib":   files0,
		"node_modules/candela/lib/a": files1,
		"node_modules/lumen":         files2,
	})
	t.Run("list root", func(t *testing.T) {
		xs, err := fs.ReadDir(fsys, ".")
		if err != nil {
			t.Fatal(err)
		}
		if exp, act := 1, len(xs); exp != act {
			t.Fatalf("expected %d entries, got %d", exp, act)
		}
		if exp, act := "node_modules", xs[0].Name(); exp != act {
			t.Fatalf("expected entry %s, got %s", exp, act)
		}
	})
	t.Run("list common prefix", func(t *testing.T) {
		xs, err := fs.ReadDir(fsys, "node_modules")
		if err != nil {
			t.Fatal(err)
		}
		if exp, act := 2, len(xs); exp != act {
			t.Fatalf("expected %d entries, got %d", exp, act)
		}
		if exp, act := "candela", xs[0].Name(); exp != act {
			t.Fatalf("expected entry %s, got %s", exp, act)
		}
		if exp, act := "lumen", xs[1].Name(); exp != act {
			t.Fatalf("expected entry %s, got %s", exp, act)
		}
	})
	t.Run("list mount point", func(t *testing.T) {
		xs, err := fs.ReadDir(fsys, "node_modules/lumen")
		if err != nil {
			t.Fatal(err)
		}
		if exp, act := 2, len(xs); exp != act {
			t.Fatalf("expected %d entries, got %d", exp, act)
		}
		if exp, act := "b.js", xs[0].Name(); exp != act {
			t.Fatalf("expected entry %s, got %s", exp, act)
		}
		if exp, act := "c.js", xs[1].Name(); exp != act {
			t.Fatalf("expected entry %s, got %s", exp, act)
		}
	})
	t.Run("list mount point overlapping prefix", func(t *testing.T) {
		xs, err := fs.ReadDir(fsys, "node_modules/candela/lib")
		if err != nil {
			t.Fatal(err)
		}
		if exp, act := 1, len(xs); exp != act {
			t.Fatalf("expected %d entries, got %d", exp, act)
		}
		if exp, act := "a.js", xs[0].Name(); exp != act {
			t.Fatalf("expected entry %s, got %s", exp, act)
		}
	})
	t.Run("list mount point with prefix mount ignored", func(t *testing.T) {
		xs, err := fs.ReadDir(fsys, "node_modules/candela/lib/a")
		if err != nil {
			t.Fatal(err)
		}
		if exp, act := 1, len(xs); exp != act {
			t.Fatalf("expected %d entries, got %d", exp, act)
		}
		if exp, act := "d.js", xs[0].Name(); exp != act {
			t.Fatalf("expected entry %s, got %s", exp, act)
		}
	})
	t.Run("read file through mount", func(t *testing.T) {
		bs, err := fs.ReadFile(fsys, "node_modules/lumen/b.js")
		if err != nil {
			t.Fatal(err)
		}
		if exp, act := "const b = 1;", string(bs); exp != act {
			t.Fatalf("expected %q, got %q", exp, act)
		}
	})
}
