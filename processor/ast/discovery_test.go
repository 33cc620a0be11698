package ast

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func writeSource(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

func TestDiscover_PartitionsByKind(t *testing.T) {
	root := t.TempDir()
	code := writeSource(t, root, "shop/orders.py", "x = 1\n")
	writeSource(t, root, "shop/README.md", "# docs\n")
	unit := writeSource(t, root, "shop/test_orders.py", "def test_x(): pass\n")
	suffixed := writeSource(t, root, "shop/orders_test.py", "def test_y(): pass\n")
	nested := writeSource(t, root, "tests/integration/checkout.py", "def test_z(): pass\n")
	conftest := writeSource(t, root, "conftest.py", "")
	writeSource(t, root, ".venv/lib/site.py", "x = 1\n")
	writeSource(t, root, "shop/__pycache__/orders.py", "x = 1\n")
	writeSource(t, root, "shop/generated/api.py", "x = 1\n")

	files, err := Discover(context.Background(), root, DiscoverOptions{Exclude: []string{"**/generated/**"}})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if got := files[KindCode]; len(got) != 1 || got[0] != code {
		t.Errorf("expected code [%s], got %v", code, got)
	}
	wantTests := map[string]bool{unit: true, suffixed: true, nested: true, conftest: true}
	if len(files[KindTest]) != len(wantTests) {
		t.Fatalf("expected %d test files, got %v", len(wantTests), files[KindTest])
	}
	for _, p := range files[KindTest] {
		if !wantTests[p] {
			t.Errorf("unexpected test file %s", p)
		}
	}
	if files.Len() != 5 || len(files.All()) != 5 {
		t.Errorf("expected 5 files in total, got %d", files.Len())
	}
}

func TestDiscover_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "a.py", "x = 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Discover(ctx, root, DiscoverOptions{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestMatchAny(t *testing.T) {
	tests := []struct {
		patterns []string
		path     string
		want     bool
	}{
		{[]string{"generated"}, "/repo/app/generated/api.py", true},
		{[]string{"app/legacy"}, "app/legacy/old.py", true},
		{[]string{"app/legacy"}, "app/legacy_new/old.py", false},
		{[]string{"**/tests/**"}, "tests/unit/a.py", true},
		{[]string{"*.py"}, "a.py", true},
		{[]string{"", "docs"}, "src/a.py", false},
		{nil, "src/a.py", false},
	}
	for _, tc := range tests {
		if got := MatchAny(tc.patterns, tc.path); got != tc.want {
			t.Errorf("MatchAny(%v, %q) = %v, want %v", tc.patterns, tc.path, got, tc.want)
		}
	}
}

func TestShouldSkipDir(t *testing.T) {
	for _, name := range []string{".git", ".venv", "venv", "__pycache__", "node_modules"} {
		if !ShouldSkipDir(name) {
			t.Errorf("expected %s to be skipped", name)
		}
	}
	if ShouldSkipDir("orders") {
		t.Error("expected orders to be scanned")
	}
}

func TestWatcher_BatchesChanges(t *testing.T) {
	root := t.TempDir()
	unchanged := writeSource(t, root, "shop/unchanged.py", "x = 1\n")
	edited := writeSource(t, root, "shop/edited.py", "x = 1\n")

	w, err := NewWatcher(WatcherConfig{RepoRoot: root, DebounceDelay: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()
	w.Seed([]string{unchanged, edited})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	writeSource(t, root, "shop/edited.py", "x = 2\n")
	writeSource(t, root, "shop/notes.txt", "ignored\n")

	select {
	case batch := <-w.Batches():
		if len(batch) != 1 {
			t.Fatalf("expected one event, got %v", batch)
		}
		if batch[0].Path != edited || batch[0].Operation != OpModify {
			t.Errorf("expected modify of %s, got %+v", edited, batch[0])
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for batch")
	}
}

func TestWatcher_ClassifyDropsUnchangedContent(t *testing.T) {
	root := t.TempDir()
	path := writeSource(t, root, "a.py", "x = 1\n")

	w, err := NewWatcher(WatcherConfig{RepoRoot: root})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()
	w.Seed([]string{path})

	if _, ok := w.classify(path, fsnotify.Write); ok {
		t.Error("expected rewrite with identical content to be dropped")
	}

	writeSource(t, root, "a.py", "x = 2\n")
	if ev, ok := w.classify(path, fsnotify.Write); !ok || ev.Operation != OpModify {
		t.Errorf("expected modify event, got %+v (ok=%v)", ev, ok)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if ev, ok := w.classify(path, fsnotify.Remove); !ok || ev.Operation != OpDelete {
		t.Errorf("expected delete event, got %+v (ok=%v)", ev, ok)
	}
	if _, ok := w.GetHash(path); ok {
		t.Error("expected hash to be forgotten after delete")
	}
}
