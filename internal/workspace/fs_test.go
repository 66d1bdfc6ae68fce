package workspace

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/coderag/internal/domain"
)

func newFS(t *testing.T) *FS {
	t.Helper()
	w, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestNew_RejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(f); err == nil {
		t.Fatal("expected error for non-directory root")
	}
}

func TestResolveAndRel(t *testing.T) {
	w := newFS(t)

	abs, err := w.Resolve("src/a.go")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if abs != filepath.Join(w.Root(), "src", "a.go") {
		t.Errorf("Resolve = %s", abs)
	}
	if got := w.Rel(abs); got != "src/a.go" {
		t.Errorf("Rel(abs) = %s", got)
	}
	if got := w.Rel("src/a.go"); got != "src/a.go" {
		t.Errorf("Rel(rel) = %s", got)
	}

	outside := filepath.Join(filepath.Dir(w.Root()), "elsewhere.go")
	if got, _ := w.Resolve(outside); got != outside {
		t.Errorf("absolute path rewritten: %s", got)
	}
	if got := w.Rel(outside); got != filepath.ToSlash(outside) {
		t.Errorf("Rel(outside) = %s", got)
	}

	if _, err := w.Resolve("  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank path, got %v", err)
	}
}

func TestWriteRead(t *testing.T) {
	w := newFS(t)
	ctx := context.Background()

	if _, err := w.Read(ctx, "missing.txt"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := w.Write(ctx, "a/b/c.txt", "hello\n", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := w.Read(ctx, "a/b/c.txt")
	if err != nil || got != "hello\n" {
		t.Fatalf("Read = %q, %v", got, err)
	}
	if !w.Exists("a/b/c.txt") || w.Exists("a/b") {
		t.Error("Exists misreports")
	}

	if err := w.Write(ctx, "a/b/c.txt", "bye\n", false); !errors.Is(err, domain.ErrFileExists) {
		t.Fatalf("expected ErrFileExists, got %v", err)
	}
	if err := w.Write(ctx, "a/b/c.txt", "bye\n", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _ := w.Read(ctx, "a/b/c.txt"); got != "bye\n" {
		t.Errorf("content after overwrite = %q", got)
	}
	if err := w.Write(ctx, "a/b", "x", true); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput writing over a directory, got %v", err)
	}
}

func TestWrite_KeepsMode(t *testing.T) {
	w := newFS(t)
	ctx := context.Background()
	p := filepath.Join(w.Root(), "run.sh")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(ctx, "run.sh", "#!/bin/sh\necho hi\n", true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestWalk(t *testing.T) {
	w := newFS(t)
	ctx := context.Background()
	for _, p := range []string{"b.go", "a/x.go", "node_modules/dep.js", "a/.git/HEAD"} {
		if err := w.Write(ctx, p, "x", false); err != nil {
			t.Fatalf("Write %s: %v", p, err)
		}
	}

	var seen []string
	err := w.Walk(ctx,
		func(name string) bool { return name == "node_modules" || name == ".git" },
		func(rel string, info fs.FileInfo) error {
			seen = append(seen, rel)
			return nil
		})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"a/x.go", "b.go"}
	if len(seen) != len(want) {
		t.Fatalf("Walk saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestWalk_Canceled(t *testing.T) {
	w := newFS(t)
	if err := w.Write(context.Background(), "a.go", "x", false); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Walk(ctx, nil, func(string, fs.FileInfo) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
