package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFilesystemLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.html"), []byte("hi {{ name }}"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewFilesystemLoader(dir)
	got, err := l.Load("hello.html")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hi {{ name }}" {
		t.Errorf("got %q", got)
	}

	if _, err := l.Load("hello"); err != nil {
		t.Errorf("extension-less lookup should find hello.html: %v", err)
	}

	if _, err := l.Load("../etc/passwd"); err == nil {
		t.Error("directory traversal should be rejected")
	}
}

func TestFilesystemLoaderUptodate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.html")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewFilesystemLoader(dir)
	before := time.Now()

	ok, err := l.Uptodate("a.html", before)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("freshly stamped file should be uptodate relative to a timestamp taken after it was written")
	}

	past := before.Add(-time.Hour)
	ok, err = l.Uptodate("a.html", past)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("file modified after lastModified should not be uptodate")
	}
}

func TestDictLoader(t *testing.T) {
	l := NewDictLoader(map[string]string{"greet": "hello"})
	got, err := l.Load("greet")
	if err != nil || got != "hello" {
		t.Fatalf("got %q, %v", got, err)
	}
	if ok, _ := l.Uptodate("greet", time.Now()); !ok {
		t.Error("DictLoader should always report uptodate")
	}
	if _, err := l.Load("missing"); err == nil {
		t.Error("missing template should error")
	}
}

func TestFuncLoader(t *testing.T) {
	var l Loader = FuncLoader(func(name string) (string, error) {
		return "source for " + name, nil
	})
	got, err := l.Load("x")
	if err != nil || got != "source for x" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestChoiceLoader(t *testing.T) {
	first := NewDictLoader(map[string]string{"a": "from-first"})
	second := NewDictLoader(map[string]string{"a": "from-second", "b": "only-in-second"})
	c := NewChoiceLoader(first, second)

	got, err := c.Load("a")
	if err != nil || got != "from-first" {
		t.Fatalf("expected first loader to win, got %q, %v", got, err)
	}
	got, err = c.Load("b")
	if err != nil || got != "only-in-second" {
		t.Fatalf("expected fallback to second loader, got %q, %v", got, err)
	}
	if _, err := c.Load("missing"); err == nil {
		t.Error("missing from every loader should error")
	}
}

func TestPrefixLoader(t *testing.T) {
	admin := NewDictLoader(map[string]string{"dashboard.html": "admin dashboard"})
	app := NewDictLoader(map[string]string{"dashboard.html": "app dashboard"})
	p := NewPrefixLoader("/", map[string]Loader{"admin": admin, "app": app})

	got, err := p.Load("admin/dashboard.html")
	if err != nil || got != "admin dashboard" {
		t.Fatalf("got %q, %v", got, err)
	}
	got, err = p.Load("app/dashboard.html")
	if err != nil || got != "app dashboard" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := p.Load("nowhere/x"); err == nil {
		t.Error("unknown prefix should error")
	}
}

func TestPrefixLoaderUptodate(t *testing.T) {
	admin := NewDictLoader(map[string]string{"x": "1"})
	p := NewPrefixLoader("/", map[string]Loader{"admin": admin})
	if ok, err := p.Uptodate("admin/x", time.Now()); err != nil || !ok {
		t.Fatalf("got %v, %v", ok, err)
	}
}
