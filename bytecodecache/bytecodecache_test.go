package bytecodecache

import (
	"testing"

	"github.com/kilnjinja/kiln/compiler"
	"github.com/kilnjinja/kiln/value"
)

func sampleBytecode() *compiler.Bytecode {
	bc := &compiler.Bytecode{
		Name:    "greeting.html",
		Strings: []string{"Hello, "},
		Names:   []string{"name"},
		Extends: -1,
		Consts:  []value.Value{value.Int(1), value.String("!")},
	}
	bc.Instrs = []compiler.Instr{
		{Op: compiler.OpLoadString, A: 0, Line: 1},
		{Op: compiler.OpLoadVar, A: 0, Line: 1},
		{Op: compiler.OpOutput, A: 2, Line: 1},
		{Op: compiler.OpEnd, Line: 1},
	}
	bc.Blocks = []*compiler.BlockDef{
		{Name: "body", Instrs: []compiler.Instr{{Op: compiler.OpEnd, Line: 1}}, Owner: bc},
	}
	return bc
}

func TestFileCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	bc := sampleBytecode()
	key := Key(bc.Name, "Hello, {{ name }}!")
	if err := c.DumpBucket(key, bc); err != nil {
		t.Fatalf("DumpBucket: %v", err)
	}

	got, found, err := c.LoadBucket(key)
	if err != nil {
		t.Fatalf("LoadBucket: %v", err)
	}
	if !found {
		t.Fatal("expected a cache hit")
	}
	if got.Name != bc.Name {
		t.Errorf("Name = %q, want %q", got.Name, bc.Name)
	}
	if len(got.Instrs) != len(bc.Instrs) {
		t.Fatalf("Instrs length = %d, want %d", len(got.Instrs), len(bc.Instrs))
	}
	if len(got.Consts) != 2 || got.Consts[0].AsInt() != 1 || got.Consts[1].AsString() != "!" {
		t.Errorf("Consts did not round-trip: %+v", got.Consts)
	}
	if len(got.Blocks) != 1 || got.Blocks[0].Owner != got {
		t.Error("Blocks[0].Owner should be restored as a self-reference to the decoded Bytecode")
	}
}

func TestFileCacheMiss(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	_, found, err := c.LoadBucket("nonexistent")
	if err != nil {
		t.Fatalf("LoadBucket: %v", err)
	}
	if found {
		t.Error("expected a miss for a key never written")
	}
}

func TestFileCacheClear(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	bc := sampleBytecode()
	if err := c.DumpBucket("a", bc); err != nil {
		t.Fatalf("DumpBucket: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, found, _ := c.LoadBucket("a"); found {
		t.Error("expected no entries after Clear")
	}
}

func TestKeyChangesWithSource(t *testing.T) {
	k1 := Key("t.html", "a")
	k2 := Key("t.html", "b")
	if k1 == k2 {
		t.Error("Key should differ when source text differs")
	}
}

func TestNullCacheAlwaysMisses(t *testing.T) {
	var c NullCache
	if err := c.DumpBucket("x", sampleBytecode()); err != nil {
		t.Fatalf("DumpBucket: %v", err)
	}
	_, found, err := c.LoadBucket("x")
	if err != nil || found {
		t.Error("NullCache should never report a hit")
	}
}
