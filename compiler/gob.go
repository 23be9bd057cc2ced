package compiler

import (
	"bytes"
	"encoding/gob"

	"github.com/kilnjinja/kiln/value"
)

// blockDefWire mirrors BlockDef but drops Owner: every BlockDef compiled by
// this package points back at the Bytecode it was compiled into (the bc
// being closed when its block body finishes compiling, see compiler.go's
// Owner: c.bc), never at some other template's Bytecode, so Owner carries
// zero information worth persisting — it is reconstructed as a
// self-reference on decode instead.
type blockDefWire struct {
	Name     string
	Instrs   []Instr
	Scoped   bool
	Required bool
}

// bytecodeWire is Bytecode's on-disk shape for the bytecode cache (spec.md
// §4.8): identical to Bytecode except Blocks, whose Owner self-reference gob
// cannot round-trip without either a cycle or a second top-level value.
type bytecodeWire struct {
	Name          string
	Instrs        []Instr
	Consts        []value.Value
	Strings       []string
	Names         []string
	Macros        []*MacroDef
	Blocks        []blockDefWire
	Extends       int32
	ExtendsInstr  []Instr
	CompareChains [][]int32
	ArgNames      [][]string
}

// MarshalBinary encodes b for storage in a bytecodecache.Cache bucket.
func (b *Bytecode) MarshalBinary() ([]byte, error) {
	w := bytecodeWire{
		Name: b.Name, Instrs: b.Instrs, Consts: b.Consts, Strings: b.Strings, Names: b.Names,
		Macros: b.Macros, Extends: b.Extends, ExtendsInstr: b.ExtendsInstr,
		CompareChains: b.CompareChains, ArgNames: b.ArgNames,
	}
	w.Blocks = make([]blockDefWire, len(b.Blocks))
	for i, bd := range b.Blocks {
		w.Blocks[i] = blockDefWire{Name: bd.Name, Instrs: bd.Instrs, Scoped: bd.Scoped, Required: bd.Required}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a bucket written by MarshalBinary, restoring each
// BlockDef's Owner as a self-reference to b.
func (b *Bytecode) UnmarshalBinary(data []byte) error {
	var w bytecodeWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	b.Name, b.Instrs, b.Consts, b.Strings, b.Names = w.Name, w.Instrs, w.Consts, w.Strings, w.Names
	b.Macros, b.Extends, b.ExtendsInstr = w.Macros, w.Extends, w.ExtendsInstr
	b.CompareChains, b.ArgNames = w.CompareChains, w.ArgNames

	b.Blocks = make([]*BlockDef, len(w.Blocks))
	for i, bd := range w.Blocks {
		b.Blocks[i] = &BlockDef{Name: bd.Name, Instrs: bd.Instrs, Scoped: bd.Scoped, Required: bd.Required, Owner: b}
	}
	return nil
}
