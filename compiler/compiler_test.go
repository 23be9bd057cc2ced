package compiler

import (
	"testing"

	"github.com/kilnjinja/kiln/ast"
	"github.com/kilnjinja/kiln/parser"
)

func compileSrc(t *testing.T, src string) *Bytecode {
	t.Helper()
	tmpl, err := parser.Parse(src, nil, parser.Options{TemplateName: "t"})
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	bc, err := Compile(tmpl)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return bc
}

func countOp(bc *Bytecode, op Op) int {
	n := 0
	for _, instr := range bc.Instrs {
		if instr.Op == op {
			n++
		}
	}
	return n
}

func TestCompileOutputEmitsStringAndOutput(t *testing.T) {
	bc := compileSrc(t, "hi {{ name }}")
	if countOp(bc, OpOutput) == 0 {
		t.Fatalf("expected at least one OUTPUT instruction, got %v", bc.Instrs)
	}
	if len(bc.Strings) == 0 || bc.Strings[0] != "hi " {
		t.Errorf("expected the literal data in the string pool, got %v", bc.Strings)
	}
	if len(bc.Names) == 0 || bc.Names[0] != "name" {
		t.Errorf("expected 'name' in the name pool, got %v", bc.Names)
	}
}

func TestCompileIfEmitsConditionalJumps(t *testing.T) {
	bc := compileSrc(t, "{% if a %}x{% else %}y{% endif %}")
	if countOp(bc, OpJumpIfFalse) != 1 {
		t.Errorf("expected exactly one JUMP_IF_FALSE, got %d", countOp(bc, OpJumpIfFalse))
	}
	if countOp(bc, OpJump) != 1 {
		t.Errorf("expected exactly one JUMP past the else branch, got %d", countOp(bc, OpJump))
	}
}

func TestCompileForEmitsLoopOpcodes(t *testing.T) {
	bc := compileSrc(t, "{% for x in items %}{{ x }}{% endfor %}")
	if countOp(bc, OpForIter) != 1 {
		t.Errorf("expected one FOR_ITER, got %d", countOp(bc, OpForIter))
	}
	if countOp(bc, OpEnterLoop) != 1 {
		t.Errorf("expected one ENTER_LOOP, got %d", countOp(bc, OpEnterLoop))
	}
	if countOp(bc, OpExitLoop) != 1 {
		t.Errorf("expected one EXIT_LOOP, got %d", countOp(bc, OpExitLoop))
	}
}

func TestCompileBreakOutsideLoopErrors(t *testing.T) {
	tmpl, err := parser.Parse("{% if true %}{% break %}{% endif %}", nil, parser.Options{TemplateName: "t"})
	if err != nil {
		// `break` may not even be a recognized tag outside a loop depending on
		// the parser's grammar; either failure mode demonstrates the guard.
		return
	}
	if _, err := Compile(tmpl); err == nil {
		t.Error("expected a compile error for break outside a loop")
	}
}

func TestCompileMacroStoresOutOfLine(t *testing.T) {
	bc := compileSrc(t, "{% macro greet(name) %}hi {{ name }}{% endmacro %}")
	if len(bc.Macros) != 1 {
		t.Fatalf("expected one compiled macro, got %d", len(bc.Macros))
	}
	if bc.Macros[0].Name != "greet" || len(bc.Macros[0].Params) != 1 {
		t.Errorf("got %#v", bc.Macros[0])
	}
	if countOp(bc, OpMacroDef) != 1 {
		t.Errorf("expected one MACRO_DEF in the main stream, got %d", countOp(bc, OpMacroDef))
	}
}

func TestCompileExtendsSetsExtendsField(t *testing.T) {
	bc := compileSrc(t, "{% extends 'base.html' %}{% block body %}hi{% endblock %}")
	if bc.Extends < 0 {
		t.Fatal("expected Extends to be set to the string pool index of 'base.html'")
	}
	if bc.Strings[bc.Extends] != "base.html" {
		t.Errorf("got %q", bc.Strings[bc.Extends])
	}
	if len(bc.Blocks) != 1 || bc.Blocks[0].Name != "body" {
		t.Fatalf("got %#v", bc.Blocks)
	}
}

func TestCompileChainedComparisonRecordsCompareChain(t *testing.T) {
	bc := compileSrc(t, "{% if a < b < c %}x{% endif %}")
	if len(bc.CompareChains) != 1 {
		t.Fatalf("expected one recorded compare chain, got %d", len(bc.CompareChains))
	}
	if len(bc.CompareChains[0]) != 2 {
		t.Errorf("expected 2 links in 'a < b < c', got %d", len(bc.CompareChains[0]))
	}
}

func TestCompileKeywordArgsRecordArgNames(t *testing.T) {
	bc := compileSrc(t, "{{ x | default(value='n') }}")
	if len(bc.ArgNames) != 1 {
		t.Fatalf("expected one ArgNames entry for the keyword call, got %d", len(bc.ArgNames))
	}
	if bc.ArgNames[0][0] != "value" {
		t.Errorf("got %v", bc.ArgNames[0])
	}
}

func TestCompileDedupesNames(t *testing.T) {
	bc := compileSrc(t, "{{ x.attr }}{{ y.attr }}")
	attrCount := 0
	for _, s := range bc.Names {
		if s == "attr" {
			attrCount++
		}
	}
	if attrCount != 1 {
		t.Errorf("expected 'attr' deduped once in the name pool, got %d occurrences in %v", attrCount, bc.Names)
	}
}

func TestCompileUnhandledStatementErrors(t *testing.T) {
	pos := ast.At(1, "t")
	tmpl := &ast.Template{Position: pos, Body: []ast.Statement{unsupportedStmt{pos: pos}}}
	if _, err := Compile(tmpl); err == nil {
		t.Error("expected an error compiling a statement type the compiler doesn't recognize")
	}
}

// unsupportedStmt satisfies ast.Statement by embedding the interface (its
// statementNode method is unexported in package ast) and is a type the
// compiler has no case for.
type unsupportedStmt struct {
	ast.Statement
	pos ast.Position
}

func (u unsupportedStmt) Pos() ast.Position { return u.pos }
