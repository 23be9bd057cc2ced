package optimizer

import (
	"testing"

	"github.com/kilnjinja/kiln/ast"
)

func pos() ast.Position { return ast.At(1, "t") }

func strLit(s string) *ast.StringLit { return &ast.StringLit{Position: pos(), Value: s} }
func intLit(n int64) *ast.IntLit     { return &ast.IntLit{Position: pos(), Value: n} }
func boolLit(b bool) *ast.BoolLit    { return &ast.BoolLit{Position: pos(), Value: b} }

func TestConstantFoldArithmetic(t *testing.T) {
	expr := &ast.BinOp{Position: pos(), Op: ast.OpAdd, Left: intLit(1), Right: intLit(2)}
	changed := false
	out := foldExpr(expr, &changed)
	lit, ok := out.(*ast.IntLit)
	if !ok || lit.Value != 3 || !changed {
		t.Fatalf("got %#v changed=%v", out, changed)
	}
}

func TestConstantFoldStringConcat(t *testing.T) {
	expr := &ast.Concat{Position: pos(), Parts: []ast.Expression{strLit("a"), strLit("b")}}
	changed := false
	out := foldExpr(expr, &changed)
	lit, ok := out.(*ast.StringLit)
	if !ok || lit.Value != "ab" || !changed {
		t.Fatalf("got %#v changed=%v", out, changed)
	}
}

func TestConstantFoldLeavesNameAlone(t *testing.T) {
	expr := &ast.BinOp{Position: pos(), Op: ast.OpAdd, Left: &ast.Name{Position: pos(), Ident: "x"}, Right: intLit(1)}
	changed := false
	out := foldExpr(expr, &changed)
	if _, ok := out.(*ast.BinOp); !ok || changed {
		t.Errorf("expected a Name-dependent expr to survive unfolded, got %#v changed=%v", out, changed)
	}
}

func TestConstantFoldShortCircuitAnd(t *testing.T) {
	name := &ast.Name{Position: pos(), Ident: "x"}
	expr := &ast.BinOp{Position: pos(), Op: ast.OpAnd, Left: boolLit(false), Right: name}
	changed := false
	out := foldExpr(expr, &changed)
	if lit, ok := out.(*ast.BoolLit); !ok || lit.Value != false || !changed {
		t.Fatalf("expected 'false and x' to fold to false, got %#v", out)
	}
}

func TestConstantFoldConditional(t *testing.T) {
	expr := &ast.Conditional{Position: pos(), Cond: boolLit(true), IfTrue: strLit("y"), IfFalse: strLit("n")}
	changed := false
	out := foldExpr(expr, &changed)
	lit, ok := out.(*ast.StringLit)
	if !ok || lit.Value != "y" || !changed {
		t.Fatalf("got %#v", out)
	}
}

func TestDeadBranchDropsFalseIf(t *testing.T) {
	n := &ast.If{Position: pos(), Cond: boolLit(false), Body: []ast.Statement{&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("a")}}}}
	out, changed := (DeadBranch{}).Apply([]ast.Statement{n})
	if len(out) != 0 || !changed {
		t.Errorf("expected dead 'if false' to vanish, got %#v changed=%v", out, changed)
	}
}

func TestDeadBranchSplicesTrueIf(t *testing.T) {
	body := []ast.Statement{&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("a")}}}
	n := &ast.If{Position: pos(), Cond: boolLit(true), Body: body, Else: []ast.Statement{&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("b")}}}}
	out, changed := (DeadBranch{}).Apply([]ast.Statement{n})
	if len(out) != 1 || out[0] != body[0] || !changed {
		t.Fatalf("expected the true branch spliced in directly, got %#v", out)
	}
}

func TestDeadBranchFallsThroughToElif(t *testing.T) {
	elifBody := []ast.Statement{&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("e")}}}
	n := &ast.If{
		Position: pos(), Cond: boolLit(false),
		Body:  []ast.Statement{&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("a")}}},
		Elifs: []ast.ElseIf{{Cond: boolLit(true), Body: elifBody}},
		Else:  []ast.Statement{&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("b")}}},
	}
	out, changed := (DeadBranch{}).Apply([]ast.Statement{n})
	if len(out) != 1 || out[0] != elifBody[0] || !changed {
		t.Fatalf("expected the true elif's body spliced in, got %#v", out)
	}
}

func TestDeadBranchKeepsDynamicElif(t *testing.T) {
	dynCond := &ast.Name{Position: pos(), Ident: "cond"}
	elifBody := []ast.Statement{&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("e")}}}
	n := &ast.If{
		Position: pos(), Cond: boolLit(false),
		Body:  []ast.Statement{&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("a")}}},
		Elifs: []ast.ElseIf{{Cond: dynCond, Body: elifBody}},
	}
	out, changed := (DeadBranch{}).Apply([]ast.Statement{n})
	if len(out) != 1 || !changed {
		t.Fatalf("got %#v", out)
	}
	rebuilt, ok := out[0].(*ast.If)
	if !ok || rebuilt.Cond != dynCond {
		t.Fatalf("expected the rebuilt If to start at the dynamic elif, got %#v", out[0])
	}
}

func TestMergeOutputCoalescesAdjacentOutputs(t *testing.T) {
	body := []ast.Statement{
		&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("a")}},
		&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("b")}},
	}
	out, changed := (MergeOutput{}).Apply(body)
	if len(out) != 1 || !changed {
		t.Fatalf("expected 2 Outputs merged into 1, got %#v", out)
	}
	o := out[0].(*ast.Output)
	if len(o.Nodes) != 1 {
		t.Fatalf("expected the adjacent StringLits merged too, got %#v", o.Nodes)
	}
	if o.Nodes[0].(*ast.StringLit).Value != "ab" {
		t.Errorf("got %q", o.Nodes[0].(*ast.StringLit).Value)
	}
}

func TestMergeOutputLeavesNonOutputsAlone(t *testing.T) {
	ifStmt := &ast.If{Position: pos(), Cond: &ast.Name{Position: pos(), Ident: "x"}}
	body := []ast.Statement{
		&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("a")}},
		ifStmt,
		&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("b")}},
	}
	out, _ := (MergeOutput{}).Apply(body)
	if len(out) != 3 || out[1] != ifStmt {
		t.Fatalf("expected the If to break up the merge run, got %#v", out)
	}
}

func TestDefaultPipelineFoldsAndDropsDeadIf(t *testing.T) {
	cmp := &ast.Compare{
		Position: pos(), First: intLit(1),
		Links: []ast.CompareLink{{Op: ast.CmpEq, Right: intLit(2)}},
	}
	live := &ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("x"), strLit("y")}}
	tmpl := &ast.Template{Body: []ast.Statement{
		&ast.If{Position: pos(), Cond: cmp, Body: []ast.Statement{&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("dead")}}}},
		live,
	}}
	Default().Optimize(tmpl)
	if len(tmpl.Body) != 1 {
		t.Fatalf("expected the false 'if' to disappear, got %#v", tmpl.Body)
	}
	out, ok := tmpl.Body[0].(*ast.Output)
	if !ok || len(out.Nodes) != 1 || out.Nodes[0].(*ast.StringLit).Value != "xy" {
		t.Fatalf("expected the surviving Output's string literals merged, got %#v", tmpl.Body[0])
	}
}

func TestPipelineIdempotent(t *testing.T) {
	mk := func() *ast.Template {
		cmp := &ast.Compare{Position: pos(), First: intLit(1), Links: []ast.CompareLink{{Op: ast.CmpEq, Right: intLit(1)}}}
		return &ast.Template{Body: []ast.Statement{
			&ast.If{Position: pos(), Cond: cmp, Body: []ast.Statement{
				&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("a")}},
				&ast.Output{Position: pos(), Nodes: []ast.Expression{strLit("b")}},
			}},
		}}
	}
	once := Default().Optimize(mk())
	twiceSrc := &ast.Template{Body: once.Body}
	twice := Default().Optimize(twiceSrc)
	if len(once.Body) != len(twice.Body) {
		t.Fatalf("expected a second optimize pass to be a no-op, got %d vs %d statements", len(once.Body), len(twice.Body))
	}
}
