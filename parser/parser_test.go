package parser

import (
	"testing"

	"github.com/kilnjinja/kiln/ast"
)

func parse(t *testing.T, src string) *ast.Template {
	t.Helper()
	tmpl, err := Parse(src, nil, Options{TemplateName: "t"})
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return tmpl
}

func TestParseDataAndOutput(t *testing.T) {
	tmpl := parse(t, "hi {{ name }}!")
	if len(tmpl.Body) != 3 {
		t.Fatalf("got %d statements, want 3: %#v", len(tmpl.Body), tmpl.Body)
	}
	out, ok := tmpl.Body[1].(*ast.Output)
	if !ok {
		t.Fatalf("statement 1 is %T, want *ast.Output", tmpl.Body[1])
	}
	name, ok := out.Nodes[0].(*ast.Name)
	if !ok || name.Ident != "name" {
		t.Errorf("got %#v, want Name(name)", out.Nodes[0])
	}
}

func TestParseIfElifElse(t *testing.T) {
	tmpl := parse(t, "{% if a %}A{% elif b %}B{% else %}C{% endif %}")
	n, ok := tmpl.Body[0].(*ast.If)
	if !ok {
		t.Fatalf("got %T, want *ast.If", tmpl.Body[0])
	}
	if len(n.Elifs) != 1 {
		t.Fatalf("got %d elifs, want 1", len(n.Elifs))
	}
	if len(n.Else) != 1 {
		t.Fatalf("got %d else statements, want 1", len(n.Else))
	}
}

func TestParseForWithElseAndFilter(t *testing.T) {
	tmpl := parse(t, "{% for x in items if x > 0 %}{{ x }}{% else %}empty{% endfor %}")
	n, ok := tmpl.Body[0].(*ast.For)
	if !ok {
		t.Fatalf("got %T, want *ast.For", tmpl.Body[0])
	}
	if len(n.Target) != 1 || n.Target[0] != "x" {
		t.Errorf("got target %v", n.Target)
	}
	if n.Filter == nil {
		t.Error("expected a loop filter clause")
	}
	if len(n.Else) != 1 {
		t.Errorf("got %d else statements, want 1", len(n.Else))
	}
}

func TestParseForTupleUnpacking(t *testing.T) {
	tmpl := parse(t, "{% for k, v in items %}{{ k }}{% endfor %}")
	n := tmpl.Body[0].(*ast.For)
	if len(n.Target) != 2 || n.Target[0] != "k" || n.Target[1] != "v" {
		t.Errorf("got target %v, want [k v]", n.Target)
	}
}

func TestParseBlockAndExtends(t *testing.T) {
	tmpl := parse(t, "{% extends 'base.html' %}{% block body %}hi{% endblock %}")
	ext, ok := tmpl.Body[0].(*ast.Extends)
	if !ok {
		t.Fatalf("got %T, want *ast.Extends", tmpl.Body[0])
	}
	lit, ok := ext.Template.(*ast.StringLit)
	if !ok || lit.Value != "base.html" {
		t.Errorf("got %#v", ext.Template)
	}
	blk, ok := tmpl.Body[1].(*ast.Block)
	if !ok || blk.Name != "body" {
		t.Fatalf("got %#v", tmpl.Body[1])
	}
}

func TestParseSetSimpleAndBlockForm(t *testing.T) {
	tmpl := parse(t, "{% set x = 1 %}{% set y %}body{% endset %}")
	s1 := tmpl.Body[0].(*ast.Set)
	if s1.Target != "x" || s1.Value == nil {
		t.Errorf("got %#v", s1)
	}
	s2 := tmpl.Body[1].(*ast.Set)
	if s2.Target != "y" || s2.Body == nil {
		t.Errorf("expected block-form set to capture a Body, got %#v", s2)
	}
}

func TestParseSetAttributePath(t *testing.T) {
	tmpl := parse(t, "{% set ns.count = 1 %}")
	s := tmpl.Body[0].(*ast.Set)
	if s.Target != "ns" || len(s.Attr) != 1 || s.Attr[0] != "count" {
		t.Errorf("got target=%q attr=%v", s.Target, s.Attr)
	}
}

func TestParseMacroWithDefaults(t *testing.T) {
	tmpl := parse(t, "{% macro greet(name, greeting='hi') %}{{ greeting }} {{ name }}{% endmacro %}")
	m := tmpl.Body[0].(*ast.Macro)
	if m.Name != "greet" || len(m.Params) != 2 {
		t.Fatalf("got %#v", m)
	}
	if m.Params[0].Default != nil {
		t.Error("expected no default for the first param")
	}
	if m.Params[1].Default == nil {
		t.Error("expected a default for the second param")
	}
}

func TestParseFilterAndTestExpressions(t *testing.T) {
	tmpl := parse(t, "{{ name | upper | default('x') }}{% if n is even %}y{% endif %}")
	out := tmpl.Body[0].(*ast.Output)
	filt, ok := out.Nodes[0].(*ast.Filter)
	if !ok {
		t.Fatalf("got %T, want *ast.Filter", out.Nodes[0])
	}
	if filt.Call.Name != "default" {
		t.Errorf("outermost filter should be 'default', got %q", filt.Call.Name)
	}
	ifNode := tmpl.Body[1].(*ast.If)
	test, ok := ifNode.Cond.(*ast.Test)
	if !ok || test.Call.Name != "even" {
		t.Errorf("got %#v", ifNode.Cond)
	}
}

func TestParseChainedComparisonAndPrecedence(t *testing.T) {
	tmpl := parse(t, "{{ 1 + 2 * 3 }}{% if a < b < c %}x{% endif %}")
	out := tmpl.Body[0].(*ast.Output)
	bin, ok := out.Nodes[0].(*ast.BinOp)
	if !ok || bin.Op != ast.OpAdd {
		t.Fatalf("expected the top-level op to be '+', got %#v", out.Nodes[0])
	}
	if _, ok := bin.Right.(*ast.BinOp); !ok {
		t.Errorf("expected '2 * 3' to bind tighter than '+', got %#v", bin.Right)
	}
	ifNode := tmpl.Body[1].(*ast.If)
	cmp, ok := ifNode.Cond.(*ast.Compare)
	if !ok || len(cmp.Links) != 2 {
		t.Fatalf("expected a chained comparison with 2 links, got %#v", ifNode.Cond)
	}
}

func TestParseGetattrGetitemAndSlice(t *testing.T) {
	tmpl := parse(t, "{{ a.b[0][1:3] }}")
	out := tmpl.Body[0].(*ast.Output)
	sl, ok := out.Nodes[0].(*ast.Slice)
	if !ok {
		t.Fatalf("got %T, want *ast.Slice", out.Nodes[0])
	}
	if sl.Start == nil || sl.Stop == nil {
		t.Errorf("expected both slice bounds set, got %#v", sl)
	}
	item, ok := sl.Target.(*ast.Getitem)
	if !ok {
		t.Fatalf("got %T, want *ast.Getitem", sl.Target)
	}
	attr, ok := item.Target.(*ast.Getattr)
	if !ok || attr.Name != "b" {
		t.Fatalf("got %#v", item.Target)
	}
}

func TestParseListDictAndConditionalExpr(t *testing.T) {
	tmpl := parse(t, "{{ [1, 2, 3] }}{{ {'a': 1} }}{{ 'y' if cond else 'n' }}")
	out0 := tmpl.Body[0].(*ast.Output)
	list, ok := out0.Nodes[0].(*ast.ListLit)
	if !ok || len(list.Items) != 3 {
		t.Fatalf("got %#v", out0.Nodes[0])
	}
	out1 := tmpl.Body[1].(*ast.Output)
	dict, ok := out1.Nodes[0].(*ast.DictLit)
	if !ok || len(dict.Entries) != 1 {
		t.Fatalf("got %#v", out1.Nodes[0])
	}
	out2 := tmpl.Body[2].(*ast.Output)
	cond, ok := out2.Nodes[0].(*ast.Conditional)
	if !ok {
		t.Fatalf("got %T, want *ast.Conditional", out2.Nodes[0])
	}
	if lit, ok := cond.IfTrue.(*ast.StringLit); !ok || lit.Value != "y" {
		t.Errorf("got %#v", cond.IfTrue)
	}
}

func TestParseRawPassesThroughLiterally(t *testing.T) {
	tmpl := parse(t, "{% raw %}{{ not an expr }}{% endraw %}")
	raw, ok := tmpl.Body[0].(*ast.Raw)
	if !ok {
		t.Fatalf("got %T, want *ast.Raw", tmpl.Body[0])
	}
	if raw.Content != "{{ not an expr }}" {
		t.Errorf("got %q", raw.Content)
	}
}

func TestParseUnclosedTagErrors(t *testing.T) {
	_, err := Parse("{% if x %}no endif", nil, Options{TemplateName: "t"})
	if err == nil {
		t.Fatal("expected an error for a missing {% endif %}")
	}
}

func TestParseUnknownTagErrors(t *testing.T) {
	_, err := Parse("{% bogus %}{% endbogus %}", nil, Options{TemplateName: "t"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized tag")
	}
}
