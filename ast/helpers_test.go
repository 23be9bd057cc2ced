package ast

import "testing"

func TestWalkStatementsVisitsNestedBodies(t *testing.T) {
	pos := At(1, "t")
	inner := &Output{Position: pos, Nodes: []Expression{&Name{Position: pos, Ident: "x"}}}
	tmpl := []Statement{
		&If{
			Position: pos,
			Cond:     &BoolLit{Position: pos, Value: true},
			Body:     []Statement{inner},
			Elifs: []ElseIf{
				{Cond: &BoolLit{Position: pos, Value: false}, Body: []Statement{inner}},
			},
			Else: []Statement{inner},
		},
	}

	var names []string
	WalkStatements(tmpl, func(n Node) bool {
		if name, ok := n.(*Name); ok {
			names = append(names, name.Ident)
		}
		return true
	})
	if len(names) != 3 {
		t.Fatalf("expected the Name node to be reached through Body, every Elif's Body, and Else, got %d visits: %v", len(names), names)
	}
}

func TestWalkStatementsPruneSubtree(t *testing.T) {
	pos := At(1, "t")
	tmpl := []Statement{
		&Output{Position: pos, Nodes: []Expression{&Name{Position: pos, Ident: "a"}}},
		&Output{Position: pos, Nodes: []Expression{&Name{Position: pos, Ident: "b"}}},
	}
	visited := 0
	WalkStatements(tmpl, func(n Node) bool {
		visited++
		if _, ok := n.(*Output); ok {
			return false // prune: never descend into this Output's Nodes
		}
		return true
	})
	if visited != 2 {
		t.Errorf("expected exactly the 2 Output nodes to be visited (children pruned), got %d", visited)
	}
}

func TestWalkStatementsReachesBinOpOperands(t *testing.T) {
	pos := At(1, "t")
	expr := &BinOp{
		Position: pos, Op: OpAdd,
		Left:  &Name{Position: pos, Ident: "a"},
		Right: &Name{Position: pos, Ident: "b"},
	}
	tmpl := []Statement{&Do{Position: pos, Expr: expr}}

	var names []string
	WalkStatements(tmpl, func(n Node) bool {
		if name, ok := n.(*Name); ok {
			names = append(names, name.Ident)
		}
		return true
	})
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("got %v, want [a b]", names)
	}
}

func TestNewTemplateAndNewNameStampPosition(t *testing.T) {
	tmpl := NewTemplate(3, "index.html", nil)
	if tmpl.Pos().Line != 3 || tmpl.Pos().Template != "index.html" {
		t.Errorf("got %#v", tmpl.Pos())
	}
	name := NewName(5, "index.html", "x")
	if name.Ident != "x" || name.Pos().Line != 5 {
		t.Errorf("got %#v", name)
	}
}
