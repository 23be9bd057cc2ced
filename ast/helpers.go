package ast

// At is a convenience constructor for embedding a Position into a literal
// node expression, e.g. &ast.BinOp{Position: ast.At(line, tmpl), ...}.
func At(line int, tmpl string) Position { return Position{line, tmpl} }

// Walk performs a depth-first traversal of a Statement list, invoking visit
// on every Statement and Expression reached. visit returning false prunes
// that subtree. Used by the optimizer and by diagnostics.
func WalkStatements(stmts []Statement, visit func(Node) bool) {
	for _, s := range stmts {
		walkStatement(s, visit)
	}
}

func walkStatement(s Statement, visit func(Node) bool) {
	if !visit(s) {
		return
	}
	switch n := s.(type) {
	case *Output:
		for _, e := range n.Nodes {
			walkExpr(e, visit)
		}
	case *If:
		walkExpr(n.Cond, visit)
		WalkStatements(n.Body, visit)
		for _, ei := range n.Elifs {
			walkExpr(ei.Cond, visit)
			WalkStatements(ei.Body, visit)
		}
		WalkStatements(n.Else, visit)
	case *For:
		walkExpr(n.Iter, visit)
		if n.Filter != nil {
			walkExpr(n.Filter, visit)
		}
		WalkStatements(n.Body, visit)
		WalkStatements(n.Else, visit)
	case *Block:
		WalkStatements(n.Body, visit)
	case *Macro:
		WalkStatements(n.Body, visit)
	case *CallBlock:
		WalkStatements(n.Body, visit)
	case *Set:
		if n.Value != nil {
			walkExpr(n.Value, visit)
		}
		WalkStatements(n.Body, visit)
	case *With:
		for _, v := range n.Values {
			walkExpr(v, visit)
		}
		WalkStatements(n.Body, visit)
	case *FilterBlock:
		WalkStatements(n.Body, visit)
	case *Autoescape:
		walkExpr(n.Enabled, visit)
		WalkStatements(n.Body, visit)
	case *Do:
		walkExpr(n.Expr, visit)
	}
}

func walkExpr(e Expression, visit func(Node) bool) {
	if e == nil || !visit(e) {
		return
	}
	switch n := e.(type) {
	case *ListLit:
		for _, it := range n.Items {
			walkExpr(it, visit)
		}
	case *TupleLit:
		for _, it := range n.Items {
			walkExpr(it, visit)
		}
	case *DictLit:
		for _, ent := range n.Entries {
			walkExpr(ent.Key, visit)
			walkExpr(ent.Value, visit)
		}
	case *BinOp:
		walkExpr(n.Left, visit)
		walkExpr(n.Right, visit)
	case *UnaryOp:
		walkExpr(n.Expr, visit)
	case *Compare:
		walkExpr(n.First, visit)
		for _, l := range n.Links {
			walkExpr(l.Right, visit)
		}
	case *Filter:
		walkExpr(n.Target, visit)
		for _, a := range n.Call.Args {
			walkExpr(a.Value, visit)
		}
	case *Test:
		walkExpr(n.Target, visit)
		for _, a := range n.Call.Args {
			walkExpr(a.Value, visit)
		}
	case *Call:
		walkExpr(n.Callee, visit)
		for _, a := range n.Args {
			walkExpr(a.Value, visit)
		}
	case *Getattr:
		walkExpr(n.Target, visit)
	case *Getitem:
		walkExpr(n.Target, visit)
		walkExpr(n.Key, visit)
	case *Slice:
		walkExpr(n.Target, visit)
		walkExpr(n.Start, visit)
		walkExpr(n.Stop, visit)
		walkExpr(n.Step, visit)
	case *Conditional:
		walkExpr(n.Cond, visit)
		walkExpr(n.IfTrue, visit)
		walkExpr(n.IfFalse, visit)
	case *Concat:
		for _, p := range n.Parts {
			walkExpr(p, visit)
		}
	}
}
