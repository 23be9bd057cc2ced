package optimizer

import (
	"github.com/kilnjinja/kiln/ast"
	"github.com/kilnjinja/kiln/value"
)

// ConstantFold evaluates expressions built entirely from literals at compile
// time and replaces them with the resulting literal node, per spec.md §4.3.
// It never touches expressions that read a Name, call a filter/test/macro,
// or index into a container, since those can depend on render-time state or
// have side effects.
type ConstantFold struct{}

func (ConstantFold) Name() string { return "constant-fold" }

func (c ConstantFold) Apply(body []ast.Statement) ([]ast.Statement, bool) {
	changed := false
	for i, s := range body {
		body[i], changed = foldStatement(s), changed
		_ = i
	}
	for i := range body {
		foldStatementExprs(body[i], &changed)
	}
	return body, changed
}

func foldStatement(s ast.Statement) ast.Statement { return s }

// foldStatementExprs rewrites every expression reachable from s in place,
// folding literal subexpressions bottom-up.
func foldStatementExprs(s ast.Statement, changed *bool) {
	switch n := s.(type) {
	case *ast.Output:
		for i, e := range n.Nodes {
			n.Nodes[i] = foldExpr(e, changed)
		}
	case *ast.If:
		n.Cond = foldExpr(n.Cond, changed)
		for i := range n.Elifs {
			n.Elifs[i].Cond = foldExpr(n.Elifs[i].Cond, changed)
		}
	case *ast.For:
		n.Iter = foldExpr(n.Iter, changed)
		if n.Filter != nil {
			n.Filter = foldExpr(n.Filter, changed)
		}
	case *ast.Set:
		if n.Value != nil {
			n.Value = foldExpr(n.Value, changed)
		}
	case *ast.With:
		for i, v := range n.Values {
			n.Values[i] = foldExpr(v, changed)
		}
	case *ast.Autoescape:
		n.Enabled = foldExpr(n.Enabled, changed)
	case *ast.Do:
		n.Expr = foldExpr(n.Expr, changed)
	}
}

// foldExpr recursively folds e bottom-up, returning a literal node in place
// of any subexpression whose operands are all literals.
func foldExpr(e ast.Expression, changed *bool) ast.Expression {
	switch n := e.(type) {
	case *ast.BinOp:
		n.Left = foldExpr(n.Left, changed)
		n.Right = foldExpr(n.Right, changed)
		if folded := tryFoldBinOp(n); folded != nil {
			*changed = true
			return folded
		}
	case *ast.UnaryOp:
		n.Expr = foldExpr(n.Expr, changed)
		if folded := tryFoldUnaryOp(n); folded != nil {
			*changed = true
			return folded
		}
	case *ast.Compare:
		n.First = foldExpr(n.First, changed)
		for i := range n.Links {
			n.Links[i].Right = foldExpr(n.Links[i].Right, changed)
		}
		if folded := tryFoldCompare(n); folded != nil {
			*changed = true
			return folded
		}
	case *ast.Concat:
		allLit := true
		for i, p := range n.Parts {
			n.Parts[i] = foldExpr(p, changed)
			if !isLiteral(n.Parts[i]) {
				allLit = false
			}
		}
		if allLit {
			s := ""
			for _, p := range n.Parts {
				v, ok := literalToValue(p)
				if !ok {
					return n
				}
				s += value.ToDisplayString(v)
			}
			*changed = true
			return &ast.StringLit{Position: n.Position, Value: s}
		}
	case *ast.Conditional:
		n.Cond = foldExpr(n.Cond, changed)
		n.IfTrue = foldExpr(n.IfTrue, changed)
		if n.IfFalse != nil {
			n.IfFalse = foldExpr(n.IfFalse, changed)
		}
		if lit, ok := literalToValue(n.Cond); ok {
			*changed = true
			if lit.Truthy() {
				return n.IfTrue
			}
			if n.IfFalse != nil {
				return n.IfFalse
			}
		}
	case *ast.ListLit:
		for i, it := range n.Items {
			n.Items[i] = foldExpr(it, changed)
		}
	case *ast.TupleLit:
		for i, it := range n.Items {
			n.Items[i] = foldExpr(it, changed)
		}
	case *ast.DictLit:
		for i := range n.Entries {
			n.Entries[i].Key = foldExpr(n.Entries[i].Key, changed)
			n.Entries[i].Value = foldExpr(n.Entries[i].Value, changed)
		}
	case *ast.Filter:
		n.Target = foldExpr(n.Target, changed)
		for i := range n.Call.Args {
			n.Call.Args[i].Value = foldExpr(n.Call.Args[i].Value, changed)
		}
	case *ast.Test:
		n.Target = foldExpr(n.Target, changed)
		for i := range n.Call.Args {
			n.Call.Args[i].Value = foldExpr(n.Call.Args[i].Value, changed)
		}
	case *ast.Call:
		n.Callee = foldExpr(n.Callee, changed)
		for i := range n.Args {
			n.Args[i].Value = foldExpr(n.Args[i].Value, changed)
		}
	case *ast.Getattr:
		n.Target = foldExpr(n.Target, changed)
	case *ast.Getitem:
		n.Target = foldExpr(n.Target, changed)
		n.Key = foldExpr(n.Key, changed)
	case *ast.Slice:
		n.Target = foldExpr(n.Target, changed)
		if n.Start != nil {
			n.Start = foldExpr(n.Start, changed)
		}
		if n.Stop != nil {
			n.Stop = foldExpr(n.Stop, changed)
		}
		if n.Step != nil {
			n.Step = foldExpr(n.Step, changed)
		}
	}
	return e
}

func isLiteral(e ast.Expression) bool {
	switch e.(type) {
	case *ast.StringLit, *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.NullLit:
		return true
	}
	return false
}

func literalToValue(e ast.Expression) (value.Value, bool) {
	switch n := e.(type) {
	case *ast.StringLit:
		return value.String(n.Value), true
	case *ast.IntLit:
		return value.Int(n.Value), true
	case *ast.FloatLit:
		return value.Float(n.Value), true
	case *ast.BoolLit:
		return value.Bool(n.Value), true
	case *ast.NullLit:
		return value.Null, true
	default:
		return value.Value{}, false
	}
}

func valueToLiteral(pos ast.Position, v value.Value) ast.Expression {
	switch v.Kind() {
	case value.KindString, value.KindMarkup:
		return &ast.StringLit{Position: pos, Value: v.AsString()}
	case value.KindInt:
		return &ast.IntLit{Position: pos, Value: v.AsInt()}
	case value.KindFloat:
		return &ast.FloatLit{Position: pos, Value: v.AsFloat()}
	case value.KindBool:
		return &ast.BoolLit{Position: pos, Value: v.AsBool()}
	default:
		return &ast.NullLit{Position: pos}
	}
}

func tryFoldUnaryOp(n *ast.UnaryOp) ast.Expression {
	lit, ok := literalToValue(n.Expr)
	if !ok {
		return nil
	}
	switch n.Op {
	case ast.OpNot:
		return valueToLiteral(n.Position, value.Bool(!lit.Truthy()))
	case ast.OpNeg:
		if lit.Kind() == value.KindInt {
			return valueToLiteral(n.Position, value.Int(-lit.AsInt()))
		}
		if lit.Kind() == value.KindFloat {
			return valueToLiteral(n.Position, value.Float(-lit.AsFloat()))
		}
	case ast.OpPos:
		if lit.IsNumeric() {
			return valueToLiteral(n.Position, lit)
		}
	}
	return nil
}

func tryFoldBinOp(n *ast.BinOp) ast.Expression {
	l, lok := literalToValue(n.Left)
	r, rok := literalToValue(n.Right)
	if n.Op == ast.OpAnd || n.Op == ast.OpOr {
		// `a and b` yields a if falsy(a) else b; `a or b` yields a if
		// truthy(a) else b. Once the left operand's truthiness is known,
		// the whole expression reduces to one side or the other, literal
		// or not.
		if !lok {
			return nil
		}
		if (n.Op == ast.OpAnd && !l.Truthy()) || (n.Op == ast.OpOr && l.Truthy()) {
			return n.Left
		}
		return n.Right
	}
	if !lok || !rok {
		return nil
	}
	switch n.Op {
	case ast.OpAdd:
		if l.Kind() == value.KindString && r.Kind() == value.KindString {
			return valueToLiteral(n.Position, value.String(l.AsString()+r.AsString()))
		}
		if l.IsNumeric() && r.IsNumeric() {
			return valueToLiteral(n.Position, value.AddNumeric(l, r))
		}
	case ast.OpSub:
		if l.IsNumeric() && r.IsNumeric() {
			return valueToLiteral(n.Position, value.AddNumeric(l, negate(r)))
		}
	case ast.OpMul:
		if l.Kind() == value.KindInt && r.Kind() == value.KindInt {
			return valueToLiteral(n.Position, value.Int(l.AsInt()*r.AsInt()))
		}
		if l.IsNumeric() && r.IsNumeric() {
			return valueToLiteral(n.Position, value.Float(toF(l)*toF(r)))
		}
	case ast.OpDiv:
		if l.IsNumeric() && r.IsNumeric() {
			return valueToLiteral(n.Position, value.Float(value.DivFloat(l, r)))
		}
	case ast.OpFloorDiv:
		if l.Kind() == value.KindInt && r.Kind() == value.KindInt && r.AsInt() != 0 {
			return valueToLiteral(n.Position, value.Int(floorDiv(l.AsInt(), r.AsInt())))
		}
	case ast.OpMod:
		if l.Kind() == value.KindInt && r.Kind() == value.KindInt && r.AsInt() != 0 {
			return valueToLiteral(n.Position, value.Int(floorMod(l.AsInt(), r.AsInt())))
		}
	case ast.OpPow:
		if l.IsNumeric() && r.IsNumeric() {
			return valueToLiteral(n.Position, value.Float(ipow(toF(l), toF(r))))
		}
	case ast.OpConcat:
		return valueToLiteral(n.Position, value.String(value.ToDisplayString(l)+value.ToDisplayString(r)))
	}
	return nil
}

func tryFoldCompare(n *ast.Compare) ast.Expression {
	first, ok := literalToValue(n.First)
	if !ok {
		return nil
	}
	result := true
	left := first
	for _, link := range n.Links {
		right, ok := literalToValue(link.Right)
		if !ok {
			return nil
		}
		if !evalCompareLink(left, link.Op, right) {
			result = false
		}
		left = right
	}
	return valueToLiteral(n.Position, value.Bool(result))
}

func evalCompareLink(l value.Value, op ast.CompareOpKind, r value.Value) bool {
	switch op {
	case ast.CmpEq:
		return value.Equal(l, r)
	case ast.CmpNe:
		return !value.Equal(l, r)
	case ast.CmpLt, ast.CmpLe, ast.CmpGt, ast.CmpGe:
		cmp, ok := value.Compare(l, r)
		if !ok {
			return false
		}
		switch op {
		case ast.CmpLt:
			return cmp < 0
		case ast.CmpLe:
			return cmp <= 0
		case ast.CmpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	default:
		return false // "in"/"not in" need container membership, not constant-folded here
	}
}

func negate(v value.Value) value.Value {
	if v.Kind() == value.KindInt {
		return value.Int(-v.AsInt())
	}
	return value.Float(-v.AsFloat())
}

func toF(v value.Value) float64 {
	if v.Kind() == value.KindInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((a < 0) != (b < 0)) {
		m += b
	}
	return m
}

func ipow(base, exp float64) float64 {
	result := 1.0
	neg := exp < 0
	n := exp
	if neg {
		n = -n
	}
	for i := 0; i < int(n); i++ {
		result *= base
	}
	if neg {
		return 1 / result
	}
	return result
}
