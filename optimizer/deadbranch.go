package optimizer

import "github.com/kilnjinja/kiln/ast"

// DeadBranch drops branches whose condition constant-folded to a literal
// boolean, per spec.md §4.3: `{% if 1 == 2 %}...{% endif %}` compiles away
// entirely, and `{% if true %}a{% else %}b{% endif %}` becomes just `a`.
// Runs after ConstantFold in the pipeline so conditions have already
// collapsed to BoolLit where possible.
type DeadBranch struct{}

func (DeadBranch) Name() string { return "dead-branch-elimination" }

func (d DeadBranch) Apply(body []ast.Statement) ([]ast.Statement, bool) {
	changed := false
	out := make([]ast.Statement, 0, len(body))
	for _, s := range body {
		replaced, c := d.rewrite(s)
		changed = changed || c
		out = append(out, replaced...)
	}
	return out, changed
}

// rewrite returns the statements that should replace s: normally []{s}, but
// an If with a constant-true/false branch is replaced by that branch's body
// spliced in directly (so a dead `{% if false %}` disappears with no trace,
// and a live `{% if true %}` stops costing a runtime branch).
func (d DeadBranch) rewrite(s ast.Statement) ([]ast.Statement, bool) {
	n, ok := s.(*ast.If)
	if !ok {
		return []ast.Statement{s}, false
	}
	if lit, ok := literalToValue(n.Cond); ok {
		if lit.Truthy() {
			return n.Body, true
		}
		return d.rewriteElifChain(n), true
	}
	return []ast.Statement{s}, false
}

// rewriteElifChain handles a false `if` by falling through to the first elif
// (recursively), or the else body, or dropping the statement entirely.
func (d DeadBranch) rewriteElifChain(n *ast.If) []ast.Statement {
	for i, ei := range n.Elifs {
		if lit, ok := literalToValue(ei.Cond); ok {
			if lit.Truthy() {
				return ei.Body
			}
			continue // this elif is also statically false, keep looking
		}
		// First non-constant elif: rebuild an If starting here so later
		// elifs/else are preserved; the original true/false elifs before it
		// have already been proven false and dropped.
		return []ast.Statement{&ast.If{
			Position: ei.Position, Cond: ei.Cond, Body: ei.Body,
			Elifs: n.Elifs[i+1:], Else: n.Else,
		}}
	}
	return n.Else
}
