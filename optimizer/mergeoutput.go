package optimizer

import "github.com/kilnjinja/kiln/ast"

// MergeOutput coalesces adjacent Output statements (and adjacent literal
// StringLit nodes within one Output) into a single node, so the compiler
// emits one OUTPUT opcode with one concatenated constant instead of many,
// per spec.md §4.3's "output merging". Runs last in the pipeline so it sees
// the final literal shape left by constant folding and dead-branch
// elimination.
type MergeOutput struct{}

func (MergeOutput) Name() string { return "output-merge" }

func (MergeOutput) Apply(body []ast.Statement) ([]ast.Statement, bool) {
	changed := false
	out := make([]ast.Statement, 0, len(body))
	for _, s := range body {
		out, changed = appendMerged(out, s, changed)
	}
	return out, changed
}

func appendMerged(out []ast.Statement, s ast.Statement, changed bool) ([]ast.Statement, bool) {
	o, ok := s.(*ast.Output)
	if !ok {
		return append(out, s), changed
	}
	o.Nodes, changed = mergeStringLits(o.Nodes, changed)

	if len(out) > 0 {
		if prev, ok := out[len(out)-1].(*ast.Output); ok {
			prev.Nodes = append(prev.Nodes, o.Nodes...)
			prev.Nodes, changed = mergeStringLits(prev.Nodes, true)
			return out, changed
		}
	}
	return append(out, o), changed
}

// mergeStringLits collapses runs of adjacent StringLit nodes within a single
// Output's node list into one.
func mergeStringLits(nodes []ast.Expression, changed bool) ([]ast.Expression, bool) {
	out := make([]ast.Expression, 0, len(nodes))
	for _, n := range nodes {
		if lit, ok := n.(*ast.StringLit); ok && len(out) > 0 {
			if prev, ok := out[len(out)-1].(*ast.StringLit); ok {
				prev.Value += lit.Value
				changed = true
				continue
			}
		}
		out = append(out, n)
	}
	return out, changed
}
