// Package optimizer runs constant-folding, dead-branch-elimination, and
// output-merging passes over a parsed ast.Template before it reaches the
// compiler, per spec.md §4.3. Pass/Pipeline shape is grounded on
// other_examples' kanso-lang IR optimizer (OptimizationPass interface +
// OptimizationPipeline runner), adapted from an EVM IR onto kiln's
// Statement/Expression AST.
package optimizer

import "github.com/kilnjinja/kiln/ast"

// Pass is a single optimization transformation over a statement list. Apply
// returns the rewritten statements and whether anything changed.
type Pass interface {
	Name() string
	Apply(body []ast.Statement) ([]ast.Statement, bool)
}

// Pipeline runs passes to a fixed point (or maxRounds, to guarantee
// termination on passes that could in principle oscillate), satisfying
// spec.md §4.3's idempotence requirement: optimize(optimize(A)) == optimize(A).
type Pipeline struct {
	passes    []Pass
	maxRounds int
}

// Default returns the standard kiln optimization pipeline: constant folding,
// dead-branch elimination, then output merging. Folding runs before
// dead-branch elimination so `{% if 1 + 1 == 2 %}` collapses in the same
// pass round that then drops the unreachable else branch, and output
// merging runs last so it sees the final literal shape of every branch.
func Default() *Pipeline {
	return &Pipeline{
		passes:    []Pass{&ConstantFold{}, &DeadBranch{}, &MergeOutput{}},
		maxRounds: 8,
	}
}

// Optimize runs the pipeline to a fixed point over tmpl.Body in place and
// returns tmpl.
func (p *Pipeline) Optimize(tmpl *ast.Template) *ast.Template {
	tmpl.Body = p.run(tmpl.Body)
	return tmpl
}

func (p *Pipeline) run(body []ast.Statement) []ast.Statement {
	for round := 0; round < p.maxRounds; round++ {
		changed := false
		for _, pass := range p.passes {
			var c bool
			body, c = pass.Apply(body)
			changed = changed || c
		}
		body = recurseBody(body, p)
		if !changed {
			break
		}
	}
	return body
}

// recurseBody applies the pipeline to every nested statement list (if/for/
// block/macro/etc. bodies) so optimizations reach every nesting depth, not
// just the top level.
func recurseBody(body []ast.Statement, p *Pipeline) []ast.Statement {
	for _, s := range body {
		switch n := s.(type) {
		case *ast.If:
			n.Body = p.run(n.Body)
			for i := range n.Elifs {
				n.Elifs[i].Body = p.run(n.Elifs[i].Body)
			}
			n.Else = p.run(n.Else)
		case *ast.For:
			n.Body = p.run(n.Body)
			n.Else = p.run(n.Else)
		case *ast.Block:
			n.Body = p.run(n.Body)
		case *ast.Macro:
			n.Body = p.run(n.Body)
		case *ast.CallBlock:
			n.Body = p.run(n.Body)
		case *ast.Set:
			n.Body = p.run(n.Body)
		case *ast.With:
			n.Body = p.run(n.Body)
		case *ast.FilterBlock:
			n.Body = p.run(n.Body)
		case *ast.Autoescape:
			n.Body = p.run(n.Body)
		}
	}
	return body
}
