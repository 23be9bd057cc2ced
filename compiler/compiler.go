package compiler

import (
	"fmt"

	"github.com/kilnjinja/kiln/ast"
	"github.com/kilnjinja/kiln/value"
)

// Compiler walks an optimized ast.Template and emits a Bytecode, per
// spec.md §4.4. Statement/expression compilation mirrors the operations the
// teacher's runtime/evaluator.go performs while tree-walking; here each of
// those operations becomes an opcode emission instead of a direct Go call.
type Compiler struct {
	bc  *Bytecode
	cur *[]Instr

	loopStack []*loopCtx
}

// loopCtx tracks the jump targets BREAK/CONTINUE need while compiling the
// body of an enclosing `{% for %}`: continueTarget is known as soon as the
// loop top is emitted, breakJumps are patched once the address past the
// whole loop (including its else-body) is known.
type loopCtx struct {
	continueTarget int32
	breakJumps     []int
}

// Compile compiles tmpl (already passed through optimizer.Pipeline.Optimize)
// into a Bytecode ready for vm.VM execution.
func Compile(tmpl *ast.Template) (*Bytecode, error) {
	bc := &Bytecode{Name: tmpl.Template, Extends: -1}
	c := &Compiler{bc: bc, cur: &bc.Instrs}

	if err := c.compileBody(tmpl.Body); err != nil {
		return nil, err
	}
	c.emit(tmpl.Pos().Line, OpEnd, 0, 0, 0)
	return bc, nil
}

func (c *Compiler) emit(line int, op Op, a, b, cc int32) int {
	*c.cur = append(*c.cur, Instr{Op: op, A: a, B: b, C: cc, Line: line})
	return len(*c.cur) - 1
}

func (c *Compiler) here() int32 { return int32(len(*c.cur)) }

func (c *Compiler) patchTo(idx int, target int32) { (*c.cur)[idx].A = target }

// withBuffer runs fn with c.cur redirected to a fresh instruction slice,
// returning that slice. Used for block/macro/call-block bodies, which are
// stored out-of-line from the main instruction stream.
func (c *Compiler) withBuffer(fn func() error) ([]Instr, error) {
	var buf []Instr
	saved := c.cur
	c.cur = &buf
	err := fn()
	c.cur = saved
	return buf, err
}

func (c *Compiler) compileBody(body []ast.Statement) error {
	for _, s := range body {
		if err := c.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStmt(s ast.Statement) error {
	line := s.Pos().Line
	switch n := s.(type) {
	case *ast.Output:
		return c.compileOutput(n)
	case *ast.If:
		return c.compileIf(n)
	case *ast.For:
		return c.compileFor(n)
	case *ast.Block:
		return c.compileBlock(n)
	case *ast.Extends:
		return c.compileExtends(n)
	case *ast.Include:
		return c.compileInclude(n)
	case *ast.ImportAs:
		return c.compileImportAs(n)
	case *ast.FromImport:
		return c.compileFromImport(n)
	case *ast.Macro:
		return c.compileMacro(n)
	case *ast.CallBlock:
		return c.compileCallBlock(n)
	case *ast.Set:
		return c.compileSet(n)
	case *ast.With:
		return c.compileWith(n)
	case *ast.FilterBlock:
		return c.compileFilterBlock(n)
	case *ast.Autoescape:
		return c.compileAutoescape(n)
	case *ast.Raw:
		c.emit(line, OpLoadString, c.bc.addString(n.Content), 0, 0)
		c.emit(line, OpOutput, 1, 0, 0)
		return nil
	case *ast.Do:
		if err := c.compileExpr(n.Expr); err != nil {
			return err
		}
		c.emit(line, OpPop, 0, 0, 0)
		return nil
	case *ast.Break:
		if len(c.loopStack) == 0 {
			return fmt.Errorf("compiler: break outside a loop at line %d", line)
		}
		lc := c.loopStack[len(c.loopStack)-1]
		idx := c.emit(line, OpBreak, -1, 0, 0)
		lc.breakJumps = append(lc.breakJumps, idx)
		return nil
	case *ast.Continue:
		if len(c.loopStack) == 0 {
			return fmt.Errorf("compiler: continue outside a loop at line %d", line)
		}
		lc := c.loopStack[len(c.loopStack)-1]
		c.emit(line, OpContinue, lc.continueTarget, 0, 0)
		return nil
	case *ast.Debug:
		return nil // debug info dump is a runtime/dev-console concern, not a render-path opcode
	default:
		return fmt.Errorf("compiler: unhandled statement %T at line %d", s, line)
	}
}

func (c *Compiler) compileOutput(n *ast.Output) error {
	for _, e := range n.Nodes {
		if err := c.compileExpr(e); err != nil {
			return err
		}
	}
	c.emit(n.Pos().Line, OpOutput, int32(len(n.Nodes)), 0, 0)
	return nil
}

// compileIf compiles the if/elif.../else chain as a cascade of
// JUMP_IF_FALSE / JUMP pairs, patching every "jump past the whole chain"
// target once the chain's end is known.
func (c *Compiler) compileIf(n *ast.If) error {
	var endJumps []int

	emitBranch := func(cond ast.Expression, body []ast.Statement) error {
		if err := c.compileExpr(cond); err != nil {
			return err
		}
		skip := c.emit(cond.Pos().Line, OpJumpIfFalse, -1, 0, 0)
		if err := c.compileBody(body); err != nil {
			return err
		}
		endJumps = append(endJumps, c.emit(cond.Pos().Line, OpJump, -1, 0, 0))
		c.patchTo(skip, c.here())
		return nil
	}

	if err := emitBranch(n.Cond, n.Body); err != nil {
		return err
	}
	for _, ei := range n.Elifs {
		if err := emitBranch(ei.Cond, ei.Body); err != nil {
			return err
		}
	}
	if err := c.compileBody(n.Else); err != nil {
		return err
	}
	end := c.here()
	for _, j := range endJumps {
		c.patchTo(j, end)
	}
	return nil
}

// compileFor compiles the loop per the ENTER_LOOP/FOR_ITER/EXIT_LOOP
// protocol: ENTER_LOOP converts the top-of-stack iterable into an iterator
// and binds loop.* metadata; FOR_ITER either unpacks the next item(s) into
// the target names or jumps to the exhaustion target; EXIT_LOOP then jumps
// past the else-body if at least one iteration ran.
func (c *Compiler) compileFor(n *ast.For) error {
	line := n.Pos().Line
	if err := c.compileExpr(n.Iter); err != nil {
		return err
	}
	start, count := c.bc.addNamesRaw(n.Target)
	recursiveFlag := int32(0)
	if n.Recursive {
		recursiveFlag = 1
	}
	c.emit(line, OpEnterLoop, start, count, recursiveFlag)

	loopTop := c.here()
	exhausted := c.emit(line, OpForIter, -1, 0, 0)

	lc := &loopCtx{continueTarget: loopTop}
	c.loopStack = append(c.loopStack, lc)

	if n.Filter != nil {
		if err := c.compileExpr(n.Filter); err != nil {
			return err
		}
		skip := c.emit(n.Filter.Pos().Line, OpJumpIfFalse, -1, 0, 0)
		if err := c.compileBody(n.Body); err != nil {
			return err
		}
		c.patchTo(skip, c.here())
	} else if err := c.compileBody(n.Body); err != nil {
		return err
	}
	c.emit(line, OpJump, loopTop, 0, 0)
	c.loopStack = c.loopStack[:len(c.loopStack)-1]

	c.patchTo(exhausted, c.here())
	skipElse := c.emit(line, OpExitLoop, -1, 0, 0)
	if err := c.compileBody(n.Else); err != nil {
		return err
	}
	end := c.here()
	c.patchTo(skipElse, end)
	for _, j := range lc.breakJumps {
		c.patchTo(j, end)
	}
	return nil
}

func (c *Compiler) compileBlock(n *ast.Block) error {
	body, err := c.withBuffer(func() error { return c.compileBody(n.Body) })
	if err != nil {
		return err
	}
	c.bc.Blocks = append(c.bc.Blocks, &BlockDef{
		Name: n.Name, Instrs: body, Scoped: n.Scoped, Required: n.Required, Owner: c.bc,
	})
	c.emit(n.Pos().Line, OpBlockRef, c.bc.addName(n.Name), int32(len(c.bc.Blocks)-1), 0)
	return nil
}

func (c *Compiler) compileExtends(n *ast.Extends) error {
	if s, ok := n.Template.(*ast.StringLit); ok {
		c.bc.Extends = c.bc.addString(s.Value)
		return nil
	}
	instrs, err := c.withBuffer(func() error { return c.compileExpr(n.Template) })
	if err != nil {
		return err
	}
	c.bc.ExtendsInstr = instrs
	return nil
}

func (c *Compiler) compileInclude(n *ast.Include) error {
	if err := c.compileExpr(n.Template); err != nil {
		return err
	}
	flags := int32(0)
	if n.IgnoreMissing {
		flags |= 1
	}
	if n.WithContext {
		flags |= 2
	}
	if n.Only {
		flags |= 4
	}
	c.emit(n.Pos().Line, OpInclude, flags, 0, 0)
	return nil
}

func (c *Compiler) compileImportAs(n *ast.ImportAs) error {
	line := n.Pos().Line
	if err := c.compileExpr(n.Template); err != nil {
		return err
	}
	withCtx := int32(0)
	if n.WithContext {
		withCtx = 1
	}
	c.emit(line, OpImportModule, withCtx, 0, 0)
	c.emit(line, OpStoreVar, c.bc.addName(n.Target), 0, 0)
	return nil
}

func (c *Compiler) compileFromImport(n *ast.FromImport) error {
	line := n.Pos().Line
	if err := c.compileExpr(n.Template); err != nil {
		return err
	}
	withCtx := int32(0)
	if n.WithContext {
		withCtx = 1
	}
	c.emit(line, OpImportModule, withCtx, 0, 0)
	for i, im := range n.Names {
		if i < len(n.Names)-1 {
			c.emit(line, OpDup, 0, 0, 0)
		}
		c.emit(line, OpGetattr, c.bc.addName(im.Name), 0, 0)
		alias := im.Alias
		if alias == "" {
			alias = im.Name
		}
		c.emit(line, OpStoreVar, c.bc.addName(alias), 0, 0)
	}
	return nil
}

func (c *Compiler) macroParams(params []ast.MacroParam) []MacroParam {
	out := make([]MacroParam, len(params))
	for i, p := range params {
		mp := MacroParam{Name: p.Name, DefaultConst: -1}
		if p.Default != nil {
			mp.HasDefault = true
			if lit, ok := literalConst(p.Default); ok {
				mp.DefaultConst = c.bc.addConst(lit)
			}
			// Non-literal defaults (referencing another param or a global)
			// have no pool constant; the VM binds `undefined` for the
			// parameter and relies on the macro body guarding with
			// `default()`, same as hand-written templates must.
		}
		out[i] = mp
	}
	return out
}

func literalConst(e ast.Expression) (value.Value, bool) {
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

func (c *Compiler) compileMacro(n *ast.Macro) error {
	params := c.macroParams(n.Params)
	body, err := c.withBuffer(func() error { return c.compileBody(n.Body) })
	if err != nil {
		return err
	}
	c.bc.Macros = append(c.bc.Macros, &MacroDef{Name: n.Name, Params: params, Instrs: body})
	c.emit(n.Pos().Line, OpMacroDef, int32(len(c.bc.Macros)-1), 0, 0)
	c.emit(n.Pos().Line, OpStoreVar, c.bc.addName(n.Name), 0, 0)
	return nil
}

// compileCallBlock compiles `{% call(args) macro_expr(...) %}...{% endcall %}`:
// the body becomes an anonymous "caller" macro captured before the call, per
// spec.md §4.4's MACRO_DEF/CALLER_CAPTURE pair.
func (c *Compiler) compileCallBlock(n *ast.CallBlock) error {
	line := n.Pos().Line
	params := c.macroParams(n.Params)
	body, err := c.withBuffer(func() error { return c.compileBody(n.Body) })
	if err != nil {
		return err
	}
	c.bc.Macros = append(c.bc.Macros, &MacroDef{Name: "caller", Params: params, Instrs: body})
	c.emit(line, OpMacroDef, int32(len(c.bc.Macros)-1), 0, 0)
	c.emit(line, OpCallerCapture, 0, 0, 0)

	if err := c.compileCall(n.Call); err != nil {
		return err
	}
	c.emit(line, OpOutput, 1, 0, 0)
	return nil
}

func (c *Compiler) compileSet(n *ast.Set) error {
	line := n.Pos().Line
	if n.Body != nil {
		c.emit(line, OpCaptureStart, 0, 0, 0)
		if err := c.compileBody(n.Body); err != nil {
			return err
		}
		c.emit(line, OpCaptureEnd, 0, 0, 0)
		if err := c.compileFilterChain(n.Filters, line); err != nil {
			return err
		}
	} else if err := c.compileExpr(n.Value); err != nil {
		return err
	}

	if len(n.Attr) == 0 {
		c.emit(line, OpStoreVar, c.bc.addName(n.Target), 0, 0)
		return nil
	}
	// `{% set ns.a.b = v %}`: value is already on the stack; push ns, walk
	// all but the last attr, then SETATTR the last segment. Stack is now
	// [value, target]; SETATTR pops target then value.
	c.emit(line, OpLoadVar, c.bc.addName(n.Target), 0, 0)
	for _, a := range n.Attr[:len(n.Attr)-1] {
		c.emit(line, OpGetattr, c.bc.addName(a), 0, 0)
	}
	c.emit(line, OpSetattr, c.bc.addName(n.Attr[len(n.Attr)-1]), 0, 0)
	return nil
}

func (c *Compiler) compileFilterChain(filters []ast.FilterCall, line int) error {
	for _, f := range filters {
		names := make([]string, len(f.Args))
		for i, a := range f.Args {
			if err := c.compileExpr(a.Value); err != nil {
				return err
			}
			names[i] = a.Name
		}
		c.emit(line, OpFilter, c.bc.addName(f.Name), int32(len(f.Args)), c.bc.addArgNames(names))
	}
	return nil
}

func (c *Compiler) compileWith(n *ast.With) error {
	line := n.Pos().Line
	c.emit(line, OpPushScope, 0, 0, 0)
	for i, v := range n.Values {
		if err := c.compileExpr(v); err != nil {
			return err
		}
		c.emit(line, OpStoreVar, c.bc.addName(n.Names[i]), 0, 0)
	}
	if err := c.compileBody(n.Body); err != nil {
		return err
	}
	c.emit(line, OpPopScope, 0, 0, 0)
	return nil
}

func (c *Compiler) compileFilterBlock(n *ast.FilterBlock) error {
	line := n.Pos().Line
	c.emit(line, OpCaptureStart, 0, 0, 0)
	if err := c.compileBody(n.Body); err != nil {
		return err
	}
	c.emit(line, OpCaptureEnd, 0, 0, 0)
	if err := c.compileFilterChain(n.Filters, line); err != nil {
		return err
	}
	c.emit(line, OpOutput, 1, 0, 0)
	return nil
}

func (c *Compiler) compileAutoescape(n *ast.Autoescape) error {
	line := n.Pos().Line
	if err := c.compileExpr(n.Enabled); err != nil {
		return err
	}
	c.emit(line, OpAutoescapeEnter, 0, 0, 0)
	if err := c.compileBody(n.Body); err != nil {
		return err
	}
	c.emit(line, OpAutoescapeExit, 0, 0, 0)
	return nil
}

// ---- Expressions ----

func (c *Compiler) compileExpr(e ast.Expression) error {
	line := e.Pos().Line
	switch n := e.(type) {
	case *ast.StringLit:
		c.emit(line, OpLoadString, c.bc.addString(n.Value), 0, 0)
	case *ast.IntLit:
		c.emit(line, OpLoadConst, c.bc.addConst(value.Int(n.Value)), 0, 0)
	case *ast.FloatLit:
		c.emit(line, OpLoadConst, c.bc.addConst(value.Float(n.Value)), 0, 0)
	case *ast.BoolLit:
		c.emit(line, OpLoadConst, c.bc.addConst(value.Bool(n.Value)), 0, 0)
	case *ast.NullLit:
		c.emit(line, OpLoadConst, c.bc.addConst(value.Null), 0, 0)
	case *ast.Name:
		c.emit(line, OpLoadVar, c.bc.addName(n.Ident), 0, 0)
	case *ast.ListLit:
		for _, it := range n.Items {
			if err := c.compileExpr(it); err != nil {
				return err
			}
		}
		c.emit(line, OpMakeList, int32(len(n.Items)), 0, 0)
	case *ast.TupleLit:
		for _, it := range n.Items {
			if err := c.compileExpr(it); err != nil {
				return err
			}
		}
		c.emit(line, OpMakeTuple, int32(len(n.Items)), 0, 0)
	case *ast.DictLit:
		for _, ent := range n.Entries {
			if err := c.compileExpr(ent.Key); err != nil {
				return err
			}
			if err := c.compileExpr(ent.Value); err != nil {
				return err
			}
		}
		c.emit(line, OpMakeDict, int32(len(n.Entries)), 0, 0)
	case *ast.BinOp:
		if n.Op == ast.OpAnd || n.Op == ast.OpOr {
			if err := c.compileExpr(n.Left); err != nil {
				return err
			}
			op := OpJumpIfFalseNoPop
			if n.Op == ast.OpOr {
				op = OpJumpIfTrueNoPop
			}
			skip := c.emit(line, op, -1, 0, 0)
			if err := c.compileExpr(n.Right); err != nil {
				return err
			}
			c.patchTo(skip, c.here())
			return nil
		}
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		c.emit(line, OpBinOp, int32(n.Op), 0, 0)
	case *ast.UnaryOp:
		if err := c.compileExpr(n.Expr); err != nil {
			return err
		}
		c.emit(line, OpUnOp, int32(n.Op), 0, 0)
	case *ast.Compare:
		if err := c.compileExpr(n.First); err != nil {
			return err
		}
		ops := make([]int32, len(n.Links))
		for i, link := range n.Links {
			if err := c.compileExpr(link.Right); err != nil {
				return err
			}
			ops[i] = int32(link.Op)
		}
		c.emit(line, OpCmp, int32(len(n.Links)), c.bc.addCompareChain(ops), 0)
	case *ast.Concat:
		// Reduced pairwise left-to-right so BIN_OP keeps its fixed two-operand
		// stack protocol regardless of chain length.
		if err := c.compileExpr(n.Parts[0]); err != nil {
			return err
		}
		for _, p := range n.Parts[1:] {
			if err := c.compileExpr(p); err != nil {
				return err
			}
			c.emit(line, OpBinOp, int32(ast.OpConcat), 0, 0)
		}
	case *ast.Conditional:
		if err := c.compileExpr(n.Cond); err != nil {
			return err
		}
		skip := c.emit(line, OpJumpIfFalse, -1, 0, 0)
		if err := c.compileExpr(n.IfTrue); err != nil {
			return err
		}
		end := c.emit(line, OpJump, -1, 0, 0)
		c.patchTo(skip, c.here())
		if n.IfFalse != nil {
			if err := c.compileExpr(n.IfFalse); err != nil {
				return err
			}
		} else {
			c.emit(line, OpLoadUndefined, c.bc.addName("(conditional expression)"), 0, 0)
		}
		c.patchTo(end, c.here())
	case *ast.Filter:
		if err := c.compileExpr(n.Target); err != nil {
			return err
		}
		names := make([]string, len(n.Call.Args))
		for i, a := range n.Call.Args {
			if err := c.compileExpr(a.Value); err != nil {
				return err
			}
			names[i] = a.Name
		}
		c.emit(line, OpFilter, c.bc.addName(n.Call.Name), int32(len(n.Call.Args)), c.bc.addArgNames(names))
	case *ast.Test:
		if err := c.compileExpr(n.Target); err != nil {
			return err
		}
		names := make([]string, len(n.Call.Args))
		for i, a := range n.Call.Args {
			if err := c.compileExpr(a.Value); err != nil {
				return err
			}
			names[i] = a.Name
		}
		c.emit(line, OpTest, c.bc.addName(n.Call.Name), int32(len(n.Call.Args)), c.bc.addArgNames(names))
		if n.Call.Not {
			c.emit(line, OpUnOp, int32(ast.OpNot), 0, 0)
		}
	case *ast.Call:
		return c.compileCall(n)
	case *ast.Getattr:
		if err := c.compileExpr(n.Target); err != nil {
			return err
		}
		c.emit(line, OpGetattr, c.bc.addName(n.Name), 0, 0)
	case *ast.Getitem:
		if err := c.compileExpr(n.Target); err != nil {
			return err
		}
		if err := c.compileExpr(n.Key); err != nil {
			return err
		}
		c.emit(line, OpGetitem, 0, 0, 0)
	case *ast.Slice:
		if err := c.compileExpr(n.Target); err != nil {
			return err
		}
		flags := int32(0)
		if n.Start != nil {
			flags |= 1
			if err := c.compileExpr(n.Start); err != nil {
				return err
			}
		}
		if n.Stop != nil {
			flags |= 2
			if err := c.compileExpr(n.Stop); err != nil {
				return err
			}
		}
		if n.Step != nil {
			flags |= 4
			if err := c.compileExpr(n.Step); err != nil {
				return err
			}
		}
		c.emit(line, OpSlice, flags, 0, 0)
	default:
		return fmt.Errorf("compiler: unhandled expression %T at line %d", e, line)
	}
	return nil
}

func (c *Compiler) compileCall(n *ast.Call) error {
	line := n.Pos().Line
	if err := c.compileExpr(n.Callee); err != nil {
		return err
	}
	names := make([]string, len(n.Args))
	for i, a := range n.Args {
		if err := c.compileExpr(a.Value); err != nil {
			return err
		}
		names[i] = a.Name
	}
	c.emit(line, OpCall, int32(len(n.Args)), c.bc.addArgNames(names), 0)
	return nil
}
