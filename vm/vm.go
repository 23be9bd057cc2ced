// Package vm implements the stack-based bytecode interpreter spec.md §4.5
// describes: one VM instance per render, holding a value stack, a scope
// chain, an output buffer, and loop/autoescape state, executing a
// compiler.Bytecode built by the compiler package. Multiple VM instances may
// run the same immutable Bytecode concurrently, each with its own stack and
// scope chain. Grounded on the teacher's runtime/evaluator.go for the
// operations performed (variable lookup, attribute/item access, filter/test
// dispatch, autoescape, undefined propagation) and on the stack-machine
// idiom in other_examples' bytecode interpreters for instruction dispatch;
// the fetch-decode-switch loop itself is net new since neither teacher
// compiles to bytecode.
package vm

import (
	"github.com/kilnjinja/kiln/ast"
	"github.com/kilnjinja/kiln/compiler"
	"github.com/kilnjinja/kiln/internal/errs"
	"github.com/kilnjinja/kiln/value"
)

// VM executes one Bytecode to produce output. Not safe for concurrent use by
// multiple goroutines; render concurrently by giving each goroutine its own
// VM over the same (read-only) Bytecode, per spec.md §4.5.
type VM struct {
	host     Host
	template string

	stack   []value.Value
	scopes  *scope
	loops   []*loopRecord
	buffers [][]byte

	autoescape      bool
	autoescapeSaved []bool

	depth    int
	maxDepth int

	// blockChain maps a block name to its override chain, most-derived
	// first, so BLOCK_REF renders the winning override and super() can walk
	// to the next entry. Populated by Render when the template participates
	// in an inheritance chain; nil for a standalone render.
	blockChain map[string][]*compiler.BlockDef
	blockIdx   map[string]int

	callerStack []*value.Callable
}

// New constructs a VM bound to host, ready to Run one or more Bytecodes
// (sequentially; a VM is not reentrant).
func New(host Host, template string) *VM {
	return &VM{
		host:     host,
		template: template,
		scopes:   newScope(nil),
		buffers:  [][]byte{make([]byte, 0, 256)},
		maxDepth: host.MaxRecursion(),
	}
}

// Globals seeds the root scope with the render's context variables.
func (v *VM) Globals(vars map[string]value.Value) {
	for k, val := range vars {
		v.scopes.bind(k, val)
	}
}

// Run executes bc from its first instruction and returns the accumulated
// output. blockChain/blockIdx, if non-nil, let OpBlockRef resolve to a
// child template's override instead of bc's own block body.
func (v *VM) Run(bc *compiler.Bytecode) (string, error) {
	v.autoescape = v.host.Autoescape(v.template)
	if err := v.exec(bc, bc.Instrs); err != nil {
		return "", err
	}
	return string(v.buffers[len(v.buffers)-1]), nil
}

func (v *VM) push(val value.Value) { v.stack = append(v.stack, val) }

func (v *VM) pop() value.Value {
	n := len(v.stack) - 1
	val := v.stack[n]
	v.stack = v.stack[:n]
	return val
}

func (v *VM) popN(n int) []value.Value {
	start := len(v.stack) - n
	out := make([]value.Value, n)
	copy(out, v.stack[start:])
	v.stack = v.stack[:start]
	return out
}

func (v *VM) err(kind errs.Kind, line int, format string, args ...interface{}) error {
	return errs.New(kind, v.template, line, format, args...)
}

func (v *VM) writeOutput(s string) {
	top := len(v.buffers) - 1
	v.buffers[top] = append(v.buffers[top], s...)
}

// exec runs instrs (either bc.Instrs or a macro/block's out-of-line
// instruction slice) to completion or OpEnd, sharing v's stack/scope/loop
// state with the caller.
func (v *VM) exec(bc *compiler.Bytecode, instrs []compiler.Instr) error {
	pc := int32(0)
	for {
		if int(pc) >= len(instrs) {
			return nil
		}
		in := instrs[pc]
		switch in.Op {
		case compiler.OpEnd:
			return nil

		case compiler.OpLoadConst:
			v.push(bc.Consts[in.A])
		case compiler.OpLoadString:
			v.push(value.String(bc.Strings[in.A]))
		case compiler.OpLoadVar:
			name := bc.Names[in.A]
			if val, ok := v.scopes.get(name); ok {
				v.push(val)
			} else if val, ok := v.host.Global(name); ok {
				v.push(val)
			} else {
				v.push(value.FromUndefined(value.NewUndefined(name, v.host.UndefinedPolicy())))
			}
		case compiler.OpStoreVar:
			v.scopes.set(bc.Names[in.A], v.pop())

		case compiler.OpOutput:
			vals := v.popN(int(in.A))
			for _, val := range vals {
				if err := v.emitOutput(val, in.Line); err != nil {
					return err
				}
			}

		case compiler.OpBinOp:
			right := v.pop()
			left := v.pop()
			result, err := v.binOp(ast.BinOpKind(in.A), left, right, in.Line)
			if err != nil {
				return err
			}
			v.push(result)
		case compiler.OpUnOp:
			result, err := v.unOp(ast.UnaryOpKind(in.A), v.pop(), in.Line)
			if err != nil {
				return err
			}
			v.push(result)
		case compiler.OpCmp:
			n := int(in.A)
			vals := v.popN(n + 1)
			ops := bc.CompareChains[in.B]
			v.push(value.Bool(evalCompareChain(vals, ops)))

		case compiler.OpCall:
			if err := v.execCall(bc, in); err != nil {
				return err
			}
		case compiler.OpFilter:
			if err := v.execFilter(bc, in); err != nil {
				return err
			}
		case compiler.OpTest:
			if err := v.execTest(bc, in); err != nil {
				return err
			}

		case compiler.OpGetattr:
			target := v.pop()
			v.push(v.getattr(target, bc.Names[in.A]))
		case compiler.OpGetitem:
			key := v.pop()
			target := v.pop()
			result, err := v.getitem(target, key, in.Line)
			if err != nil {
				return err
			}
			v.push(result)
		case compiler.OpSlice:
			result, err := v.execSlice(in)
			if err != nil {
				return err
			}
			v.push(result)

		case compiler.OpJump:
			pc = in.A
			continue
		case compiler.OpJumpIfFalse:
			if !v.pop().Truthy() {
				pc = in.A
				continue
			}
		case compiler.OpJumpIfTrue:
			if v.pop().Truthy() {
				pc = in.A
				continue
			}
		case compiler.OpJumpIfFalseNoPop:
			if !v.stack[len(v.stack)-1].Truthy() {
				pc = in.A
				continue
			}
			v.pop()
		case compiler.OpJumpIfTrueNoPop:
			if v.stack[len(v.stack)-1].Truthy() {
				pc = in.A
				continue
			}
			v.pop()

		case compiler.OpForIter:
			rec := v.loops[len(v.loops)-1]
			if rec.exhausted() {
				pc = in.A
				continue
			}
			v.bindLoopTargets(rec)

		case compiler.OpEnterLoop:
			if err := v.execEnterLoop(bc, in); err != nil {
				return err
			}
		case compiler.OpExitLoop:
			iterated := v.exitLoop()
			if iterated {
				pc = in.A
				continue
			}

		case compiler.OpBreak:
			v.exitLoop()
			pc = in.A
			continue
		case compiler.OpContinue:
			pc = in.A
			continue

		case compiler.OpPushScope:
			v.scopes = newScope(v.scopes)
		case compiler.OpPopScope:
			v.scopes = v.scopes.parent

		case compiler.OpAutoescapeEnter:
			v.autoescapeSaved = append(v.autoescapeSaved, v.autoescape)
			v.autoescape = v.pop().Truthy()
		case compiler.OpAutoescapeExit:
			n := len(v.autoescapeSaved) - 1
			v.autoescape = v.autoescapeSaved[n]
			v.autoescapeSaved = v.autoescapeSaved[:n]

		case compiler.OpMakeList:
			v.push(value.ListFromSlice(v.popN(int(in.A))))
		case compiler.OpMakeTuple:
			v.push(value.ListFromSlice(v.popN(int(in.A))))
		case compiler.OpMakeDict:
			n := int(in.A)
			flat := v.popN(n * 2)
			d := value.NewDict()
			for i := 0; i < n; i++ {
				d.Set(value.ToDisplayString(flat[i*2]), flat[i*2+1])
			}
			v.push(value.FromDict(d))

		case compiler.OpLoadUndefined:
			v.push(value.FromUndefined(value.NewUndefined(bc.Names[in.A], v.host.UndefinedPolicy())))

		case compiler.OpDup:
			v.push(v.stack[len(v.stack)-1])
		case compiler.OpPop:
			v.pop()

		case compiler.OpMacroDef:
			def := bc.Macros[in.A]
			v.push(value.FromCallable(v.makeMacroCallable(bc, def)))
		case compiler.OpCallerCapture:
			callable := v.pop()
			v.callerStack = append(v.callerStack, callable.AsCallable())

		case compiler.OpBlockRef:
			if err := v.execBlockRef(bc, in); err != nil {
				return err
			}
		case compiler.OpExtends:
			// EXTENDS is handled by Render's inheritance-chain resolution
			// before the body ever executes; reaching it here is a no-op.
		case compiler.OpInclude:
			if err := v.execInclude(bc, in); err != nil {
				return err
			}
		case compiler.OpImportModule:
			if err := v.execImportModule(bc, in); err != nil {
				return err
			}
		case compiler.OpSetattr:
			if err := v.execSetattr(bc, in); err != nil {
				return err
			}
		case compiler.OpCaptureStart:
			v.buffers = append(v.buffers, make([]byte, 0, 64))
		case compiler.OpCaptureEnd:
			n := len(v.buffers) - 1
			captured := string(v.buffers[n])
			v.buffers = v.buffers[:n]
			v.push(value.String(captured))

		default:
			return v.err(errs.KindType, in.Line, "unimplemented opcode %s", in.Op)
		}
		pc++
	}
}

// emitOutput applies Finalize then autoescape, matching spec.md §4.5.
// PolicyStrict/PolicyChainable undefined values raise on output; Lenient
// renders empty and Debug renders its sentinel text.
func (v *VM) emitOutput(val value.Value, line int) error {
	if val.Kind() == value.KindUndefined {
		if err := v.checkUndefined(val, line); err != nil {
			return err
		}
	}
	val = v.host.Finalize(val)
	if val.Kind() == value.KindMarkup {
		v.writeOutput(val.AsString())
		return nil
	}
	s := value.ToDisplayString(val)
	if v.autoescape {
		s = value.EscapeHTML(s)
	}
	v.writeOutput(s)
	return nil
}

// checkUndefined raises UndefinedError when val is an Undefined whose
// policy demands it (Strict always, Chainable once actually used rather
// than merely chained through); Lenient and Debug never raise here.
func (v *VM) checkUndefined(val value.Value, line int) error {
	u := val.AsUndefined()
	if u == nil {
		return nil
	}
	switch u.Policy {
	case value.PolicyStrict, value.PolicyChainable:
		return v.err(errs.KindUndefined, line, "%q is undefined", u.Name)
	default:
		return nil
	}
}

func (v *VM) exitLoop() (iterated bool) {
	rec := v.loops[len(v.loops)-1]
	v.loops = v.loops[:len(v.loops)-1]
	v.scopes = v.scopes.parent
	return rec.iterated
}

func (v *VM) bindLoopTargets(rec *loopRecord) {
	item := rec.next()
	if len(rec.targets) <= 1 {
		if len(rec.targets) == 1 {
			v.scopes.bind(rec.targets[0], item)
		}
	} else if item.Kind() == value.KindList {
		parts := item.AsList()
		for i, name := range rec.targets {
			if i < len(parts) {
				v.scopes.bind(name, parts[i])
			} else {
				v.scopes.bind(name, value.FromUndefined(value.NewUndefined(name, v.host.UndefinedPolicy())))
			}
		}
	}
	v.scopes.bind("loop", rec.namespace())
}

func (v *VM) execEnterLoop(bc *compiler.Bytecode, in compiler.Instr) error {
	iterable := v.pop()
	var items []value.Value
	value.Iterate(iterable, func(val value.Value) bool {
		items = append(items, val)
		return true
	})
	names := bc.Names[in.A : in.A+in.B]
	v.scopes = newScope(v.scopes)
	v.loops = append(v.loops, &loopRecord{items: items, depth: len(v.loops), targets: names})
	return nil
}
