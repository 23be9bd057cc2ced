package vm

import (
	"github.com/kilnjinja/kiln/compiler"
	"github.com/kilnjinja/kiln/internal/errs"
	"github.com/kilnjinja/kiln/value"
)

// splitArgs separates a flat argument list into positional args and a
// keyword map, using the name recorded for each slot (empty string means
// positional) — the Bytecode.ArgNames side pool addressed by OpCall/
// OpFilter/OpTest's name-index operand. argNamesIdx is -1 when the call site
// was purely positional, the common case, so no names lookup is needed.
func splitArgs(bc *compiler.Bytecode, argNamesIdx int32, vals []value.Value) ([]value.Value, map[string]value.Value) {
	if argNamesIdx < 0 {
		return vals, nil
	}
	names := bc.ArgNames[argNamesIdx]
	positional := make([]value.Value, 0, len(vals))
	kwargs := make(map[string]value.Value)
	for i, val := range vals {
		if i < len(names) && names[i] != "" {
			kwargs[names[i]] = val
		} else {
			positional = append(positional, val)
		}
	}
	return positional, kwargs
}

func (v *VM) execCall(bc *compiler.Bytecode, in compiler.Instr) error {
	args := v.popN(int(in.A))
	callee := v.pop()
	positional, kwargs := splitArgs(bc, in.B, args)

	switch callee.Kind() {
	case value.KindCallable:
		c := callee.AsCallable()
		if c.Kind == value.CallableMacro {
			result, err := v.callMacro(c, positional, kwargs, in.Line)
			if err != nil {
				return err
			}
			v.push(result)
			return nil
		}
		if c.Unsafe {
			if policy, ok := v.host.Sandbox(); ok && !policy.IsSafeCallable(c.Name, c.Unsafe) {
				return v.err(errs.KindSecurity, in.Line, "%q is not a safe callable in a sandboxed environment", c.Name)
			}
		}
		result, err := c.Call(positional, kwargs)
		if err != nil {
			return v.err(errs.KindType, in.Line, "%s", err.Error())
		}
		v.push(result)
		return nil
	case value.KindCustom:
		result, err := callee.AsCustom().Call("", positional)
		if err != nil {
			return v.err(errs.KindType, in.Line, "%s", err.Error())
		}
		v.push(result)
		return nil
	case value.KindUndefined:
		return v.err(errs.KindUndefined, in.Line, "%q is undefined", callee.AsUndefined().Name)
	default:
		return v.err(errs.KindType, in.Line, "%s object is not callable", callee.TypeName())
	}
}

func (v *VM) execFilter(bc *compiler.Bytecode, in compiler.Instr) error {
	extra := v.popN(int(in.B))
	target := v.pop()
	name := bc.Names[in.A]
	f, ok := v.host.Filter(name)
	if !ok {
		return v.err(errs.KindFilter, in.Line, "no filter named %q", name)
	}
	args := append([]value.Value{target}, extra...)
	positional, kwargs := splitArgs(bc, in.C, args)
	result, err := f.Call(positional, kwargs)
	if err != nil {
		return v.err(errs.KindFilter, in.Line, "%s: %s", name, err.Error())
	}
	v.push(result)
	return nil
}

func (v *VM) execTest(bc *compiler.Bytecode, in compiler.Instr) error {
	extra := v.popN(int(in.B))
	target := v.pop()
	name := bc.Names[in.A]
	t, ok := v.host.Test(name)
	if !ok {
		return v.err(errs.KindFilter, in.Line, "no test named %q", name)
	}
	args := append([]value.Value{target}, extra...)
	positional, kwargs := splitArgs(bc, in.C, args)
	result, err := t.Call(positional, kwargs)
	if err != nil {
		return v.err(errs.KindFilter, in.Line, "%s: %s", name, err.Error())
	}
	v.push(result)
	return nil
}

// macroClosure is the MacroBody a macro definition's Callable wraps: its
// compiled instructions plus the scope chain active where the macro was
// defined, since a macro closes over its defining environment, not its
// caller's.
type macroClosure struct {
	bc    *compiler.Bytecode
	def   *compiler.MacroDef
	scope *scope
}

func (v *VM) makeMacroCallable(bc *compiler.Bytecode, def *compiler.MacroDef) *value.Callable {
	return &value.Callable{
		Name: def.Name,
		Kind: value.CallableMacro,
		Macro: &macroClosure{bc: bc, def: def, scope: v.scopes},
	}
}

// callMacro binds parameters into a fresh scope rooted at the macro's
// defining scope (not the caller's), runs its body with output captured to
// a string, and returns that string as the call's result, per spec.md's
// macro-call semantics.
func (v *VM) callMacro(c *value.Callable, args []value.Value, kwargs map[string]value.Value, line int) (value.Value, error) {
	closure := c.Macro.(*macroClosure)

	v.depth++
	if v.depth > v.maxDepth {
		v.depth--
		return value.Value{}, v.err(errs.KindRecursionLimit, line, "recursion limit exceeded calling macro %q", c.Name)
	}
	defer func() { v.depth-- }()

	callScope := newScope(closure.scope)
	for i, p := range closure.def.Params {
		switch {
		case i < len(args):
			callScope.bind(p.Name, args[i])
		default:
			if val, ok := kwargs[p.Name]; ok {
				callScope.bind(p.Name, val)
				continue
			}
			if p.HasDefault && p.DefaultConst >= 0 {
				callScope.bind(p.Name, closure.bc.Consts[p.DefaultConst])
				continue
			}
			callScope.bind(p.Name, value.FromUndefined(value.NewUndefined(p.Name, v.host.UndefinedPolicy())))
		}
	}
	if len(v.callerStack) > 0 {
		n := len(v.callerStack) - 1
		callScope.bind("caller", value.FromCallable(v.callerStack[n]))
		v.callerStack = v.callerStack[:n]
	}

	savedScope := v.scopes
	v.scopes = callScope
	v.buffers = append(v.buffers, make([]byte, 0, 64))
	err := v.exec(closure.bc, closure.def.Instrs)
	n := len(v.buffers) - 1
	captured := string(v.buffers[n])
	v.buffers = v.buffers[:n]
	v.scopes = savedScope
	if err != nil {
		return value.Value{}, err
	}
	return value.Markup(captured), nil
}

// execBlockRef renders the winning override of a named block: the deepest
// child's body if Render populated v.blockChain for an inheritance chain,
// otherwise the block's own body. A "super" callable is bound into scope
// whenever a less-derived entry remains in the chain, per spec.md's
// super() contract.
func (v *VM) execBlockRef(bc *compiler.Bytecode, in compiler.Instr) error {
	name := bc.Names[in.A]
	chain := []*compiler.BlockDef{bc.Blocks[in.B]}
	if v.blockChain != nil {
		if c, ok := v.blockChain[name]; ok && len(c) > 0 {
			chain = c
		}
	}
	return v.runBlockChain(chain, 0)
}

func (v *VM) runBlockChain(chain []*compiler.BlockDef, idx int) error {
	def := chain[idx]
	v.scopes = newScope(v.scopes)
	if idx+1 < len(chain) {
		nextIdx := idx + 1
		super := &value.Callable{
			Name: "super",
			Kind: value.CallableFunction,
			Native: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
				v.buffers = append(v.buffers, make([]byte, 0, 64))
				err := v.runBlockChain(chain, nextIdx)
				n := len(v.buffers) - 1
				captured := string(v.buffers[n])
				v.buffers = v.buffers[:n]
				if err != nil {
					return value.Value{}, err
				}
				return value.Markup(captured), nil
			},
		}
		v.scopes.bind("super", value.FromCallable(super))
	}
	err := v.exec(def.Owner, def.Instrs)
	v.scopes = v.scopes.parent
	return err
}

// execInclude resolves and runs a second template in place, splicing its
// output into the current buffer. with_context/only govern whether the
// included template sees the caller's scope, per spec.md's include
// semantics.
func (v *VM) execInclude(bc *compiler.Bytecode, in compiler.Instr) error {
	nameVal := v.pop()
	name := value.ToDisplayString(nameVal)
	ignoreMissing := in.A&1 != 0
	withContext := in.A&2 != 0
	only := in.A&4 != 0

	sub, err := v.host.Compile(name)
	if err != nil {
		if ignoreMissing && errs.Is(err, errs.KindTemplateNotFound) {
			return nil
		}
		return err
	}

	v.depth++
	if v.depth > v.maxDepth {
		v.depth--
		return v.err(errs.KindRecursionLimit, in.Line, "recursion limit exceeded including %q", name)
	}
	defer func() { v.depth-- }()

	savedScope := v.scopes
	if withContext && !only {
		v.scopes = newScope(v.scopes)
	} else {
		v.scopes = newScope(nil)
	}
	err = v.exec(sub, sub.Instrs)
	v.scopes = savedScope
	return err
}

// execImportModule resolves and runs a template for its side effects (macro
// and top-level variable definitions), then pushes those bindings as a dict
// namespace for GETATTR/STORE_VAR to unpack, per spec.md's import semantics.
// The imported template's own output (if it has any besides macro defs) is
// discarded, matching Jinja2's import contract.
func (v *VM) execImportModule(bc *compiler.Bytecode, in compiler.Instr) error {
	nameVal := v.pop()
	name := value.ToDisplayString(nameVal)
	withContext := in.A == 1

	sub, err := v.host.Compile(name)
	if err != nil {
		return err
	}

	v.depth++
	if v.depth > v.maxDepth {
		v.depth--
		return v.err(errs.KindRecursionLimit, in.Line, "recursion limit exceeded importing %q", name)
	}
	defer func() { v.depth-- }()

	savedScope := v.scopes
	var moduleScope *scope
	if withContext {
		moduleScope = newScope(v.scopes)
	} else {
		moduleScope = newScope(nil)
	}
	v.scopes = moduleScope
	v.buffers = append(v.buffers, make([]byte, 0, 64))
	err = v.exec(sub, sub.Instrs)
	n := len(v.buffers) - 1
	v.buffers = v.buffers[:n]
	v.scopes = savedScope
	if err != nil {
		return err
	}

	d := value.NewDict()
	for k, val := range moduleScope.vars {
		d.Set(k, val)
	}
	v.push(value.FromDict(d))
	return nil
}

// execSetattr mutates a namespace() object; namespaces are the only
// mutable attribute target the language exposes, per spec.md's namespace()
// builtin, so anything else here is a template author error.
func (v *VM) execSetattr(bc *compiler.Bytecode, in compiler.Instr) error {
	target := v.pop()
	val := v.pop()
	name := bc.Names[in.A]
	if target.Kind() != value.KindDict {
		return v.err(errs.KindAttribute, in.Line, "%q object has no settable attribute %q", target.TypeName(), name)
	}
	target.AsDict().Set(name, val)
	return nil
}
