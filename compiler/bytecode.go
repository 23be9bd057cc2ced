package compiler

import "github.com/kilnjinja/kiln/value"

// MacroDef is a compiled macro or call-block body, stored out-of-line in
// Bytecode.Macros and entered via OpMacroDef/OpCall, per spec.md §4.4's
// MACRO_DEF/CALLER_CAPTURE pair.
type MacroDef struct {
	Name      string
	Params    []MacroParam
	Instrs    []Instr
	NumLocals int // reserved local slots, currently unused by the tree-scope VM but kept for a future flat-frame optimization
}

type MacroParam struct {
	Name         string
	HasDefault   bool
	DefaultConst int32 // index into Bytecode.Consts when HasDefault; -1 if the default is not a literal, in which case no code is compiled for it and the VM binds an Undefined when the argument is omitted
}

// BlockDef is one `{% block name %}` body, addressable by name so child
// templates can override it and `super()` can resolve the parent's version,
// per spec.md's template-inheritance model.
type BlockDef struct {
	Name     string
	Instrs   []Instr
	Scoped   bool
	Required bool

	// Owner is the Bytecode whose const/string/name pools Instrs indexes
	// into. A child template's block override is stored in the child's own
	// Bytecode.Blocks but executed in place of the parent's block body, so
	// the VM needs this to know which pools apply — it can't assume "the
	// Bytecode currently executing" once inheritance is in play.
	Owner *Bytecode
}

// Bytecode is the immutable compiled form of one template, per spec.md §4.4:
// three pools (constants, strings, names) plus the instruction stream, with
// per-instruction line numbers for error reporting. Multiple VM instances may
// execute the same *Bytecode concurrently (spec.md §4.5); nothing in this
// struct is mutated after Compile returns.
type Bytecode struct {
	Name    string
	Instrs  []Instr
	Consts  []value.Value
	Strings []string
	Names   []string

	Macros []*MacroDef
	Blocks []*BlockDef

	Extends      int32   // string pool index of the parent template name; -1 if none
	ExtendsInstr []Instr // instructions computing a non-constant extends target; empty if Extends >= 0 or no extends

	// CompareChains holds the per-link operator sequence of every chained
	// comparison (a < b < c), addressed by OpCmp's B operand, since an
	// arbitrary-length chain doesn't fit in a fixed instruction operand.
	CompareChains [][]int32

	// ArgNames holds the keyword-argument name (or "" for positional) of
	// every argument slot for a call/filter/test site whose arguments aren't
	// all positional, addressed by OpCall/OpFilter/OpTest's name-index
	// operand.
	ArgNames [][]string
}

func (b *Bytecode) addCompareChain(ops []int32) int32 {
	b.CompareChains = append(b.CompareChains, ops)
	return int32(len(b.CompareChains) - 1)
}

func (b *Bytecode) addArgNames(names []string) int32 {
	allPositional := true
	for _, n := range names {
		if n != "" {
			allPositional = false
			break
		}
	}
	if allPositional {
		return -1
	}
	b.ArgNames = append(b.ArgNames, names)
	return int32(len(b.ArgNames) - 1)
}

// addNamesRaw appends names to the Names pool without deduping, returning
// the contiguous (start, count) range ENTER_LOOP's operands reference —
// loop targets must stay contiguous, unlike ordinary Name lookups which
// dedupe freely.
func (b *Bytecode) addNamesRaw(names []string) (int32, int32) {
	start := int32(len(b.Names))
	b.Names = append(b.Names, names...)
	return start, int32(len(names))
}

func (b *Bytecode) addConst(v value.Value) int32 {
	for i, c := range b.Consts {
		if constEqual(c, v) {
			return int32(i)
		}
	}
	b.Consts = append(b.Consts, v)
	return int32(len(b.Consts) - 1)
}

func constEqual(a, b value.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case value.KindInt:
		return a.AsInt() == b.AsInt()
	case value.KindFloat:
		return a.AsFloat() == b.AsFloat()
	case value.KindBool:
		return a.AsBool() == b.AsBool()
	case value.KindNull:
		return true
	default:
		return false
	}
}

func (b *Bytecode) addString(s string) int32 {
	for i, existing := range b.Strings {
		if existing == s {
			return int32(i)
		}
	}
	b.Strings = append(b.Strings, s)
	return int32(len(b.Strings) - 1)
}

func (b *Bytecode) addName(n string) int32 {
	for i, existing := range b.Names {
		if existing == n {
			return int32(i)
		}
	}
	b.Names = append(b.Names, n)
	return int32(len(b.Names) - 1)
}
