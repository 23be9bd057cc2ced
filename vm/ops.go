package vm

import (
	"github.com/kilnjinja/kiln/ast"
	"github.com/kilnjinja/kiln/compiler"
	"github.com/kilnjinja/kiln/internal/errs"
	"github.com/kilnjinja/kiln/value"
)

// binOp implements BIN_OP, per spec.md §3: `+` adds numerics or concatenates
// strings by operand type, `~` always stringifies and concatenates
// regardless of type. `and`/`or` never reach here — the compiler lowers
// them to short-circuiting jumps (JUMP_IF_*_NOPOP) instead.
func (v *VM) binOp(op ast.BinOpKind, l, r value.Value, line int) (value.Value, error) {
	if err := v.checkUndefined(l, line); err != nil {
		return value.Value{}, err
	}
	if err := v.checkUndefined(r, line); err != nil {
		return value.Value{}, err
	}
	switch op {
	case ast.OpAdd:
		if l.Kind() == value.KindString && r.Kind() == value.KindString {
			return value.String(l.AsString() + r.AsString()), nil
		}
		if l.Kind() == value.KindList && r.Kind() == value.KindList {
			return value.ListFromSlice(append(append([]value.Value{}, l.AsList()...), r.AsList()...)), nil
		}
		if !l.IsNumeric() || !r.IsNumeric() {
			return value.Value{}, v.err(errs.KindType, line, "unsupported operand types for +: %s and %s", l.TypeName(), r.TypeName())
		}
		return value.AddNumeric(l, r), nil
	case ast.OpSub:
		if !l.IsNumeric() || !r.IsNumeric() {
			return value.Value{}, v.err(errs.KindType, line, "unsupported operand types for -: %s and %s", l.TypeName(), r.TypeName())
		}
		return value.AddNumeric(l, negateNumeric(r)), nil
	case ast.OpMul:
		if l.Kind() == value.KindString && r.Kind() == value.KindInt {
			return value.String(repeatString(l.AsString(), int(r.AsInt()))), nil
		}
		if !l.IsNumeric() || !r.IsNumeric() {
			return value.Value{}, v.err(errs.KindType, line, "unsupported operand types for *: %s and %s", l.TypeName(), r.TypeName())
		}
		if l.Kind() == value.KindInt && r.Kind() == value.KindInt {
			return value.Int(l.AsInt() * r.AsInt()), nil
		}
		return value.Float(asF(l) * asF(r)), nil
	case ast.OpDiv:
		if !l.IsNumeric() || !r.IsNumeric() {
			return value.Value{}, v.err(errs.KindType, line, "unsupported operand types for /: %s and %s", l.TypeName(), r.TypeName())
		}
		if asF(r) == 0 {
			return value.Value{}, v.err(errs.KindZeroDivision, line, "division by zero")
		}
		return value.Float(value.DivFloat(l, r)), nil
	case ast.OpFloorDiv:
		if l.Kind() != value.KindInt || r.Kind() != value.KindInt {
			return value.Value{}, v.err(errs.KindType, line, "unsupported operand types for //: %s and %s", l.TypeName(), r.TypeName())
		}
		if r.AsInt() == 0 {
			return value.Value{}, v.err(errs.KindZeroDivision, line, "integer division or modulo by zero")
		}
		return value.Int(floorDivInt(l.AsInt(), r.AsInt())), nil
	case ast.OpMod:
		if l.Kind() != value.KindInt || r.Kind() != value.KindInt {
			return value.Value{}, v.err(errs.KindType, line, "unsupported operand types for %%: %s and %s", l.TypeName(), r.TypeName())
		}
		if r.AsInt() == 0 {
			return value.Value{}, v.err(errs.KindZeroDivision, line, "integer division or modulo by zero")
		}
		return value.Int(floorModInt(l.AsInt(), r.AsInt())), nil
	case ast.OpPow:
		if !l.IsNumeric() || !r.IsNumeric() {
			return value.Value{}, v.err(errs.KindType, line, "unsupported operand types for **: %s and %s", l.TypeName(), r.TypeName())
		}
		return value.Float(powFloat(asF(l), asF(r))), nil
	case ast.OpConcat:
		return value.String(value.ToDisplayString(l) + value.ToDisplayString(r)), nil
	default:
		return value.Value{}, v.err(errs.KindType, line, "unknown binary operator %d", op)
	}
}

func (v *VM) unOp(op ast.UnaryOpKind, operand value.Value, line int) (value.Value, error) {
	switch op {
	case ast.OpNot:
		return value.Bool(!operand.Truthy()), nil
	case ast.OpNeg:
		if err := v.checkUndefined(operand, line); err != nil {
			return value.Value{}, err
		}
		if operand.Kind() == value.KindInt {
			return value.Int(-operand.AsInt()), nil
		}
		if operand.Kind() == value.KindFloat {
			return value.Float(-operand.AsFloat()), nil
		}
		return value.Value{}, v.err(errs.KindType, line, "bad operand type for unary -: %s", operand.TypeName())
	case ast.OpPos:
		if !operand.IsNumeric() {
			return value.Value{}, v.err(errs.KindType, line, "bad operand type for unary +: %s", operand.TypeName())
		}
		return operand, nil
	default:
		return value.Value{}, v.err(errs.KindType, line, "unknown unary operator %d", op)
	}
}

// evalCompareChain implements chained comparison short-circuit-free
// evaluation: vals holds [first, right1, ..., rightN] already evaluated
// exactly once each; the chain is true iff every adjacent link holds.
func evalCompareChain(vals []value.Value, ops []int32) bool {
	left := vals[0]
	for i, op := range ops {
		right := vals[i+1]
		if !evalCompareLink(left, ast.CompareOpKind(op), right) {
			return false
		}
		left = right
	}
	return true
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
	case ast.CmpIn, ast.CmpNotIn:
		found := membershipTest(l, r)
		if op == ast.CmpNotIn {
			return !found
		}
		return found
	default:
		return false
	}
}

func membershipTest(needle, haystack value.Value) bool {
	found := false
	switch haystack.Kind() {
	case value.KindDict:
		_, found = haystack.AsDict().Get(value.ToDisplayString(needle))
	case value.KindString, value.KindMarkup:
		found = containsSubstring(haystack.AsString(), value.ToDisplayString(needle))
	default:
		value.Iterate(haystack, func(item value.Value) bool {
			if value.Equal(item, needle) {
				found = true
				return false
			}
			return true
		})
	}
	return found
}

func containsSubstring(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func (v *VM) getattr(target value.Value, name string) value.Value {
	switch target.Kind() {
	case value.KindDict:
		if val, ok := target.AsDict().Get(name); ok {
			return val
		}
	case value.KindCustom:
		if c := target.AsCustom(); c != nil {
			if val, ok := c.GetAttr(name); ok {
				return val
			}
		}
	case value.KindUndefined:
		return value.FromUndefined(target.AsUndefined().Chain("." + name))
	}
	return value.FromUndefined(value.NewUndefined(name, v.host.UndefinedPolicy()))
}

func (v *VM) getitem(target, key value.Value, line int) (value.Value, error) {
	switch target.Kind() {
	case value.KindList:
		if key.Kind() != value.KindInt {
			return value.Value{}, v.err(errs.KindType, line, "list indices must be integers, not %s", key.TypeName())
		}
		items := target.AsList()
		idx := int(key.AsInt())
		if idx < 0 {
			idx += len(items)
		}
		if idx < 0 || idx >= len(items) {
			return value.Value{}, v.err(errs.KindAttribute, line, "list index out of range")
		}
		return items[idx], nil
	case value.KindDict:
		keyStr := value.ToDisplayString(key)
		if val, ok := target.AsDict().Get(keyStr); ok {
			return val, nil
		}
		return value.FromUndefined(value.NewUndefined(keyStr, v.host.UndefinedPolicy())), nil
	case value.KindString, value.KindMarkup:
		runes := []rune(target.AsString())
		if key.Kind() != value.KindInt {
			return value.Value{}, v.err(errs.KindType, line, "string indices must be integers, not %s", key.TypeName())
		}
		idx := int(key.AsInt())
		if idx < 0 {
			idx += len(runes)
		}
		if idx < 0 || idx >= len(runes) {
			return value.Value{}, v.err(errs.KindAttribute, line, "string index out of range")
		}
		return value.String(string(runes[idx])), nil
	case value.KindCustom:
		if c := target.AsCustom(); c != nil {
			if val, ok := c.GetItem(key); ok {
				return val, nil
			}
		}
	case value.KindUndefined:
		return value.FromUndefined(target.AsUndefined().Chain("[" + value.ToDisplayString(key) + "]")), nil
	}
	return value.FromUndefined(value.NewUndefined(value.ToDisplayString(key), v.host.UndefinedPolicy())), nil
}

func (v *VM) execSlice(in compiler.Instr) (value.Value, error) {
	var step, stop, start value.Value
	hasStep, hasStop, hasStart := in.A&4 != 0, in.A&2 != 0, in.A&1 != 0
	if hasStep {
		step = v.pop()
	}
	if hasStop {
		stop = v.pop()
	}
	if hasStart {
		start = v.pop()
	}
	target := v.pop()

	stepN := 1
	if hasStep {
		stepN = int(step.AsInt())
	}
	if stepN == 0 {
		stepN = 1
	}

	switch target.Kind() {
	case value.KindList, value.KindString, value.KindMarkup:
		var length int
		if target.Kind() == value.KindList {
			length = len(target.AsList())
		} else {
			length = len([]rune(target.AsString()))
		}
		lo, hi := sliceBounds(length, stepN, start, stop, hasStart, hasStop)
		if target.Kind() == value.KindList {
			items := target.AsList()
			return value.ListFromSlice(sliceValues(items, lo, hi, stepN)), nil
		}
		runes := []rune(target.AsString())
		out := make([]rune, 0, (hi-lo+absInt(stepN)-1)/absInt(stepN))
		if stepN > 0 {
			for i := lo; i < hi; i += stepN {
				out = append(out, runes[i])
			}
		} else {
			for i := lo; i > hi; i += stepN {
				out = append(out, runes[i])
			}
		}
		return value.String(string(out)), nil
	default:
		return value.FromUndefined(value.NewUndefined("(slice)", v.host.UndefinedPolicy())), nil
	}
}

func sliceValues(items []value.Value, lo, hi, step int) []value.Value {
	out := make([]value.Value, 0)
	if step > 0 {
		for i := lo; i < hi; i += step {
			out = append(out, items[i])
		}
	} else {
		for i := lo; i > hi; i += step {
			out = append(out, items[i])
		}
	}
	return out
}

// sliceBounds normalizes Python-style slice bounds (negative indices,
// omitted start/stop defaulting per step direction, clamped to [0,length]).
func sliceBounds(length, step int, start, stop value.Value, hasStart, hasStop bool) (lo, hi int) {
	norm := func(i int) int {
		if i < 0 {
			i += length
		}
		return i
	}
	clamp := func(i int) int {
		if i < 0 {
			return 0
		}
		if i > length {
			return length
		}
		return i
	}
	if step > 0 {
		lo, hi = 0, length
		if hasStart {
			lo = clamp(norm(int(start.AsInt())))
		}
		if hasStop {
			hi = clamp(norm(int(stop.AsInt())))
		}
	} else {
		lo, hi = length-1, -1
		if hasStart {
			lo = clamp(norm(int(start.AsInt())))
			if lo >= length {
				lo = length - 1
			}
		}
		if hasStop {
			hi = clamp(norm(int(stop.AsInt())))
		}
	}
	return lo, hi
}

func absInt(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func negateNumeric(v value.Value) value.Value {
	if v.Kind() == value.KindInt {
		return value.Int(-v.AsInt())
	}
	return value.Float(-v.AsFloat())
}

func asF(v value.Value) float64 {
	if v.Kind() == value.KindInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorModInt(a, b int64) int64 {
	m := a % b
	if m != 0 && ((a < 0) != (b < 0)) {
		m += b
	}
	return m
}

func powFloat(base, exp float64) float64 {
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

func repeatString(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
