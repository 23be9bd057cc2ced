package value

import "math"

// Truthy implements spec.md §3's truthiness table: boolean true; nonzero
// integer/float; non-empty string/list/dict; non-null custom with truthy
// vtable result; macro/callable always truthy; null, undefined, empty
// containers, and zero numbers are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull, KindUndefined:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString, KindMarkup:
		return v.s != ""
	case KindList:
		return v.list != nil && len(v.list.items) > 0
	case KindDict:
		return v.dict != nil && v.dict.Len() > 0
	case KindCallable:
		return true
	case KindCustom:
		return v.cust != nil && v.cust.Truthy()
	default:
		return false
	}
}

// Equal implements spec.md §3's equality rules: structural for primitives,
// by-content for strings/markup, element-wise for lists/dicts,
// pointer-identity for custom, with integer/float coincidence.
func Equal(a, b Value) bool {
	if a.kind == KindInt && b.kind == KindFloat {
		return float64(a.i) == b.f
	}
	if a.kind == KindFloat && b.kind == KindInt {
		return a.f == float64(b.i)
	}
	if a.kind != b.kind {
		if (a.kind == KindString || a.kind == KindMarkup) && (b.kind == KindString || b.kind == KindMarkup) {
			return a.s == b.s
		}
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindUndefined:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString, KindMarkup:
		return a.s == b.s
	case KindList:
		al, bl := a.AsList(), b.AsList()
		if len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !Equal(al[i], bl[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if a.dict.Len() != b.dict.Len() {
			return false
		}
		eq := true
		a.dict.Each(func(k string, av Value) {
			bv, ok := b.dict.Get(k)
			if !ok || !Equal(av, bv) {
				eq = false
			}
		})
		return eq
	case KindCallable:
		return a.call == b.call
	case KindCustom:
		return a.cust == b.cust
	default:
		return false
	}
}

// Compare orders two values for <, <=, >, >= per Jinja2's numeric/string
// comparison semantics. ok is false when the operands are not comparable.
func Compare(a, b Value) (cmp int, ok bool) {
	an, aIsNum := asFloat(a)
	bn, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	if (a.kind == KindString || a.kind == KindMarkup) && (b.kind == KindString || b.kind == KindMarkup) {
		switch {
		case a.s < b.s:
			return -1, true
		case a.s > b.s:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func asFloat(v Value) (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// IsNumeric reports whether v is KindInt or KindFloat.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// Len returns a container/string/custom length and whether v has one.
func Len(v Value) (int, bool) {
	switch v.kind {
	case KindString, KindMarkup:
		return len([]rune(v.s)), true
	case KindList:
		return len(v.AsList()), true
	case KindDict:
		return v.dict.Len(), true
	case KindCustom:
		if v.cust != nil {
			return v.cust.Len()
		}
	}
	return 0, false
}

// Iterate yields the natural iteration sequence of v: list elements in
// order, dict keys in insertion order (as string Values), or a custom
// vtable's own iteration. yield returning false stops iteration early.
func Iterate(v Value, yield func(Value) bool) {
	switch v.kind {
	case KindList:
		for _, item := range v.AsList() {
			if !yield(item) {
				return
			}
		}
	case KindDict:
		for _, k := range v.dict.Keys() {
			if !yield(String(k)) {
				return
			}
		}
	case KindString, KindMarkup:
		for _, r := range v.s {
			if !yield(String(string(r))) {
				return
			}
		}
	case KindCustom:
		if v.cust != nil {
			v.cust.Iterate(yield)
		}
	}
}

// AddNumeric adds two numeric values, promoting to float if either operand
// is a float, per spec.md §9 "Integer/float promotion is explicit in binary
// ops."
func AddNumeric(a, b Value) Value {
	if a.kind == KindFloat || b.kind == KindFloat {
		af, _ := asFloat(a)
		bf, _ := asFloat(b)
		return Float(af + bf)
	}
	return Int(a.i + b.i)
}

// DivFloat performs true (always-float) division; ZeroDivision is the
// caller's responsibility to detect beforehand for the integer case.
func DivFloat(a, b Value) float64 {
	af, _ := asFloat(a)
	bf, _ := asFloat(b)
	if bf == 0 {
		if af == 0 {
			return math.NaN()
		}
		return math.Inf(int(math.Copysign(1, af)))
	}
	return af / bf
}
