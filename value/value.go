// Package value implements the engine's universal dynamic value: a tagged
// union with one discriminator (Kind) replacing virtual dispatch, per the
// "Dynamic typing" design note — a dispatch table indexed by the tag of each
// operand stands in for polymorphic method calls.
package value

import "fmt"

// Kind discriminates the variant carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindUndefined
	KindBool
	KindInt
	KindFloat
	KindString
	KindMarkup
	KindList
	KindDict
	KindCallable
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindMarkup:
		return "markup"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindCallable:
		return "callable"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Value is the universal dynamic value flowing through the lexer-parser-VM
// pipeline. It is a struct tagged union rather than interface{} so that every
// binary/unary/comparison operator dispatches on a single field (Kind)
// instead of a type switch over Go's runtime type descriptor.
type Value struct {
	kind Kind

	b bool
	i int64
	f float64
	s string // string and markup payload

	list *listData
	dict *Dict
	call *Callable
	cust Custom
	und  *Undefined
}

type listData struct {
	items []Value
}

// Null is the singleton null value.
var Null = Value{kind: KindNull}

// Bool constructs a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int constructs a 64-bit signed integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float constructs a 64-bit floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String constructs an immutable string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Markup constructs a string value pre-marked safe from auto-escaping.
func Markup(s string) Value { return Value{kind: KindMarkup, s: s} }

// List constructs an ordered, owned sequence of values.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: &listData{items: cp}}
}

// ListFromSlice wraps a slice without copying; caller transfers ownership.
func ListFromSlice(items []Value) Value {
	return Value{kind: KindList, list: &listData{items: items}}
}

// FromDict wraps an existing *Dict.
func FromDict(d *Dict) Value { return Value{kind: KindDict, dict: d} }

// FromCallable wraps a *Callable.
func FromCallable(c *Callable) Value { return Value{kind: KindCallable, call: c} }

// FromCustom wraps a Custom vtable implementation.
func FromCustom(c Custom) Value { return Value{kind: KindCustom, cust: c} }

// FromUndefined wraps an *Undefined.
func FromUndefined(u *Undefined) Value { return Value{kind: KindUndefined, und: u} }

// Kind returns the discriminator tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// AsBool returns the payload of a KindBool value; zero value otherwise.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the payload of a KindInt value; zero value otherwise.
func (v Value) AsInt() int64 { return v.i }

// AsFloat returns the payload of a KindFloat value; zero value otherwise.
func (v Value) AsFloat() float64 { return v.f }

// AsString returns the payload of a KindString/KindMarkup value.
func (v Value) AsString() string { return v.s }

// AsList returns the backing slice of a KindList value (owned by the value;
// callers must not retain it past the value's lifetime without copying).
func (v Value) AsList() []Value {
	if v.list == nil {
		return nil
	}
	return v.list.items
}

// AsDict returns the backing *Dict of a KindDict value.
func (v Value) AsDict() *Dict { return v.dict }

// AsCallable returns the backing *Callable of a KindCallable value.
func (v Value) AsCallable() *Callable { return v.call }

// AsCustom returns the backing Custom vtable of a KindCustom value.
func (v Value) AsCustom() Custom { return v.cust }

// AsUndefined returns the backing *Undefined of a KindUndefined value.
func (v Value) AsUndefined() *Undefined { return v.und }

// TypeName returns the Jinja2-style runtime type name used in error messages
// and by the `custom` vtable's own TypeName method when the kind is KindCustom.
func (v Value) TypeName() string {
	switch v.kind {
	case KindCustom:
		if v.cust != nil {
			return v.cust.TypeName()
		}
		return "custom"
	default:
		return v.kind.String()
	}
}
