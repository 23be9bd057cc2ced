package tests

import (
	"testing"

	"github.com/kilnjinja/kiln/value"
)

func run(t *testing.T, r *Registry, name string, target value.Value, extra ...value.Value) bool {
	t.Helper()
	c, ok := r.Get(name)
	if !ok {
		t.Fatalf("test %q not registered", name)
	}
	args := append([]value.Value{target}, extra...)
	out, err := c.Call(args, nil)
	if err != nil {
		t.Fatalf("test %q failed: %v", name, err)
	}
	return out.AsBool()
}

func TestRegistryHasBuiltins(t *testing.T) {
	r := NewRegistry()
	builtins := []string{
		"defined", "undefined", "none", "boolean", "string", "number", "integer",
		"float", "sequence", "mapping", "iterable", "callable",
		"even", "odd", "divisibleby",
		"lower", "upper", "startswith", "endswith", "match", "alpha", "alnum", "ascii",
		"in", "contains", "empty", "sameas", "escaped",
		"eq", "ne", "lt", "le", "gt", "ge", "equalto",
	}
	for _, name := range builtins {
		if _, ok := r.Get(name); !ok {
			t.Errorf("builtin test %q not registered", name)
		}
	}
}

func TestExistenceTests(t *testing.T) {
	r := NewRegistry()
	if !run(t, r, "defined", value.String("x")) {
		t.Error("defined(\"x\") should be true")
	}
	und := value.FromUndefined(value.NewUndefined("x", value.PolicyLenient))
	if !run(t, r, "undefined", und) {
		t.Error("undefined should be true for Undefined value")
	}
	if !run(t, r, "none", value.Null) {
		t.Error("none(Null) should be true")
	}
}

func TestNumericTests(t *testing.T) {
	r := NewRegistry()
	if !run(t, r, "even", value.Int(4)) {
		t.Error("even(4) should be true")
	}
	if !run(t, r, "odd", value.Int(3)) {
		t.Error("odd(3) should be true")
	}
	if !run(t, r, "divisibleby", value.Int(9), value.Int(3)) {
		t.Error("divisibleby(9, 3) should be true")
	}
	if run(t, r, "divisibleby", value.Int(9), value.Int(2)) {
		t.Error("divisibleby(9, 2) should be false")
	}
}

func TestStringTests(t *testing.T) {
	r := NewRegistry()
	if !run(t, r, "lower", value.String("abc")) {
		t.Error("lower(\"abc\") should be true")
	}
	if !run(t, r, "upper", value.String("ABC")) {
		t.Error("upper(\"ABC\") should be true")
	}
	if !run(t, r, "startswith", value.String("hello"), value.String("he")) {
		t.Error("startswith should be true")
	}
	if !run(t, r, "alpha", value.String("abc")) {
		t.Error("alpha(\"abc\") should be true")
	}
	if run(t, r, "alpha", value.String("abc1")) {
		t.Error("alpha(\"abc1\") should be false")
	}
}

func TestContainerTests(t *testing.T) {
	r := NewRegistry()
	list := value.List(value.Int(1), value.Int(2), value.Int(3))
	if !run(t, r, "in", value.Int(2), list) {
		t.Error("2 in [1,2,3] should be true")
	}
	if !run(t, r, "contains", list, value.Int(2)) {
		t.Error("[1,2,3] contains 2 should be true")
	}
	if !run(t, r, "empty", value.List()) {
		t.Error("empty([]) should be true")
	}
	if run(t, r, "empty", list) {
		t.Error("empty([1,2,3]) should be false")
	}
}

func TestComparisonTests(t *testing.T) {
	r := NewRegistry()
	if !run(t, r, "eq", value.Int(1), value.Int(1)) {
		t.Error("eq(1, 1) should be true")
	}
	if !run(t, r, "ne", value.Int(1), value.Int(2)) {
		t.Error("ne(1, 2) should be true")
	}
	if !run(t, r, "lt", value.Int(1), value.Int(2)) {
		t.Error("lt(1, 2) should be true")
	}
	if !run(t, r, "ge", value.Int(2), value.Int(2)) {
		t.Error("ge(2, 2) should be true")
	}
}

func TestEscapedTest(t *testing.T) {
	r := NewRegistry()
	if run(t, r, "escaped", value.String("plain")) {
		t.Error("escaped(plain string) should be false")
	}
	if !run(t, r, "escaped", value.Markup("<b>safe</b>")) {
		t.Error("escaped(markup) should be true")
	}
}
