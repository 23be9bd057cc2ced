package filters

import (
	"testing"

	"github.com/kilnjinja/kiln/value"
)

func call(t *testing.T, r *Registry, name string, target value.Value, extra ...value.Value) value.Value {
	t.Helper()
	f, ok := r.Get(name)
	if !ok {
		t.Fatalf("filter %q not registered", name)
	}
	args := append([]value.Value{target}, extra...)
	positional, kwargs := args, map[string]value.Value(nil)
	out, err := f.Call(append([]value.Value{}, positional...), kwargs)
	if err != nil {
		t.Fatalf("filter %q failed: %v", name, err)
	}
	_ = target
	return out
}

func TestRegistryHasBuiltins(t *testing.T) {
	r := NewRegistry()
	builtins := []string{
		"upper", "lower", "capitalize", "title", "trim", "replace", "truncate",
		"escape", "safe", "urlencode", "striptags", "nl2br",
		"abs", "round", "int", "float", "sum", "min", "max",
		"first", "last", "length", "join", "sort", "reverse", "unique",
		"default", "map", "select", "reject", "attr", "tojson", "fromjson",
	}
	for _, name := range builtins {
		if _, ok := r.Get(name); !ok {
			t.Errorf("builtin filter %q not registered", name)
		}
	}
}

func TestRegistryRegisterCustom(t *testing.T) {
	r := NewRegistry()
	r.Register("shout", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.String(value.ToDisplayString(target) + "!"), nil
	})
	f, ok := r.Get("shout")
	if !ok {
		t.Fatal("custom filter not registered")
	}
	out, err := f.Call([]value.Value{value.String("hi")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.AsString() != "hi!" {
		t.Errorf("got %q, want %q", out.AsString(), "hi!")
	}
}

func TestStringFilters(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		filter string
		target value.Value
		extra  []value.Value
		want   string
	}{
		{"upper", value.String("abc"), nil, "ABC"},
		{"lower", value.String("ABC"), nil, "abc"},
		{"capitalize", value.String("hELLO world"), nil, "Hello world"},
		{"trim", value.String("  hi  "), nil, "hi"},
		{"replace", value.String("a-b-c"), []value.Value{value.String("-"), value.String("_")}, "a_b_c"},
		{"startswith", value.String("hello"), []value.Value{value.String("he")}, "True"},
	}
	for _, c := range cases {
		got := call(t, r, c.filter, c.target, c.extra...)
		gotStr := value.ToDisplayString(got)
		if gotStr != c.want {
			t.Errorf("%s(%v) = %q, want %q", c.filter, c.target, gotStr, c.want)
		}
	}
}

func TestEscapeDoesNotDoubleEscapeMarkup(t *testing.T) {
	r := NewRegistry()
	safe := call(t, r, "safe", value.String("<b>hi</b>"))
	if safe.Kind() != value.KindMarkup {
		t.Fatalf("safe filter should produce Markup, got %v", safe.Kind())
	}
	escaped := call(t, r, "escape", safe)
	if escaped.AsString() != "<b>hi</b>" {
		t.Errorf("escape should pass through already-safe markup, got %q", escaped.AsString())
	}

	plain := call(t, r, "escape", value.String("<b>"))
	if plain.AsString() != "&lt;b&gt;" {
		t.Errorf("escape should html-escape a raw string, got %q", plain.AsString())
	}
}

func TestNumericFilters(t *testing.T) {
	r := NewRegistry()
	if got := call(t, r, "abs", value.Int(-5)); got.AsInt() != 5 {
		t.Errorf("abs(-5) = %d, want 5", got.AsInt())
	}
	if got := call(t, r, "ceil", value.Float(1.2)); got.AsFloat() != 2 {
		t.Errorf("ceil(1.2) = %v, want 2", got.AsFloat())
	}
	sum := call(t, r, "sum", value.List(value.Int(1), value.Int(2), value.Int(3)))
	if sum.AsFloat() != 6 {
		t.Errorf("sum = %v, want 6", sum.AsFloat())
	}
}

func TestCollectionFilters(t *testing.T) {
	r := NewRegistry()
	list := value.List(value.Int(3), value.Int(1), value.Int(2))

	first := call(t, r, "first", list)
	if first.AsInt() != 3 {
		t.Errorf("first = %d, want 3", first.AsInt())
	}
	length := call(t, r, "length", list)
	if length.AsInt() != 3 {
		t.Errorf("length = %d, want 3", length.AsInt())
	}
	sorted := call(t, r, "sort", list)
	items := sorted.AsList()
	if items[0].AsInt() != 1 || items[2].AsInt() != 3 {
		t.Errorf("sort did not order ascending: %v", items)
	}

	joined := call(t, r, "join", value.List(value.String("a"), value.String("b")), value.String(","))
	if joined.AsString() != "a,b" {
		t.Errorf("join = %q, want %q", joined.AsString(), "a,b")
	}
}

func TestUtilityFilters(t *testing.T) {
	r := NewRegistry()
	und := value.FromUndefined(value.NewUndefined("x", value.PolicyLenient))
	got := call(t, r, "default", und, value.String("fallback"))
	if got.AsString() != "fallback" {
		t.Errorf("default on undefined = %q, want %q", got.AsString(), "fallback")
	}

	d := value.NewDict()
	d.Set("name", value.String("ann"))
	attr := call(t, r, "attr", value.FromDict(d), value.String("name"))
	if attr.AsString() != "ann" {
		t.Errorf("attr = %q, want %q", attr.AsString(), "ann")
	}

	json := call(t, r, "tojson", value.List(value.Int(1), value.Int(2)))
	if json.AsString() != "[1,2]" {
		t.Errorf("tojson = %q, want %q", json.AsString(), "[1,2]")
	}
}
