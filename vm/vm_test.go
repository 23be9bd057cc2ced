package vm

import (
	"testing"

	"github.com/kilnjinja/kiln/compiler"
	"github.com/kilnjinja/kiln/optimizer"
	"github.com/kilnjinja/kiln/parser"
	"github.com/kilnjinja/kiln/value"
)

// fakeHost is a minimal Host implementation for exercising the VM in
// isolation, without an Environment.
type fakeHost struct {
	filters map[string]*value.Callable
	tests   map[string]*value.Callable
	globals map[string]value.Value
	policy  value.Policy
	escape  bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		filters: map[string]*value.Callable{},
		tests:   map[string]*value.Callable{},
		globals: map[string]value.Value{},
		policy:  value.PolicyLenient,
	}
}

func (h *fakeHost) Filter(name string) (*value.Callable, bool) { c, ok := h.filters[name]; return c, ok }
func (h *fakeHost) Test(name string) (*value.Callable, bool)   { c, ok := h.tests[name]; return c, ok }
func (h *fakeHost) Global(name string) (value.Value, bool)     { v, ok := h.globals[name]; return v, ok }
func (h *fakeHost) Compile(templateName string) (*compiler.Bytecode, error) {
	return nil, errNotSupported
}
func (h *fakeHost) Finalize(v value.Value) value.Value   { return v }
func (h *fakeHost) UndefinedPolicy() value.Policy        { return h.policy }
func (h *fakeHost) Autoescape(templateName string) bool  { return h.escape }
func (h *fakeHost) MaxRecursion() int                    { return 100 }
func (h *fakeHost) Sandbox() (SandboxPolicy, bool)        { return nil, false }

type notSupportedErr struct{}

func (notSupportedErr) Error() string { return "fakeHost: Compile not supported" }

var errNotSupported = notSupportedErr{}

func compileAndRun(t *testing.T, host *fakeHost, src string, vars map[string]value.Value) string {
	t.Helper()
	tmpl, err := parser.Parse(src, nil, parser.Options{TemplateName: "t"})
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	optimizer.Default().Optimize(tmpl)
	bc, err := compiler.Compile(tmpl)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	v := New(host, "t")
	v.Globals(vars)
	out, err := v.Run(bc)
	if err != nil {
		t.Fatalf("Run(%q): %v", src, err)
	}
	return out
}

func TestVMRendersLiteralOutput(t *testing.T) {
	out := compileAndRun(t, newFakeHost(), "hello world", nil)
	if out != "hello world" {
		t.Errorf("got %q", out)
	}
}

func TestVMLooksUpScopeThenGlobal(t *testing.T) {
	host := newFakeHost()
	host.globals["site"] = value.String("kiln")
	out := compileAndRun(t, host, "{{ name }} / {{ site }}", map[string]value.Value{"name": value.String("alice")})
	if out != "alice / kiln" {
		t.Errorf("got %q", out)
	}
}

func TestVMUndefinedLenientRendersEmpty(t *testing.T) {
	out := compileAndRun(t, newFakeHost(), "[{{ missing }}]", nil)
	if out != "[]" {
		t.Errorf("got %q", out)
	}
}

func TestVMUndefinedStrictRaises(t *testing.T) {
	host := newFakeHost()
	host.policy = value.PolicyStrict
	tmpl, err := parser.Parse("{{ missing }}", nil, parser.Options{TemplateName: "t"})
	if err != nil {
		t.Fatal(err)
	}
	bc, err := compiler.Compile(tmpl)
	if err != nil {
		t.Fatal(err)
	}
	v := New(host, "t")
	if _, err := v.Run(bc); err == nil {
		t.Error("expected an UndefinedError under PolicyStrict")
	}
}

func TestVMIfElseBranches(t *testing.T) {
	host := newFakeHost()
	out := compileAndRun(t, host, "{% if flag %}yes{% else %}no{% endif %}", map[string]value.Value{"flag": value.Bool(false)})
	if out != "no" {
		t.Errorf("got %q", out)
	}
}

func TestVMForLoopWithLoopVar(t *testing.T) {
	host := newFakeHost()
	items := value.ListFromSlice([]value.Value{value.Int(1), value.Int(2), value.Int(3)})
	out := compileAndRun(t, host, "{% for x in items %}{{ loop.index }}:{{ x }} {% endfor %}", map[string]value.Value{"items": items})
	if out != "1:1 2:2 3:3 " {
		t.Errorf("got %q", out)
	}
}

func TestVMForLoopElseOnEmpty(t *testing.T) {
	host := newFakeHost()
	out := compileAndRun(t, host, "{% for x in items %}{{ x }}{% else %}empty{% endfor %}", map[string]value.Value{"items": value.ListFromSlice(nil)})
	if out != "empty" {
		t.Errorf("got %q", out)
	}
}

func TestVMFilterDispatchesToHost(t *testing.T) {
	host := newFakeHost()
	host.filters["shout"] = &value.Callable{
		Name: "shout", Kind: value.CallableFilter,
		Native: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			return value.String(value.ToDisplayString(args[0]) + "!"), nil
		},
	}
	out := compileAndRun(t, host, "{{ name | shout }}", map[string]value.Value{"name": value.String("hi")})
	if out != "hi!" {
		t.Errorf("got %q", out)
	}
}

func TestVMAutoescapeEscapesHTML(t *testing.T) {
	host := newFakeHost()
	host.escape = true
	out := compileAndRun(t, host, "{{ markup }}", map[string]value.Value{"markup": value.String("<b>x</b>")})
	if out != "&lt;b&gt;x&lt;/b&gt;" {
		t.Errorf("got %q", out)
	}
}

func TestVMMacroCallReturnsOutput(t *testing.T) {
	host := newFakeHost()
	out := compileAndRun(t, host, "{% macro greet(name) %}hi {{ name }}{% endmacro %}{{ greet('bob') }}", nil)
	if out != "hi bob" {
		t.Errorf("got %q", out)
	}
}

func TestVMBreakExitsLoopEarly(t *testing.T) {
	host := newFakeHost()
	items := value.ListFromSlice([]value.Value{value.Int(1), value.Int(2), value.Int(3)})
	out := compileAndRun(t, host, "{% for x in items %}{% if x == 2 %}{% break %}{% endif %}{{ x }}{% endfor %}", map[string]value.Value{"items": items})
	if out != "1" {
		t.Errorf("got %q", out)
	}
}

func TestRenderResolvesExtendsChain(t *testing.T) {
	host := newFakeHost()
	child := mustCompile(t, "{% extends 'base' %}{% block body %}child{% endblock %}")
	base := mustCompile(t, "[{% block body %}base{% endblock %}]")
	stub := &chainHost{fakeHost: host, templates: map[string]*compiler.Bytecode{"t": child, "base": base}}
	out, err := Render(stub, "t", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "[child]" {
		t.Errorf("got %q", out)
	}
}

func mustCompile(t *testing.T, src string) *compiler.Bytecode {
	t.Helper()
	tmpl, err := parser.Parse(src, nil, parser.Options{TemplateName: "t"})
	if err != nil {
		t.Fatal(err)
	}
	optimizer.Default().Optimize(tmpl)
	bc, err := compiler.Compile(tmpl)
	if err != nil {
		t.Fatal(err)
	}
	return bc
}

type chainHost struct {
	*fakeHost
	templates map[string]*compiler.Bytecode
}

func (h *chainHost) Compile(templateName string) (*compiler.Bytecode, error) {
	bc, ok := h.templates[templateName]
	if !ok {
		return nil, errNotSupported
	}
	return bc, nil
}
