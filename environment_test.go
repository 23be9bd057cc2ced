package kiln

import (
	"strings"
	"testing"

	"github.com/kilnjinja/kiln/loader"
	"github.com/kilnjinja/kiln/sandbox"
	"github.com/kilnjinja/kiln/value"
)

func TestRenderStringHelloWorld(t *testing.T) {
	env := New(loader.NewDictLoader(nil))
	out, err := env.RenderString("Hello {{ name }}!", map[string]interface{}{"name": "World"})
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if out != "Hello World!" {
		t.Errorf("got %q, want %q", out, "Hello World!")
	}
}

func TestRenderChainedComparison(t *testing.T) {
	env := New(loader.NewDictLoader(nil))
	out, err := env.RenderString("{% if 1 < 2 < 3 %}yes{% else %}no{% endif %}", nil)
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if out != "yes" {
		t.Errorf("got %q, want %q", out, "yes")
	}
}

func TestRenderSliceSemantics(t *testing.T) {
	env := New(loader.NewDictLoader(nil))
	out, err := env.RenderString("{{ items[1:3] | join(',') }}", map[string]interface{}{
		"items": []interface{}{"a", "b", "c", "d"},
	})
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if out != "b,c" {
		t.Errorf("got %q, want %q", out, "b,c")
	}
}

func TestAutoescapeAndSafeFilter(t *testing.T) {
	env := New(loader.NewDictLoader(map[string]string{
		"page.html": "{{ markup }} / {{ markup | safe }}",
	}))
	out, err := env.Render("page.html", map[string]interface{}{"markup": "<b>hi</b>"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "&lt;b&gt;hi&lt;/b&gt; / <b>hi</b>"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestExtendsAndBlockOverride(t *testing.T) {
	env := New(loader.NewDictLoader(map[string]string{
		"base.html":  "Before|{% block body %}base{% endblock %}|After",
		"child.html": "{% extends 'base.html' %}{% block body %}child{% endblock %}",
	}))
	out, err := env.Render("child.html", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Before|child|After" {
		t.Errorf("got %q, want %q", out, "Before|child|After")
	}
}

func TestSuperInBlockOverride(t *testing.T) {
	env := New(loader.NewDictLoader(map[string]string{
		"base.html":  "{% block body %}base{% endblock %}",
		"child.html": "{% extends 'base.html' %}{% block body %}{{ super() }}+child{% endblock %}",
	}))
	out, err := env.Render("child.html", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "base+child" {
		t.Errorf("got %q, want %q", out, "base+child")
	}
}

func TestUndefinedStrictRaises(t *testing.T) {
	env := New(loader.NewDictLoader(nil), WithUndefinedPolicy(value.PolicyStrict))
	_, err := env.RenderString("{{ missing }}", nil)
	if err == nil {
		t.Fatal("expected an error for a strict-undefined render")
	}
}

func TestUndefinedLenientRendersEmpty(t *testing.T) {
	env := New(loader.NewDictLoader(nil))
	out, err := env.RenderString("[{{ missing }}]", nil)
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if out != "[]" {
		t.Errorf("got %q, want %q", out, "[]")
	}
}

func TestTemplateNotFound(t *testing.T) {
	env := New(loader.NewDictLoader(nil))
	_, err := env.Render("nope.html", nil)
	if err == nil {
		t.Fatal("expected a template-not-found error")
	}
}

func TestTemplateCacheServesSecondCompile(t *testing.T) {
	env := New(loader.NewDictLoader(map[string]string{"t.html": "hi"}))
	if _, err := env.GetTemplate("t.html"); err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if _, ok := env.templateCache.Get("t.html"); !ok {
		t.Error("expected t.html to be populated in the template cache after first compile")
	}
}

func TestSandboxRefusesUnsafeGlobal(t *testing.T) {
	env := New(loader.NewDictLoader(nil), WithSandbox(sandbox.NewDefaultPolicy()))
	env.AddGlobal("danger", value.FromCallable(&value.Callable{
		Name: "danger", Kind: value.CallableFunction, Unsafe: true,
		Native: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			return value.String("boom"), nil
		},
	}))
	_, err := env.RenderString("{{ danger() }}", nil)
	if err == nil {
		t.Fatal("expected a sandbox violation calling an Unsafe-marked global")
	}
	if !strings.Contains(err.Error(), "SecurityError") {
		t.Errorf("expected a SecurityError, got: %v", err)
	}
}

func TestFilterRegistryAndGlobalRange(t *testing.T) {
	env := New(loader.NewDictLoader(nil))
	out, err := env.RenderString("{% for i in range(3) %}{{ i }}{% endfor %}", nil)
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if out != "012" {
		t.Errorf("got %q, want %q", out, "012")
	}
}

func TestNamespaceGlobalIsMutable(t *testing.T) {
	env := New(loader.NewDictLoader(nil))
	out, err := env.RenderString(
		"{% set ns = namespace(count=0) %}{% for i in [1,2,3] %}{% set ns.count = ns.count + i %}{% endfor %}{{ ns.count }}",
		nil,
	)
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if out != "6" {
		t.Errorf("got %q, want %q", out, "6")
	}
}
