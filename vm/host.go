package vm

import (
	"github.com/kilnjinja/kiln/compiler"
	"github.com/kilnjinja/kiln/value"
)

// Host is the slice of Environment the VM depends on, kept as an interface
// here (rather than importing the root environment package directly) to
// avoid an import cycle: environment.go wires a concrete Host over its own
// cache/loader/filter-and-test maps, per spec.md §4.6's Environment
// contract.
type Host interface {
	// Filter resolves a filter by name with one map lookup that covers
	// builtins and user-registered filters alike (no separate builtin path).
	Filter(name string) (*value.Callable, bool)
	// Test resolves an `is` test by name.
	Test(name string) (*value.Callable, bool)
	// Global resolves a name absent from the current scope chain against
	// environment-wide globals (functions like range/dict, constants).
	Global(name string) (value.Value, bool)
	// Compile resolves and compiles templateName through the environment's
	// template cache, returning its Bytecode. A cached entry is returned until
	// it is evicted or invalidated; the loader's Uptodate is not consulted.
	Compile(templateName string) (*compiler.Bytecode, error)
	// Finalize is applied to every value immediately before it is written to
	// output, per spec.md §4.5.
	Finalize(value.Value) value.Value
	// UndefinedPolicy is the policy new Undefined values are constructed
	// with when a name/attribute/item lookup misses.
	UndefinedPolicy() value.Policy
	// Autoescape reports the initial autoescape state for templateName,
	// before any `{% autoescape %}` block overrides it.
	Autoescape(templateName string) bool
	// MaxRecursion bounds macro-call and include/extends nesting depth,
	// per spec.md §5's RecursionLimit error kind.
	MaxRecursion() int
	// Sandbox returns the environment's sandbox policy and ok=true when the
	// environment is running sandboxed (spec.md §6); ok=false means no
	// policy is enforced and every callable is considered safe. Kept as a
	// narrow duck-typed interface here rather than importing the sandbox
	// package directly, for the same import-cycle reason as the rest of
	// Host: environment.go is free to hand back its own *sandbox.Policy
	// without vm depending on that package.
	Sandbox() (SandboxPolicy, bool)
}

// SandboxPolicy is the subset of sandbox.Policy the VM enforces (at the
// OpCall site, for Callable.Unsafe natives). No range-size or attribute check
// is applied anywhere: neither the environment's range global nor the VM's
// attribute lookup consults the policy.
type SandboxPolicy interface {
	IsSafeCallable(name string, unsafe bool) bool
}
