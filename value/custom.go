package value

// Custom is the vtable a host application implements to expose an opaque
// Go value (a struct, a wrapped driver handle, ...) to templates: field
// access, method lookup, item access, length, iteration, string conversion,
// truthiness, and type name, per spec.md §3's `custom` variant.
type Custom interface {
	// GetAttr resolves obj.name. ok is false if the attribute does not exist.
	GetAttr(name string) (Value, bool)
	// GetItem resolves obj[key].
	GetItem(key Value) (Value, bool)
	// Call invokes obj.method(args...) when name is non-empty, or obj(args...)
	// when name is empty (obj itself is callable).
	Call(name string, args []Value) (Value, error)
	// Len reports a length for truthiness/`length` filter purposes; ok is
	// false if the custom value has no natural length.
	Len() (int, bool)
	// Iterate yields successive elements to yield; it returns early if yield
	// returns false.
	Iterate(yield func(Value) bool)
	// String renders the custom value's textual form.
	String() string
	// Truthy reports the custom value's boolean coercion.
	Truthy() bool
	// TypeName names the custom value's runtime type for diagnostics.
	TypeName() string
	// OwnsData reports whether the engine is responsible for releasing any
	// resources the custom value holds when its owning Value is discarded
	// (spec.md §9: "custom carries an owns_data flag so the engine knows
	// whether to finalize via the vtable's deinit").
	OwnsData() bool
}

// Deinitializer is an optional interface for a Custom whose OwnsData is
// true. The engine itself never calls Deinit or OwnsData, and there is no
// per-render arena whose disposal would trigger it.
type Deinitializer interface {
	Deinit()
}
