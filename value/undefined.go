package value

// Policy controls how an Undefined value behaves when an operation is
// performed on it, per spec.md §3: "undefined propagates through
// attribute/subscript chains only if its policy is chainable; otherwise the
// first operation on it triggers the policy." Grounded on the teacher's
// runtime.UndefinedBehavior enum (Silent/Strict/Debug/ChainFail), renamed to
// the spec's own vocabulary.
type Policy uint8

const (
	// PolicyLenient renders undefined as an empty string and swallows
	// attribute/item access, never raising.
	PolicyLenient Policy = iota
	// PolicyStrict raises UndefinedError on first use.
	PolicyStrict
	// PolicyDebug renders a human-readable sentinel including the missing
	// name.
	PolicyDebug
	// PolicyChainable allows undefined to propagate silently through
	// attribute/subscript chains; the error is raised only when the final
	// value is actually used (output, arithmetic, iteration...).
	PolicyChainable
)

func (p Policy) String() string {
	switch p {
	case PolicyLenient:
		return "lenient"
	case PolicyStrict:
		return "strict"
	case PolicyDebug:
		return "debug"
	case PolicyChainable:
		return "chainable"
	default:
		return "unknown"
	}
}

// Undefined carries the missing name and the policy that governs how
// subsequent operations treat it. The policy lives on the value itself (not
// on a side-channel exception) so that chained accesses preserve context
// across boundaries, per spec.md §9.
type Undefined struct {
	Name   string
	Policy Policy
	Hint   string
}

// NewUndefined constructs an Undefined carrying name under policy.
func NewUndefined(name string, policy Policy) *Undefined {
	return &Undefined{Name: name, Policy: policy}
}

// Chain derives the Undefined produced by accessing attr/item suffix on an
// already-undefined value, extending the recorded name so error messages
// read e.g. "user.address.city" instead of just "city".
func (u *Undefined) Chain(suffix string) *Undefined {
	return &Undefined{Name: u.Name + suffix, Policy: u.Policy, Hint: u.Hint}
}

// DebugString renders the PolicyDebug sentinel text.
func (u *Undefined) DebugString() string {
	if u.Hint != "" {
		return "{{ undefined value: " + u.Name + " (" + u.Hint + ") }}"
	}
	return "{{ undefined value: " + u.Name + " }}"
}
