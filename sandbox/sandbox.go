// Package sandbox implements spec.md §6's sandbox contract, grounded on
// gojinja's runtime/security.go (SandboxedEnvironment's is_safe_attribute/
// is_safe_callable/range-size guard) generalized onto value.Callable instead
// of reflect.Value.
package sandbox

import "fmt"

// Policy describes what a sandboxed environment's templates may do: call an
// Unsafe-marked native, read an attribute off a Custom/Dict value, or
// request a large range(). Only IsSafeCallable is enforced, by vm.VM at the
// call site (see vm.SandboxPolicy). IsSafeAttribute and MaxRangeSize are not
// consulted anywhere in the render path: attribute lookup applies no policy
// check, and the environment's `range` global materializes ranges of any size.
type Policy interface {
	// IsSafeCallable reports whether name may be invoked. unsafe mirrors
	// value.Callable.Unsafe — natives not marked Unsafe are always safe.
	IsSafeCallable(name string, unsafe bool) bool
	// IsSafeAttribute reports whether attr may be read off a value whose
	// runtime type name is typeName (leading underscore convention: a
	// policy should refuse "_private"-looking names by default).
	IsSafeAttribute(typeName, attr string) bool
	// MaxRangeSize bounds the element count range() may materialize.
	MaxRangeSize() int
}

// SecurityError reports a sandbox policy violation.
type SecurityError struct {
	Op     string
	Detail string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("sandbox: %s: %s", e.Op, e.Detail)
}

// DefaultPolicy is a conservative policy suitable for rendering
// untrusted-author templates: it refuses attribute names that look private
// (leading underscore, matching Jinja2's own sandbox default) and reports
// gojinja's range() limit from MaxRangeSize (neither is enforced; see Policy).
type DefaultPolicy struct {
	RangeSizeLimit int
}

// NewDefaultPolicy returns a DefaultPolicy with gojinja's own range-size
// limit (100,000 elements).
func NewDefaultPolicy() *DefaultPolicy {
	return &DefaultPolicy{RangeSizeLimit: 100000}
}

func (p *DefaultPolicy) IsSafeCallable(name string, unsafe bool) bool {
	return !unsafe
}

func (p *DefaultPolicy) IsSafeAttribute(typeName, attr string) bool {
	if attr == "" {
		return false
	}
	return attr[0] != '_'
}

func (p *DefaultPolicy) MaxRangeSize() int {
	if p.RangeSizeLimit <= 0 {
		return 100000
	}
	return p.RangeSizeLimit
}

// PermissivePolicy allows every callable and attribute and reports a larger
// MaxRangeSize. Since the range limit is not enforced (see Policy), rendering
// under it behaves the same as rendering with no policy.
type PermissivePolicy struct {
	RangeSizeLimit int
}

func NewPermissivePolicy() *PermissivePolicy {
	return &PermissivePolicy{RangeSizeLimit: 1000000}
}

func (p *PermissivePolicy) IsSafeCallable(name string, unsafe bool) bool { return true }
func (p *PermissivePolicy) IsSafeAttribute(typeName, attr string) bool   { return true }
func (p *PermissivePolicy) MaxRangeSize() int {
	if p.RangeSizeLimit <= 0 {
		return 1000000
	}
	return p.RangeSizeLimit
}
