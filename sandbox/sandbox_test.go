package sandbox

import "testing"

func TestDefaultPolicyRefusesUnsafeCallables(t *testing.T) {
	p := NewDefaultPolicy()
	if p.IsSafeCallable("append", true) {
		t.Error("an Unsafe-marked callable should be refused by DefaultPolicy")
	}
	if !p.IsSafeCallable("upper", false) {
		t.Error("a non-Unsafe callable should be allowed")
	}
}

func TestDefaultPolicyRefusesPrivateAttributes(t *testing.T) {
	p := NewDefaultPolicy()
	if p.IsSafeAttribute("User", "_secret") {
		t.Error("a leading-underscore attribute should be refused")
	}
	if !p.IsSafeAttribute("User", "name") {
		t.Error("a normal attribute should be allowed")
	}
}

func TestPermissivePolicyAllowsEverything(t *testing.T) {
	p := NewPermissivePolicy()
	if !p.IsSafeCallable("append", true) {
		t.Error("PermissivePolicy should allow unsafe callables")
	}
	if !p.IsSafeAttribute("User", "_secret") {
		t.Error("PermissivePolicy should allow private-looking attributes")
	}
}

func TestMaxRangeSizeDefaults(t *testing.T) {
	p := &DefaultPolicy{}
	if p.MaxRangeSize() != 100000 {
		t.Errorf("zero-value RangeSizeLimit should fall back to 100000, got %d", p.MaxRangeSize())
	}
}
