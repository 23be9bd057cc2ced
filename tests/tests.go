// Package tests implements spec.md §4.7's `is` test set as value.Callable
// natives, grounded on the teacher's branching package (same TestRegistry/
// TestFunc shape, same builtin name list) with every test body rewritten
// from interface{}+reflect onto value.Value's Kind() dispatch.
package tests

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/kilnjinja/kiln/value"
)

// Func is a test's implementation: target is the value being tested ("x is
// ..."), extra its own positional arguments ("x is divisibleby(3)").
type Func func(target value.Value, extra []value.Value) (bool, error)

// Registry holds the environment's test table, mirroring filters.Registry.
type Registry struct {
	mu    sync.RWMutex
	tests map[string]*value.Callable
}

func NewRegistry() *Registry {
	r := &Registry{tests: make(map[string]*value.Callable)}
	r.registerBuiltins()
	return r
}

func wrap(name string, fn Func) *value.Callable {
	return &value.Callable{
		Name: name,
		Kind: value.CallableTest,
		Native: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Value{}, fmt.Errorf("test %q called with no target", name)
			}
			ok, err := fn(args[0], args[1:])
			if err != nil {
				return value.Value{}, err
			}
			return value.Bool(ok), nil
		},
	}
}

func (r *Registry) register(name string, fn Func) {
	r.tests[name] = wrap(name, fn)
}

// Register adds or replaces a user-defined test.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(name, fn)
}

func (r *Registry) Get(name string) (*value.Callable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.tests[name]
	return c, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tests))
	for n := range r.tests {
		names = append(names, n)
	}
	return names
}

func (r *Registry) registerBuiltins() {
	r.register("defined", func(target value.Value, extra []value.Value) (bool, error) {
		return !target.IsUndefined(), nil
	})
	r.register("undefined", func(target value.Value, extra []value.Value) (bool, error) {
		return target.IsUndefined(), nil
	})
	r.register("none", func(target value.Value, extra []value.Value) (bool, error) {
		return target.IsNull(), nil
	})
	r.register("boolean", func(target value.Value, extra []value.Value) (bool, error) {
		return target.Kind() == value.KindBool, nil
	})
	r.register("string", func(target value.Value, extra []value.Value) (bool, error) {
		return target.Kind() == value.KindString || target.Kind() == value.KindMarkup, nil
	})
	r.register("number", func(target value.Value, extra []value.Value) (bool, error) {
		return target.Kind() == value.KindInt || target.Kind() == value.KindFloat, nil
	})
	r.register("integer", func(target value.Value, extra []value.Value) (bool, error) {
		return target.Kind() == value.KindInt, nil
	})
	r.register("float", func(target value.Value, extra []value.Value) (bool, error) {
		return target.Kind() == value.KindFloat, nil
	})
	r.register("sequence", func(target value.Value, extra []value.Value) (bool, error) {
		switch target.Kind() {
		case value.KindList, value.KindString, value.KindMarkup:
			return true, nil
		default:
			return false, nil
		}
	})
	r.register("mapping", func(target value.Value, extra []value.Value) (bool, error) {
		return target.Kind() == value.KindDict, nil
	})
	r.register("iterable", func(target value.Value, extra []value.Value) (bool, error) {
		switch target.Kind() {
		case value.KindList, value.KindString, value.KindMarkup, value.KindDict, value.KindCustom:
			return true, nil
		default:
			return false, nil
		}
	})
	r.register("callable", func(target value.Value, extra []value.Value) (bool, error) {
		return target.Kind() == value.KindCallable, nil
	})

	r.register("even", func(target value.Value, extra []value.Value) (bool, error) {
		n, ok := asInt(target)
		if !ok {
			return false, fmt.Errorf("even test requires an integer, got %s", target.TypeName())
		}
		return n%2 == 0, nil
	})
	r.register("odd", func(target value.Value, extra []value.Value) (bool, error) {
		n, ok := asInt(target)
		if !ok {
			return false, fmt.Errorf("odd test requires an integer, got %s", target.TypeName())
		}
		return n%2 != 0, nil
	})
	r.register("divisibleby", func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("divisibleby test requires exactly one argument")
		}
		n, ok := asInt(target)
		if !ok {
			return false, fmt.Errorf("divisibleby test requires an integer, got %s", target.TypeName())
		}
		divisor, ok := asInt(extra[0])
		if !ok {
			return false, fmt.Errorf("divisibleby test requires an integer divisor")
		}
		if divisor == 0 {
			return false, fmt.Errorf("division by zero")
		}
		return n%divisor == 0, nil
	})

	r.register("lower", func(target value.Value, extra []value.Value) (bool, error) {
		s, ok := asString(target)
		if !ok {
			return false, fmt.Errorf("lower test requires a string, got %s", target.TypeName())
		}
		return s == strings.ToLower(s), nil
	})
	r.register("upper", func(target value.Value, extra []value.Value) (bool, error) {
		s, ok := asString(target)
		if !ok {
			return false, fmt.Errorf("upper test requires a string, got %s", target.TypeName())
		}
		return s == strings.ToUpper(s), nil
	})
	r.register("startswith", func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("startswith test requires exactly one argument")
		}
		s, ok := asString(target)
		if !ok {
			return false, fmt.Errorf("startswith test requires a string, got %s", target.TypeName())
		}
		return strings.HasPrefix(s, value.ToDisplayString(extra[0])), nil
	})
	r.register("endswith", func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("endswith test requires exactly one argument")
		}
		s, ok := asString(target)
		if !ok {
			return false, fmt.Errorf("endswith test requires a string, got %s", target.TypeName())
		}
		return strings.HasSuffix(s, value.ToDisplayString(extra[0])), nil
	})
	r.register("match", func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("match test requires exactly one argument")
		}
		s, ok := asString(target)
		if !ok {
			return false, fmt.Errorf("match test requires a string, got %s", target.TypeName())
		}
		matched, err := regexp.MatchString(value.ToDisplayString(extra[0]), s)
		if err != nil {
			return false, fmt.Errorf("invalid regular expression: %v", err)
		}
		return matched, nil
	})
	r.register("alpha", func(target value.Value, extra []value.Value) (bool, error) {
		return stringAll(target, unicode.IsLetter)
	})
	r.register("alnum", func(target value.Value, extra []value.Value) (bool, error) {
		return stringAll(target, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) })
	})
	r.register("ascii", func(target value.Value, extra []value.Value) (bool, error) {
		return stringAll(target, func(r rune) bool { return r < 128 })
	})

	r.register("in", func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("in test requires exactly one argument")
		}
		return containsValue(extra[0], target), nil
	})
	r.register("contains", func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("contains test requires exactly one argument")
		}
		return containsValue(target, extra[0]), nil
	})
	r.register("empty", func(target value.Value, extra []value.Value) (bool, error) {
		switch target.Kind() {
		case value.KindNull, value.KindUndefined:
			return true, nil
		case value.KindString, value.KindMarkup:
			return target.AsString() == "", nil
		case value.KindList:
			return len(target.AsList()) == 0, nil
		case value.KindDict:
			return target.AsDict().Len() == 0, nil
		case value.KindInt:
			return target.AsInt() == 0, nil
		case value.KindFloat:
			return target.AsFloat() == 0, nil
		case value.KindBool:
			return !target.AsBool(), nil
		default:
			return false, nil
		}
	})

	r.register("sameas", func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("sameas test requires exactly one argument")
		}
		other := extra[0]
		if target.Kind() != other.Kind() {
			return false, nil
		}
		switch target.Kind() {
		case value.KindDict:
			return target.AsDict() == other.AsDict(), nil
		case value.KindCallable:
			return target.AsCallable() == other.AsCallable(), nil
		case value.KindCustom:
			return target.AsCustom() == other.AsCustom(), nil
		default:
			return value.Equal(target, other), nil
		}
	})
	r.register("escaped", func(target value.Value, extra []value.Value) (bool, error) {
		return target.Kind() == value.KindMarkup, nil
	})

	r.register("eq", func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("eq test requires exactly one argument")
		}
		return value.Equal(target, extra[0]), nil
	})
	r.register("equalto", func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("equalto test requires exactly one argument")
		}
		return value.Equal(target, extra[0]), nil
	})
	r.register("ne", func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("ne test requires exactly one argument")
		}
		return !value.Equal(target, extra[0]), nil
	})
	r.register("lt", cmpTest("lt", func(c int) bool { return c < 0 }))
	r.register("le", cmpTest("le", func(c int) bool { return c <= 0 }))
	r.register("gt", cmpTest("gt", func(c int) bool { return c > 0 }))
	r.register("ge", cmpTest("ge", func(c int) bool { return c >= 0 }))
}

func cmpTest(name string, ok func(int) bool) Func {
	return func(target value.Value, extra []value.Value) (bool, error) {
		if len(extra) != 1 {
			return false, fmt.Errorf("%s test requires exactly one argument", name)
		}
		cmp, comparable := value.Compare(target, extra[0])
		if !comparable {
			return false, fmt.Errorf("%s test cannot compare %s and %s", name, target.TypeName(), extra[0].TypeName())
		}
		return ok(cmp), nil
	}
}

func asInt(v value.Value) (int64, bool) {
	switch v.Kind() {
	case value.KindInt:
		return v.AsInt(), true
	case value.KindFloat:
		return int64(v.AsFloat()), true
	default:
		return 0, false
	}
}

func asString(v value.Value) (string, bool) {
	switch v.Kind() {
	case value.KindString, value.KindMarkup:
		return v.AsString(), true
	default:
		return "", false
	}
}

func stringAll(target value.Value, pred func(rune) bool) (bool, error) {
	s, ok := asString(target)
	if !ok {
		return false, fmt.Errorf("string test requires a string, got %s", target.TypeName())
	}
	if s == "" {
		return false, nil
	}
	for _, r := range s {
		if !pred(r) {
			return false, nil
		}
	}
	return true, nil
}

func containsValue(container, item value.Value) bool {
	switch container.Kind() {
	case value.KindList:
		for _, v := range container.AsList() {
			if value.Equal(v, item) {
				return true
			}
		}
		return false
	case value.KindString, value.KindMarkup:
		return strings.Contains(container.AsString(), value.ToDisplayString(item))
	case value.KindDict:
		_, ok := container.AsDict().Get(value.ToDisplayString(item))
		return ok
	default:
		return false
	}
}
