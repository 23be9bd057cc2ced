package filters

import (
	"strconv"

	"github.com/kilnjinja/kiln/value"
)

// arg resolves a filter argument by position into extra, falling back to
// name in kwargs if the positional slot is empty — filters accept either
// form, per spec.md §4.2's named-filter-argument syntax.
func arg(extra []value.Value, kwargs map[string]value.Value, pos int, name string) (value.Value, bool) {
	if pos < len(extra) {
		return extra[pos], true
	}
	if v, ok := kwargs[name]; ok {
		return v, true
	}
	return value.Value{}, false
}

func argString(extra []value.Value, kwargs map[string]value.Value, pos int, name, def string) string {
	if v, ok := arg(extra, kwargs, pos, name); ok {
		return value.ToDisplayString(v)
	}
	return def
}

func argInt(extra []value.Value, kwargs map[string]value.Value, pos int, name string, def int) int {
	if v, ok := arg(extra, kwargs, pos, name); ok {
		return int(toInt(v))
	}
	return def
}

func argBool(extra []value.Value, kwargs map[string]value.Value, pos int, name string, def bool) bool {
	if v, ok := arg(extra, kwargs, pos, name); ok {
		return v.Truthy()
	}
	return def
}

func toInt(v value.Value) int64 {
	switch v.Kind() {
	case value.KindInt:
		return v.AsInt()
	case value.KindFloat:
		return int64(v.AsFloat())
	case value.KindBool:
		if v.AsBool() {
			return 1
		}
		return 0
	case value.KindString:
		i, err := strconv.ParseInt(v.AsString(), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(v.AsString(), 64)
			if ferr == nil {
				return int64(f)
			}
			return 0
		}
		return i
	default:
		return 0
	}
}

func toFloat(v value.Value) float64 {
	switch v.Kind() {
	case value.KindInt:
		return float64(v.AsInt())
	case value.KindFloat:
		return v.AsFloat()
	case value.KindBool:
		if v.AsBool() {
			return 1
		}
		return 0
	case value.KindString:
		f, _ := strconv.ParseFloat(v.AsString(), 64)
		return f
	default:
		return 0
	}
}

// asItems returns target's elements for every filter that operates over a
// sequence (list or, treated character-wise, string); ok is false for
// anything else, matching the teacher's "requires a sequence" errors.
func asItems(target value.Value) ([]value.Value, bool) {
	switch target.Kind() {
	case value.KindList:
		return target.AsList(), true
	case value.KindString, value.KindMarkup:
		runes := []rune(target.AsString())
		items := make([]value.Value, len(runes))
		for i, r := range runes {
			items[i] = value.String(string(r))
		}
		return items, true
	default:
		return nil, false
	}
}

func extractAttr(item value.Value, name string) value.Value {
	switch item.Kind() {
	case value.KindDict:
		if v, ok := item.AsDict().Get(name); ok {
			return v
		}
		return value.Null
	case value.KindCustom:
		if v, ok := item.AsCustom().GetAttr(name); ok {
			return v
		}
		return value.Null
	default:
		return value.Null
	}
}
