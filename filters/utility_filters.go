package filters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kilnjinja/kiln/value"
)

func registerUtilityFilters(r *Registry) {
	def := func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) == 0 {
			if target.IsUndefined() {
				return value.String(""), nil
			}
			return target, nil
		}
		defaultValue := extra[0]
		boolean := argBool(extra, kwargs, 1, "boolean", false)

		if target.IsUndefined() {
			return defaultValue, nil
		}
		if boolean {
			if target.Truthy() {
				return target, nil
			}
			return defaultValue, nil
		}
		return target, nil
	}
	r.register("default", def)
	r.register("d", def)

	r.register("map", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("map filter requires attribute or filter name")
		}
		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("map filter requires a sequence")
		}
		if attr, ok := kwargs["attribute"]; ok {
			attrName := value.ToDisplayString(attr)
			result := make([]value.Value, len(items))
			for i, item := range items {
				result[i] = extractAttr(item, attrName)
			}
			return value.ListFromSlice(result), nil
		}
		name := value.ToDisplayString(extra[0])
		if f, ok := r.Get(name); ok {
			rest := extra[1:]
			result := make([]value.Value, len(items))
			for i, item := range items {
				args := append([]value.Value{item}, rest...)
				out, err := f.Call(args, nil)
				if err != nil {
					return value.Value{}, err
				}
				result[i] = out
			}
			return value.ListFromSlice(result), nil
		}
		result := make([]value.Value, len(items))
		for i, item := range items {
			result[i] = extractAttr(item, name)
		}
		return value.ListFromSlice(result), nil
	})

	r.register("select", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("select filter requires a sequence")
		}
		if len(extra) == 0 {
			var result []value.Value
			for _, item := range items {
				if item.Truthy() {
					result = append(result, item)
				}
			}
			return value.ListFromSlice(result), nil
		}
		name := value.ToDisplayString(extra[0])
		f, ok := r.Get(name)
		if !ok {
			return value.Value{}, fmt.Errorf("no filter named %q to use as select test", name)
		}
		rest := extra[1:]
		var result []value.Value
		for _, item := range items {
			out, err := f.Call(append([]value.Value{item}, rest...), nil)
			if err != nil {
				return value.Value{}, err
			}
			if out.Truthy() {
				result = append(result, item)
			}
		}
		return value.ListFromSlice(result), nil
	})

	r.register("reject", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("reject filter requires a sequence")
		}
		if len(extra) == 0 {
			var result []value.Value
			for _, item := range items {
				if !item.Truthy() {
					result = append(result, item)
				}
			}
			return value.ListFromSlice(result), nil
		}
		name := value.ToDisplayString(extra[0])
		f, ok := r.Get(name)
		if !ok {
			return value.Value{}, fmt.Errorf("no filter named %q to use as reject test", name)
		}
		rest := extra[1:]
		var result []value.Value
		for _, item := range items {
			out, err := f.Call(append([]value.Value{item}, rest...), nil)
			if err != nil {
				return value.Value{}, err
			}
			if !out.Truthy() {
				result = append(result, item)
			}
		}
		return value.ListFromSlice(result), nil
	})

	r.register("attr", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("attr filter requires attribute name")
		}
		return extractAttr(target, value.ToDisplayString(extra[0])), nil
	})

	r.register("pprint", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.String(pprintValue(target)), nil
	})

	r.register("dictsort", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if target.Kind() != value.KindDict {
			return value.Value{}, fmt.Errorf("dictsort filter requires a mapping")
		}
		caseSensitive := argBool(extra, kwargs, 0, "case_sensitive", false)
		byKey := argString(extra, kwargs, 1, "by", "key") == "key"
		reverse := argBool(extra, kwargs, 2, "reverse", false)

		d := target.AsDict()
		keys := append([]string(nil), d.Keys()...)
		sort.Slice(keys, func(i, j int) bool {
			a, b := keys[i], keys[j]
			if !byKey {
				va, _ := d.Get(keys[i])
				vb, _ := d.Get(keys[j])
				a, b = value.ToDisplayString(va), value.ToDisplayString(vb)
			}
			if !caseSensitive {
				a, b = strings.ToLower(a), strings.ToLower(b)
			}
			if reverse {
				return a > b
			}
			return a < b
		})
		result := make([]value.Value, len(keys))
		for i, k := range keys {
			v, _ := d.Get(k)
			result[i] = value.List(value.String(k), v)
		}
		return value.ListFromSlice(result), nil
	})

	r.register("groupby", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("groupby filter requires attribute name")
		}
		attrName := value.ToDisplayString(extra[0])
		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("groupby filter requires a sequence")
		}
		groups := make(map[string][]value.Value)
		for _, item := range items {
			key := value.ToDisplayString(extractAttr(item, attrName))
			groups[key] = append(groups[key], item)
		}
		keys := make([]string, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		result := make([]value.Value, len(keys))
		for i, k := range keys {
			result[i] = value.List(value.String(k), value.ListFromSlice(groups[k]))
		}
		return value.ListFromSlice(result), nil
	})

	r.register("tojson", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		indent := argInt(extra, kwargs, 0, "indent", 0)
		native := valueToJSONable(target)
		var data []byte
		var err error
		if indent > 0 {
			data, err = json.MarshalIndent(native, "", strings.Repeat(" ", indent))
		} else {
			data, err = json.Marshal(native)
		}
		if err != nil {
			return value.Value{}, fmt.Errorf("failed to convert to JSON: %v", err)
		}
		return value.Markup(string(data)), nil
	})

	r.register("fromjson", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := value.ToDisplayString(target)
		if s == "" {
			return value.Null, nil
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return value.Value{}, fmt.Errorf("failed to parse JSON: %v", err)
		}
		return jsonableToValue(decoded), nil
	})
}

func pprintValue(v value.Value) string {
	switch v.Kind() {
	case value.KindDict:
		d := v.AsDict()
		keys := append([]string(nil), d.Keys()...)
		sort.Strings(keys)
		var result strings.Builder
		result.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				result.WriteString(", ")
			}
			val, _ := d.Get(k)
			fmt.Fprintf(&result, "%s: %s", k, pprintValue(val))
		}
		result.WriteByte('}')
		return result.String()
	case value.KindList:
		items := v.AsList()
		var result strings.Builder
		result.WriteByte('[')
		for i, item := range items {
			if i > 0 {
				result.WriteString(", ")
			}
			result.WriteString(pprintValue(item))
		}
		result.WriteByte(']')
		return result.String()
	case value.KindString, value.KindMarkup:
		return fmt.Sprintf("%q", v.AsString())
	default:
		return value.ToDisplayString(v)
	}
}

func valueToJSONable(v value.Value) interface{} {
	switch v.Kind() {
	case value.KindNull, value.KindUndefined:
		return nil
	case value.KindBool:
		return v.AsBool()
	case value.KindInt:
		return v.AsInt()
	case value.KindFloat:
		return v.AsFloat()
	case value.KindString, value.KindMarkup:
		return v.AsString()
	case value.KindList:
		items := v.AsList()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = valueToJSONable(item)
		}
		return out
	case value.KindDict:
		d := v.AsDict()
		out := make(map[string]interface{}, d.Len())
		d.Each(func(k string, val value.Value) {
			out[k] = valueToJSONable(val)
		})
		return out
	default:
		return value.ToDisplayString(v)
	}
}

func jsonableToValue(v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null
	case bool:
		return value.Bool(t)
	case float64:
		return value.Float(t)
	case string:
		return value.String(t)
	case []interface{}:
		items := make([]value.Value, len(t))
		for i, e := range t {
			items[i] = jsonableToValue(e)
		}
		return value.ListFromSlice(items)
	case map[string]interface{}:
		d := value.NewDict()
		for k, val := range t {
			d.Set(k, jsonableToValue(val))
		}
		return value.FromDict(d)
	default:
		return value.Null
	}
}
