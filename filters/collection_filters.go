package filters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kilnjinja/kiln/value"
)

func registerCollectionFilters(r *Registry) {
	r.register("first", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		items, ok := asItems(target)
		if !ok || len(items) == 0 {
			return value.Null, nil
		}
		return items[0], nil
	})
	r.register("last", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		items, ok := asItems(target)
		if !ok || len(items) == 0 {
			return value.Null, nil
		}
		return items[len(items)-1], nil
	})
	length := func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		switch target.Kind() {
		case value.KindString, value.KindMarkup:
			return value.Int(int64(len([]rune(target.AsString())))), nil
		case value.KindList:
			return value.Int(int64(len(target.AsList()))), nil
		case value.KindDict:
			return value.Int(int64(target.AsDict().Len())), nil
		case value.KindCustom:
			if n, ok := target.AsCustom().Len(); ok {
				return value.Int(int64(n)), nil
			}
			return value.Value{}, fmt.Errorf("object of type %q has no len()", target.TypeName())
		default:
			return value.Value{}, fmt.Errorf("object of type %q has no len()", target.TypeName())
		}
	}
	r.register("length", length)
	r.register("count", length)

	r.register("join", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		separator := argString(extra, kwargs, 0, "d", "")
		attribute := argString(extra, kwargs, 1, "attribute", "")

		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("join filter requires a sequence")
		}
		parts := make([]string, len(items))
		for i, item := range items {
			if attribute != "" {
				item = extractAttr(item, attribute)
			}
			parts[i] = value.ToDisplayString(item)
		}
		return value.String(strings.Join(parts, separator)), nil
	})

	r.register("sort", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		reverse := argBool(extra, kwargs, 0, "reverse", false)
		caseSensitive := argBool(extra, kwargs, 1, "case_sensitive", false)
		attribute := argString(extra, kwargs, 2, "attribute", "")

		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("sort filter requires a sequence")
		}
		sorted := append([]value.Value(nil), items...)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := sorted[i], sorted[j]
			if attribute != "" {
				a = extractAttr(a, attribute)
				b = extractAttr(b, attribute)
			}
			as, bs := value.ToDisplayString(a), value.ToDisplayString(b)
			if !caseSensitive {
				as, bs = strings.ToLower(as), strings.ToLower(bs)
			}
			if reverse {
				return as > bs
			}
			return as < bs
		})
		return value.ListFromSlice(sorted), nil
	})

	r.register("reverse", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if target.Kind() == value.KindString || target.Kind() == value.KindMarkup {
			runes := []rune(target.AsString())
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return value.String(string(runes)), nil
		}
		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("reverse filter requires a sequence")
		}
		reversed := make([]value.Value, len(items))
		for i, item := range items {
			reversed[len(items)-1-i] = item
		}
		return value.ListFromSlice(reversed), nil
	})

	r.register("unique", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		caseSensitive := argBool(extra, kwargs, 0, "case_sensitive", true)
		attribute := argString(extra, kwargs, 1, "attribute", "")

		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("unique filter requires a sequence")
		}
		result := make([]value.Value, 0, len(items))
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			key := item
			if attribute != "" {
				key = extractAttr(item, attribute)
			}
			keyStr := value.ToDisplayString(key)
			if !caseSensitive {
				keyStr = strings.ToLower(keyStr)
			}
			if !seen[keyStr] {
				seen[keyStr] = true
				result = append(result, item)
			}
		}
		return value.ListFromSlice(result), nil
	})

	r.register("slice", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("slice filter requires at least one argument")
		}
		start := int(toInt(extra[0]))
		var end *int
		if len(extra) > 1 && !extra[1].IsNull() {
			e := int(toInt(extra[1]))
			end = &e
		}

		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("slice filter requires a sequence")
		}
		length := len(items)
		if start < 0 {
			start = length + start
		}
		if start < 0 {
			start = 0
		}
		if start >= length {
			return value.ListFromSlice(nil), nil
		}
		endIdx := length
		if end != nil {
			endIdx = *end
			if endIdx < 0 {
				endIdx = length + endIdx
			}
			if endIdx > length {
				endIdx = length
			}
		}
		if endIdx <= start {
			return value.ListFromSlice(nil), nil
		}
		if target.Kind() == value.KindString || target.Kind() == value.KindMarkup {
			runes := make([]rune, 0, endIdx-start)
			for _, it := range items[start:endIdx] {
				runes = append(runes, []rune(it.AsString())...)
			}
			return value.String(string(runes)), nil
		}
		return value.ListFromSlice(items[start:endIdx]), nil
	})

	r.register("batch", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("batch filter requires size argument")
		}
		size := int(toInt(extra[0]))
		if size <= 0 {
			return value.Value{}, fmt.Errorf("batch size must be positive")
		}
		var fill value.Value
		hasFill := false
		if v, ok := arg(extra, kwargs, 1, "fill_with"); ok {
			fill = v
			hasFill = true
		}

		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("batch filter requires a sequence")
		}
		var batches []value.Value
		for i := 0; i < len(items); i += size {
			end := i + size
			if end > len(items) {
				end = len(items)
			}
			batch := make([]value.Value, size)
			copy(batch, items[i:end])
			if hasFill {
				for j := end - i; j < size; j++ {
					batch[j] = fill
				}
			} else {
				batch = batch[:end-i]
			}
			batches = append(batches, value.ListFromSlice(batch))
		}
		return value.ListFromSlice(batches), nil
	})

	r.register("list", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		switch target.Kind() {
		case value.KindList:
			return target, nil
		case value.KindString, value.KindMarkup:
			runes := []rune(target.AsString())
			items := make([]value.Value, len(runes))
			for i, rn := range runes {
				items[i] = value.String(string(rn))
			}
			return value.ListFromSlice(items), nil
		case value.KindDict:
			keys := append([]string(nil), target.AsDict().Keys()...)
			sort.Strings(keys)
			items := make([]value.Value, len(keys))
			for i, k := range keys {
				items[i] = value.String(k)
			}
			return value.ListFromSlice(items), nil
		default:
			return value.List(target), nil
		}
	})

	r.register("selectattr", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("selectattr filter requires attribute name")
		}
		attrName := value.ToDisplayString(extra[0])
		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("selectattr filter requires a sequence")
		}
		var result []value.Value
		for _, item := range items {
			attr := extractAttr(item, attrName)
			if len(extra) == 1 {
				if attr.Truthy() {
					result = append(result, item)
				}
			} else if value.Equal(attr, extra[1]) {
				result = append(result, item)
			}
		}
		return value.ListFromSlice(result), nil
	})

	r.register("rejectattr", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("rejectattr filter requires attribute name")
		}
		attrName := value.ToDisplayString(extra[0])
		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("rejectattr filter requires a sequence")
		}
		var result []value.Value
		for _, item := range items {
			attr := extractAttr(item, attrName)
			if len(extra) == 1 {
				if !attr.Truthy() {
					result = append(result, item)
				}
			} else if !value.Equal(attr, extra[1]) {
				result = append(result, item)
			}
		}
		return value.ListFromSlice(result), nil
	})

	r.register("items", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if target.Kind() != value.KindDict {
			return value.Value{}, fmt.Errorf("items filter requires a mapping")
		}
		keys := append([]string(nil), target.AsDict().Keys()...)
		sort.Strings(keys)
		items := make([]value.Value, len(keys))
		for i, k := range keys {
			v, _ := target.AsDict().Get(k)
			items[i] = value.List(value.String(k), v)
		}
		return value.ListFromSlice(items), nil
	})

	r.register("keys", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if target.Kind() != value.KindDict {
			return value.Value{}, fmt.Errorf("keys filter requires a mapping")
		}
		keys := append([]string(nil), target.AsDict().Keys()...)
		sort.Strings(keys)
		items := make([]value.Value, len(keys))
		for i, k := range keys {
			items[i] = value.String(k)
		}
		return value.ListFromSlice(items), nil
	})

	r.register("values", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if target.Kind() != value.KindDict {
			return value.Value{}, fmt.Errorf("values filter requires a mapping")
		}
		keys := append([]string(nil), target.AsDict().Keys()...)
		sort.Strings(keys)
		items := make([]value.Value, len(keys))
		for i, k := range keys {
			items[i], _ = target.AsDict().Get(k)
		}
		return value.ListFromSlice(items), nil
	})

	r.register("zip", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) == 0 {
			return value.Value{}, fmt.Errorf("zip filter requires at least one argument")
		}
		first, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("zip filter requires sequences")
		}
		sequences := [][]value.Value{first}
		for i, e := range extra {
			seq, ok := asItems(e)
			if !ok {
				return value.Value{}, fmt.Errorf("zip filter argument %d requires a sequence", i+1)
			}
			sequences = append(sequences, seq)
		}
		minLen := len(first)
		for _, seq := range sequences[1:] {
			if len(seq) < minLen {
				minLen = len(seq)
			}
		}
		result := make([]value.Value, minLen)
		for i := 0; i < minLen; i++ {
			tuple := make([]value.Value, len(sequences))
			for j, seq := range sequences {
				tuple[j] = seq[i]
			}
			result[i] = value.ListFromSlice(tuple)
		}
		return value.ListFromSlice(result), nil
	})
}
