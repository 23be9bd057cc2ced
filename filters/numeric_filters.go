package filters

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/kilnjinja/kiln/value"
)

func registerNumericFilters(r *Registry) {
	r.register("abs", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if target.Kind() == value.KindInt {
			i := target.AsInt()
			if i < 0 {
				i = -i
			}
			return value.Int(i), nil
		}
		return value.Float(math.Abs(toFloat(target))), nil
	})

	r.register("round", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		precision := argInt(extra, kwargs, 0, "precision", 0)
		method := argString(extra, kwargs, 1, "method", "common")
		f := toFloat(target)
		multiplier := math.Pow(10, float64(precision))

		var result float64
		switch method {
		case "ceil":
			result = math.Ceil(f*multiplier) / multiplier
		case "floor":
			result = math.Floor(f*multiplier) / multiplier
		default:
			result = math.Round(f*multiplier) / multiplier
		}

		if len(extra) > 0 && precision >= 0 {
			formatted := fmt.Sprintf("%.*f", precision, result)
			if precision == 1 && strings.HasSuffix(formatted, ".0") {
				return value.String(fmt.Sprintf("%.0f", result)), nil
			}
			return value.String(formatted), nil
		}
		return value.Float(result), nil
	})

	r.register("int", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		def := argInt(extra, kwargs, 0, "default", 0)
		base := argInt(extra, kwargs, 1, "base", 10)

		switch target.Kind() {
		case value.KindInt:
			return value.Int(target.AsInt()), nil
		case value.KindFloat:
			return value.Int(int64(target.AsFloat())), nil
		case value.KindBool:
			if target.AsBool() {
				return value.Int(1), nil
			}
			return value.Int(0), nil
		case value.KindString:
			s := target.AsString()
			if s == "" {
				return value.Int(int64(def)), nil
			}
			i, err := strconv.ParseInt(s, base, 64)
			if err != nil {
				return value.Int(int64(def)), nil
			}
			return value.Int(i), nil
		default:
			return value.Int(int64(def)), nil
		}
	})

	r.register("float", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		def := argString(extra, kwargs, 0, "default", "")
		switch target.Kind() {
		case value.KindInt, value.KindFloat, value.KindBool:
			return value.Float(toFloat(target)), nil
		case value.KindString:
			s := target.AsString()
			if s == "" {
				if def != "" {
					f, _ := strconv.ParseFloat(def, 64)
					return value.Float(f), nil
				}
				return value.Float(0), nil
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return value.Float(0), nil
			}
			return value.Float(f), nil
		default:
			return value.Float(0), nil
		}
	})

	r.register("sum", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		start := toFloat(value.Float(0))
		if v, ok := arg(extra, kwargs, 0, "start"); ok {
			start = toFloat(v)
		}
		attribute := argString(extra, kwargs, 1, "attribute", "")

		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("sum filter requires a sequence")
		}
		sum := start
		for _, item := range items {
			if attribute != "" {
				item = extractAttr(item, attribute)
			}
			if !item.IsNull() && !item.IsUndefined() {
				sum += toFloat(item)
			}
		}
		return value.Float(sum), nil
	})

	r.register("min", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		attribute := argString(extra, kwargs, 0, "attribute", "")
		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("min filter requires a sequence")
		}
		var min value.Value
		var minFloat float64
		first := true
		for _, item := range items {
			cmp := item
			if attribute != "" {
				cmp = extractAttr(item, attribute)
			}
			if cmp.IsNull() || cmp.IsUndefined() {
				continue
			}
			f := toFloat(cmp)
			if first || f < minFloat {
				min = item
				minFloat = f
				first = false
			}
		}
		if first {
			return value.Value{}, fmt.Errorf("min filter requires non-empty sequence")
		}
		return min, nil
	})

	r.register("max", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		attribute := argString(extra, kwargs, 0, "attribute", "")
		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("max filter requires a sequence")
		}
		var max value.Value
		var maxFloat float64
		first := true
		for _, item := range items {
			cmp := item
			if attribute != "" {
				cmp = extractAttr(item, attribute)
			}
			if cmp.IsNull() || cmp.IsUndefined() {
				continue
			}
			f := toFloat(cmp)
			if first || f > maxFloat {
				max = item
				maxFloat = f
				first = false
			}
		}
		if first {
			return value.Value{}, fmt.Errorf("max filter requires non-empty sequence")
		}
		return max, nil
	})

	r.register("random", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		items, ok := asItems(target)
		if !ok {
			return value.Value{}, fmt.Errorf("random filter requires a sequence")
		}
		if len(items) == 0 {
			return value.Null, nil
		}
		return items[rand.Intn(len(items))], nil
	})

	r.register("ceil", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.Float(math.Ceil(toFloat(target))), nil
	})
	r.register("floor", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.Float(math.Floor(toFloat(target))), nil
	})
	r.register("pow", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("pow filter requires exponent argument")
		}
		return value.Float(math.Pow(toFloat(target), toFloat(extra[0]))), nil
	})

	r.register("currency", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		symbol := argString(extra, kwargs, 0, "symbol", "$")
		decimals := argInt(extra, kwargs, 1, "decimals", 2)
		separator := argString(extra, kwargs, 2, "separator", ",")

		f := toFloat(target)
		formatted := fmt.Sprintf("%.*f", decimals, f)
		parts := strings.Split(formatted, ".")
		integerPart := groupThousands(parts[0], separator)

		if decimals > 0 && len(parts) > 1 {
			return value.String(symbol + integerPart + "." + parts[1]), nil
		}
		return value.String(symbol + integerPart), nil
	})

	r.register("format_number", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		decimals := argInt(extra, kwargs, 0, "decimals", -1)
		separator := argString(extra, kwargs, 1, "separator", ",")

		f := toFloat(target)
		var formatted string
		if decimals >= 0 {
			formatted = fmt.Sprintf("%.*f", decimals, f)
		} else {
			formatted = strconv.FormatFloat(f, 'f', -1, 64)
		}
		parts := strings.Split(formatted, ".")
		integerPart := groupThousands(parts[0], separator)
		if len(parts) > 1 {
			return value.String(integerPart + "." + parts[1]), nil
		}
		return value.String(integerPart), nil
	})
}

func groupThousands(integerPart, separator string) string {
	if len(integerPart) <= 3 {
		return integerPart
	}
	var result strings.Builder
	for i, digit := range integerPart {
		if i > 0 && (len(integerPart)-i)%3 == 0 {
			result.WriteString(separator)
		}
		result.WriteRune(digit)
	}
	return result.String()
}
