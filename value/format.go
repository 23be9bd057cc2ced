package value

import (
	"strconv"
	"strings"
)

// ToDisplayString renders v the way the VM's OUTPUT opcode and the `string`/
// `~` operators do: the canonical, implementation-defined textual form. Float
// formatting follows Go's shortest-round-trip convention (strconv's 'g'
// format), matching spec.md §9's note that exact byte-for-byte parity with a
// reference implementation's float formatting is not guaranteed.
func ToDisplayString(v Value) string {
	switch v.kind {
	case KindNull:
		return "None"
	case KindUndefined:
		if v.und != nil && v.und.Policy == PolicyDebug {
			return v.und.DebugString()
		}
		return ""
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString, KindMarkup:
		return v.s
	case KindList:
		items := v.AsList()
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = ReprString(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDict:
		var sb strings.Builder
		sb.WriteByte('{')
		first := true
		v.dict.Each(func(k string, dv Value) {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(ReprString(String(k)))
			sb.WriteString(": ")
			sb.WriteString(ReprString(dv))
		})
		sb.WriteByte('}')
		return sb.String()
	case KindCallable:
		if v.call != nil {
			return "<function " + v.call.Name + ">"
		}
		return "<function>"
	case KindCustom:
		if v.cust != nil {
			return v.cust.String()
		}
		return ""
	default:
		return ""
	}
}

// ReprString renders v the way it would appear nested inside a list/dict
// display (strings quoted), mirroring Jinja2/Python's repr() for containers.
func ReprString(v Value) string {
	switch v.kind {
	case KindString, KindMarkup:
		return strconv.Quote(v.s)
	default:
		return ToDisplayString(v)
	}
}

// EscapeHTML replaces '<', '>', '&', '"', '\'' with their HTML entities, per
// spec.md §4.5's auto-escape rule. Markup values should never be passed
// through this function by the caller (they pass through verbatim).
func EscapeHTML(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		case '&':
			sb.WriteString("&amp;")
		case '"':
			sb.WriteString("&#34;")
		case '\'':
			sb.WriteString("&#39;")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
