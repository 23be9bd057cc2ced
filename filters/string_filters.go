package filters

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/kilnjinja/kiln/value"
)

var (
	reSlugifySpaces  = regexp.MustCompile(`[\s\-_]+`)
	reSlugifyNonWord = regexp.MustCompile(`[^\w\-]`)
)

func titleCase(s string) string {
	prev := ' '
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(prev) {
			prev = r
			return unicode.ToTitle(r)
		}
		prev = r
		return r
	}, s)
}

func registerStringFilters(r *Registry) {
	r.register("upper", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.String(strings.ToUpper(value.ToDisplayString(target))), nil
	})
	r.register("lower", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.String(strings.ToLower(value.ToDisplayString(target))), nil
	})
	r.register("capitalize", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := value.ToDisplayString(target)
		if s == "" {
			return value.String(s), nil
		}
		runes := []rune(s)
		runes[0] = unicode.ToUpper(runes[0])
		for i := 1; i < len(runes); i++ {
			runes[i] = unicode.ToLower(runes[i])
		}
		return value.String(string(runes)), nil
	})
	r.register("title", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.String(titleCase(value.ToDisplayString(target))), nil
	})
	r.register("trim", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := value.ToDisplayString(target)
		if chars, ok := arg(extra, kwargs, 0, "chars"); ok {
			return value.String(strings.Trim(s, value.ToDisplayString(chars))), nil
		}
		return value.String(strings.TrimSpace(s)), nil
	})
	r.register("lstrip", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := value.ToDisplayString(target)
		if chars, ok := arg(extra, kwargs, 0, "chars"); ok {
			return value.String(strings.TrimLeft(s, value.ToDisplayString(chars))), nil
		}
		return value.String(strings.TrimLeftFunc(s, unicode.IsSpace)), nil
	})
	r.register("rstrip", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := value.ToDisplayString(target)
		if chars, ok := arg(extra, kwargs, 0, "chars"); ok {
			return value.String(strings.TrimRight(s, value.ToDisplayString(chars))), nil
		}
		return value.String(strings.TrimRightFunc(s, unicode.IsSpace)), nil
	})
	r.register("replace", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 2 {
			return value.Value{}, fmt.Errorf("replace filter requires old and new arguments")
		}
		s := value.ToDisplayString(target)
		old := value.ToDisplayString(extra[0])
		repl := value.ToDisplayString(extra[1])
		count := argInt(extra, kwargs, 2, "count", -1)
		if count < 0 {
			return value.String(strings.ReplaceAll(s, old, repl)), nil
		}
		return value.String(strings.Replace(s, old, repl, count)), nil
	})
	r.register("truncate", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("truncate filter requires length argument")
		}
		s := value.ToDisplayString(target)
		length := int(toInt(extra[0]))
		killwords := argBool(extra, kwargs, 1, "killwords", false)
		end := argString(extra, kwargs, 2, "end", "...")

		runes := []rune(s)
		if len(runes) <= length {
			return value.String(s), nil
		}
		if killwords {
			return value.String(string(runes[:length]) + end), nil
		}
		truncated := string(runes[:length])
		lastSpace := strings.LastIndex(truncated, " ")
		if lastSpace > 0 && lastSpace > length/2 {
			truncated = truncated[:lastSpace]
		}
		return value.String(truncated + end), nil
	})
	r.register("wordwrap", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("wordwrap filter requires width argument")
		}
		s := value.ToDisplayString(target)
		width := int(toInt(extra[0]))
		breakOnHyphens := argBool(extra, kwargs, 1, "break_long_words", true)
		wrapString := argString(extra, kwargs, 2, "wrapstring", "\n")

		words := strings.Fields(s)
		if len(words) == 0 {
			return value.String(s), nil
		}
		var lines []string
		var cur strings.Builder
		appendWord := func(part string) {
			if cur.Len()+len(part)+1 > width && cur.Len() > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			if cur.Len() > 0 {
				cur.WriteString(" ")
			}
			cur.WriteString(part)
		}
		for _, word := range words {
			if breakOnHyphens && strings.Contains(word, "-") {
				parts := strings.Split(word, "-")
				for i, part := range parts {
					if i > 0 {
						part = "-" + part
					}
					appendWord(part)
				}
			} else {
				appendWord(word)
			}
		}
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
		}
		return value.String(strings.Join(lines, wrapString)), nil
	})
	r.register("center", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("center filter requires width argument")
		}
		s := value.ToDisplayString(target)
		width := int(toInt(extra[0]))
		fillchar := argString(extra, kwargs, 1, "fillchar", " ")
		if fillchar == "" {
			fillchar = " "
		}
		sLen := len([]rune(s))
		if sLen >= width {
			return value.String(s), nil
		}
		padding := width - sLen
		left := padding / 2
		right := padding - left
		return value.String(strings.Repeat(fillchar, left) + s + strings.Repeat(fillchar, right)), nil
	})
	r.register("indent", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("indent filter requires width argument")
		}
		s := value.ToDisplayString(target)
		width := int(toInt(extra[0]))
		indentFirst := argBool(extra, kwargs, 1, "first", false)
		indentString := argString(extra, kwargs, 2, "blank", " ")

		lines := strings.Split(s, "\n")
		prefix := strings.Repeat(indentString, width)
		for i, line := range lines {
			if i == 0 && !indentFirst {
				continue
			}
			if line != "" || i < len(lines)-1 {
				lines[i] = prefix + line
			}
		}
		return value.String(strings.Join(lines, "\n")), nil
	})
	r.register("string", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.String(value.ToDisplayString(target)), nil
	})
	r.register("format", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (result value.Value, err error) {
		s := value.ToDisplayString(target)
		if len(extra) == 0 {
			return value.String(s), nil
		}
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("format error: %v", rec)
				result = value.String(s)
			}
		}()
		args := make([]interface{}, len(extra))
		for i, e := range extra {
			args[i] = value.ToDisplayString(e)
		}
		return value.String(fmt.Sprintf(s, args...)), nil
	})
	r.register("regex_replace", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 2 {
			return value.Value{}, fmt.Errorf("regex_replace filter requires pattern and replacement arguments")
		}
		s := value.ToDisplayString(target)
		pattern := value.ToDisplayString(extra[0])
		replacement := value.ToDisplayString(extra[1])
		ignoreCase := argBool(extra, kwargs, 2, "ignorecase", false)
		regex, err := compileRegex(pattern, ignoreCase)
		if err != nil {
			return value.Value{}, fmt.Errorf("invalid regex pattern: %v", err)
		}
		return value.String(regex.ReplaceAllString(s, replacement)), nil
	})
	r.register("regex_search", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("regex_search filter requires pattern argument")
		}
		s := value.ToDisplayString(target)
		pattern := value.ToDisplayString(extra[0])
		ignoreCase := argBool(extra, kwargs, 1, "ignorecase", false)
		regex, err := compileRegex(pattern, ignoreCase)
		if err != nil {
			return value.Value{}, fmt.Errorf("invalid regex pattern: %v", err)
		}
		match := regex.FindString(s)
		if match == "" {
			return value.Null, nil
		}
		return value.String(match), nil
	})
	r.register("regex_findall", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("regex_findall filter requires pattern argument")
		}
		s := value.ToDisplayString(target)
		pattern := value.ToDisplayString(extra[0])
		ignoreCase := argBool(extra, kwargs, 1, "ignorecase", false)
		regex, err := compileRegex(pattern, ignoreCase)
		if err != nil {
			return value.Value{}, fmt.Errorf("invalid regex pattern: %v", err)
		}
		matches := regex.FindAllString(s, -1)
		items := make([]value.Value, len(matches))
		for i, m := range matches {
			items[i] = value.String(m)
		}
		return value.ListFromSlice(items), nil
	})
	r.register("split", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := value.ToDisplayString(target)
		delimiter := argString(extra, kwargs, 0, "sep", " ")
		maxSplit := argInt(extra, kwargs, 1, "maxsplit", -1)

		var parts []string
		if maxSplit < 0 {
			if delimiter == " " {
				parts = strings.Fields(s)
			} else {
				parts = strings.Split(s, delimiter)
			}
		} else {
			parts = strings.SplitN(s, delimiter, maxSplit+1)
		}
		items := make([]value.Value, len(parts))
		for i, p := range parts {
			items[i] = value.String(p)
		}
		return value.ListFromSlice(items), nil
	})
	r.register("startswith", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("startswith filter requires prefix argument")
		}
		return value.Bool(strings.HasPrefix(value.ToDisplayString(target), value.ToDisplayString(extra[0]))), nil
	})
	r.register("endswith", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("endswith filter requires suffix argument")
		}
		return value.Bool(strings.HasSuffix(value.ToDisplayString(target), value.ToDisplayString(extra[0]))), nil
	})
	r.register("contains", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("contains filter requires substring argument")
		}
		return value.Bool(strings.Contains(value.ToDisplayString(target), value.ToDisplayString(extra[0]))), nil
	})
	r.register("slugify", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := strings.ToLower(value.ToDisplayString(target))
		s = reSlugifySpaces.ReplaceAllString(s, "-")
		s = reSlugifyNonWord.ReplaceAllString(s, "")
		s = strings.Trim(s, "-")
		return value.String(s), nil
	})
	r.register("pad_left", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("pad_left filter requires width argument")
		}
		s := value.ToDisplayString(target)
		width := int(toInt(extra[0]))
		fillchar := argString(extra, kwargs, 1, "fillchar", " ")
		if fillchar == "" {
			fillchar = " "
		}
		sLen := len([]rune(s))
		if sLen >= width {
			return value.String(s), nil
		}
		return value.String(strings.Repeat(fillchar, width-sLen) + s), nil
	})
	r.register("pad_right", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("pad_right filter requires width argument")
		}
		s := value.ToDisplayString(target)
		width := int(toInt(extra[0]))
		fillchar := argString(extra, kwargs, 1, "fillchar", " ")
		if fillchar == "" {
			fillchar = " "
		}
		sLen := len([]rune(s))
		if sLen >= width {
			return value.String(s), nil
		}
		return value.String(s + strings.Repeat(fillchar, width-sLen)), nil
	})
	r.register("wordcount", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := strings.TrimSpace(value.ToDisplayString(target))
		if s == "" {
			return value.Int(0), nil
		}
		return value.Int(int64(len(strings.Fields(s)))), nil
	})
}

func compileRegex(pattern string, ignoreCase bool) (*regexp.Regexp, error) {
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}
