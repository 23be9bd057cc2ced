package filters

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/kilnjinja/kiln/value"
)

var (
	reHTMLTags = regexp.MustCompile(`<[^>]*>`)
	reURLs     = regexp.MustCompile(`https?://[^\s<>"']+`)
)

func registerHTMLFilters(r *Registry) {
	escape := func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if target.Kind() == value.KindMarkup {
			return target, nil
		}
		return value.Markup(html.EscapeString(value.ToDisplayString(target))), nil
	}
	r.register("escape", escape)
	r.register("e", escape)

	r.register("safe", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.Markup(value.ToDisplayString(target)), nil
	})
	r.register("urlencode", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.String(url.QueryEscape(value.ToDisplayString(target))), nil
	})
	r.register("xmlattr", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if target.Kind() != value.KindDict {
			return value.Value{}, fmt.Errorf("xmlattr filter requires a mapping")
		}
		d := target.AsDict()
		keys := append([]string(nil), d.Keys()...)
		sort.Strings(keys)

		var result strings.Builder
		count := 0
		for _, key := range keys {
			val, _ := d.Get(key)
			if val.IsNull() || val.IsUndefined() {
				continue
			}
			if val.Kind() == value.KindBool {
				if val.AsBool() {
					if count > 0 {
						result.WriteByte(' ')
					}
					result.WriteString(html.EscapeString(key))
					count++
				}
				continue
			}
			attrValue := value.ToDisplayString(val)
			if attrValue != "" {
				if count > 0 {
					result.WriteByte(' ')
				}
				result.WriteString(html.EscapeString(key))
				result.WriteString(`="`)
				result.WriteString(html.EscapeString(attrValue))
				result.WriteByte('"')
				count++
			}
		}
		if count == 0 {
			return value.String(""), nil
		}
		return value.Markup(" " + result.String()), nil
	})
	r.register("striptags", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := value.ToDisplayString(target)
		result := reHTMLTags.ReplaceAllString(s, "")
		result = html.UnescapeString(result)
		return value.String(result), nil
	})

	urlize := func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := value.ToDisplayString(target)
		trimURLs := argBool(extra, kwargs, 0, "trim_url_limit", true)
		nofollow := argBool(extra, kwargs, 1, "nofollow", false)
		target_ := argString(extra, kwargs, 2, "target", "")
		rel := argString(extra, kwargs, 3, "rel", "")

		result := reURLs.ReplaceAllStringFunc(s, func(match string) string {
			displayURL := match
			if trimURLs && len(match) > 40 {
				displayURL = match[:37] + "..."
			}
			var attrs []string
			attrs = append(attrs, fmt.Sprintf(`href="%s"`, html.EscapeString(match)))
			if target_ != "" {
				attrs = append(attrs, fmt.Sprintf(`target="%s"`, html.EscapeString(target_)))
			}
			if nofollow {
				if rel != "" {
					rel = "nofollow " + rel
				} else {
					rel = "nofollow"
				}
			}
			if rel != "" {
				attrs = append(attrs, fmt.Sprintf(`rel="%s"`, html.EscapeString(rel)))
			}
			return fmt.Sprintf(`<a %s>%s</a>`, strings.Join(attrs, " "), html.EscapeString(displayURL))
		})
		return value.Markup(result), nil
	}
	r.register("urlize", urlize)

	r.register("urlizetarget", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		t := argString(extra, kwargs, 0, "target", "_blank")
		newExtra := []value.Value{value.Bool(true), value.Bool(false), value.String(t)}
		if len(extra) > 1 {
			newExtra = append(newExtra, extra[1:]...)
		}
		return urlize(target, newExtra, nil)
	})

	r.register("truncatehtml", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		if len(extra) < 1 {
			return value.Value{}, fmt.Errorf("truncatehtml filter requires length argument")
		}
		s := value.ToDisplayString(target)
		length := int(toInt(extra[0]))
		killwords := argBool(extra, kwargs, 1, "killwords", false)
		end := argString(extra, kwargs, 2, "end", "...")

		stripped := html.UnescapeString(reHTMLTags.ReplaceAllString(s, ""))
		if len([]rune(stripped)) <= length {
			return value.Markup(s), nil
		}
		runes := []rune(stripped)
		truncated := string(runes[:length])
		if !killwords {
			lastSpace := strings.LastIndex(truncated, " ")
			if lastSpace > 0 && lastSpace > length/2 {
				truncated = truncated[:lastSpace]
			}
		}
		return value.Markup(truncated + end), nil
	})

	r.register("filesizeformat", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		size := toFloat(target)
		binary := argBool(extra, kwargs, 0, "binary", false)

		var units []string
		var base float64
		if binary {
			units = []string{"Bytes", "KiB", "MiB", "GiB", "TiB", "PiB"}
			base = 1024
		} else {
			units = []string{"Bytes", "KB", "MB", "GB", "TB", "PB"}
			base = 1000
		}
		if size < base {
			return value.String(fmt.Sprintf("%.0f %s", size, units[0])), nil
		}
		for i := 1; i < len(units); i++ {
			if size < base*base {
				return value.String(fmt.Sprintf("%.1f %s", size/base, units[i])), nil
			}
			size /= base
		}
		return value.String(fmt.Sprintf("%.1f %s", size, units[len(units)-1])), nil
	})

	r.register("autoescape", escape)
	r.register("marksafe", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.Markup(value.ToDisplayString(target)), nil
	})
	r.register("forceescape", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		return value.Markup(html.EscapeString(value.ToDisplayString(target))), nil
	})
	r.register("nl2br", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		s := value.ToDisplayString(target)
		result := strings.ReplaceAll(s, "\r\n", "<br>")
		result = strings.ReplaceAll(result, "\r", "<br>")
		result = strings.ReplaceAll(result, "\n", "<br>")
		return value.Markup(result), nil
	})

	r.register("urlizetruncate", func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error) {
		length := argInt(extra, kwargs, 0, "length", 40)
		killwords := argBool(extra, kwargs, 1, "killwords", false)
		targetAttr := argString(extra, kwargs, 2, "target", "")
		rel := argString(extra, kwargs, 3, "rel", "")

		s := value.ToDisplayString(target)
		result := reURLs.ReplaceAllStringFunc(s, func(match string) string {
			displayURL := match
			if len([]rune(match)) > length {
				runes := []rune(match)
				truncateAt := length - 3
				if truncateAt < 0 {
					truncateAt = 0
				}
				if killwords {
					displayURL = string(runes[:truncateAt]) + "..."
				} else {
					truncated := string(runes[:truncateAt])
					lastSlash := strings.LastIndex(truncated, "/")
					lastDot := strings.LastIndex(truncated, ".")
					breakPoint := -1
					if lastSlash > lastDot {
						breakPoint = lastSlash
					} else if lastDot > 0 {
						breakPoint = lastDot
					}
					if breakPoint > truncateAt/2 {
						displayURL = truncated[:breakPoint] + "..."
					} else {
						displayURL = truncated + "..."
					}
				}
			}
			var attrs []string
			attrs = append(attrs, fmt.Sprintf(`href="%s"`, html.EscapeString(match)))
			if targetAttr != "" {
				attrs = append(attrs, fmt.Sprintf(`target="%s"`, html.EscapeString(targetAttr)))
			}
			if rel != "" {
				attrs = append(attrs, fmt.Sprintf(`rel="%s"`, html.EscapeString(rel)))
			}
			return fmt.Sprintf(`<a %s>%s</a>`, strings.Join(attrs, " "), html.EscapeString(displayURL))
		})
		return value.Markup(result), nil
	})
}
