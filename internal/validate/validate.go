// Package validate checks content against section schemas.
//
// Validation never mutates content and never fails: it returns every
// violation found so editors see all problems at once. Callers decide
// whether violations block the operation (publish and explicit save do,
// autosave does not).
package validate

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/schema"
)

// Violation is one human-readable constraint failure.
type Violation struct {
	// Path locates the value, e.g. "items[0].quote".
	Path string `json:"path"`

	// Message is shown to the editor, e.g. "Item 1: Quote is required".
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Message
}

// Messages flattens violations into their messages.
func Messages(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Message
	}
	return out
}

var (
	colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	stripTags    = bluemonday.StripTagsPolicy()
)

// Section validates a whole section object (or one keyed entry).
func Section(sec *schema.Section, v content.Value) []Violation {
	obj, ok := v.(content.Object)
	if !ok {
		return []Violation{{
			Path:    sec.Key,
			Message: fmt.Sprintf("%s must be an object, got %s", sec.Label, content.Kind(v)),
		}}
	}
	return checkObject(sec.Fields, obj, "", "")
}

// Field validates a single field value. A nil v means the field is absent.
func Field(f schema.Field, v content.Value) []Violation {
	return checkField(f, v, f.Meta().Name, "")
}

// Color reports whether s is a #rgb or #rrggbb hex color.
func Color(s string) bool {
	return colorPattern.MatchString(s)
}

// Link reports whether s is an acceptable link target.
func Link(s string) bool {
	switch {
	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "#"):
		return true
	case strings.HasPrefix(s, "tel:"), strings.HasPrefix(s, "mailto:"):
		return len(s) > strings.Index(s, ":")+1
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// TextLength counts the visible characters of rich text.
func TextLength(markup string) int {
	return utf8.RuneCountInString(html.UnescapeString(stripTags.Sanitize(markup)))
}

func checkObject(fields []schema.Field, obj content.Object, pathPrefix, labelPrefix string) []Violation {
	var out []Violation
	for _, f := range fields {
		name := f.Meta().Name
		out = append(out, checkField(f, obj[name], pathPrefix+name, labelPrefix)...)
	}
	return out
}

func checkField(f schema.Field, v content.Value, path, labelPrefix string) []Violation {
	meta := f.Meta()
	label := labelPrefix + meta.Label
	violation := func(format string, args ...any) []Violation {
		return []Violation{{Path: path, Message: label + " " + fmt.Sprintf(format, args...)}}
	}

	if isAbsent(v) {
		if meta.Required {
			return violation("is required")
		}
		return nil
	}

	switch f := f.(type) {
	case *schema.ArrayField:
		return checkArray(f, v, path, label)

	case *schema.TextField:
		s, ok := v.(content.String)
		if !ok {
			return violation("must be text, got %s", content.Kind(v))
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(string(s)) > f.MaxLength {
			return violation("must be at most %d characters", f.MaxLength)
		}

	case *schema.RichTextField:
		s, ok := v.(content.String)
		if !ok {
			return violation("must be text, got %s", content.Kind(v))
		}
		if f.MaxLength > 0 && TextLength(string(s)) > f.MaxLength {
			return violation("must be at most %d characters", f.MaxLength)
		}

	case *schema.ImageField:
		if _, ok := v.(content.String); !ok {
			return violation("must be an image URL, got %s", content.Kind(v))
		}

	case *schema.IconField:
		if _, ok := v.(content.String); !ok {
			return violation("must be an icon name, got %s", content.Kind(v))
		}

	case *schema.ColorField:
		s, ok := v.(content.String)
		if !ok || !Color(string(s)) {
			return violation("must be a hex color like #1f3a5f")
		}

	case *schema.LinkField:
		s, ok := v.(content.String)
		if !ok || !Link(string(s)) {
			return violation("must be a path, #anchor, tel:, mailto: or http(s) URL")
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(string(s)) > f.MaxLength {
			return violation("must be at most %d characters", f.MaxLength)
		}

	case *schema.NumberField:
		n, ok := v.(content.Number)
		if !ok {
			return violation("must be a number, got %s", content.Kind(v))
		}
		if f.Min != nil && float64(n) < *f.Min {
			return violation("must be at least %s", formatFloat(*f.Min))
		}
		if f.Max != nil && float64(n) > *f.Max {
			return violation("must be at most %s", formatFloat(*f.Max))
		}

	case *schema.SelectField:
		s, ok := v.(content.String)
		if !ok || !contains(f.Options, string(s)) {
			return violation("must be one of: %s", strings.Join(f.Options, ", "))
		}

	default:
		return violation("has unsupported field type %T", f)
	}
	return nil
}

func checkArray(f *schema.ArrayField, v content.Value, path, label string) []Violation {
	arr, ok := v.(content.Array)
	if !ok {
		return []Violation{{Path: path, Message: fmt.Sprintf("%s must be a list, got %s", label, content.Kind(v))}}
	}

	var out []Violation
	if f.Required && len(arr) == 0 {
		out = append(out, Violation{Path: path, Message: label + " needs at least one item"})
	}
	if f.MaxItems > 0 && len(arr) > f.MaxItems {
		out = append(out, Violation{Path: path, Message: fmt.Sprintf("%s can have at most %d items", label, f.MaxItems)})
	}

	for i, item := range arr {
		itemPath := fmt.Sprintf("%s[%d].", path, i)
		itemLabel := fmt.Sprintf("Item %d: ", i+1)
		obj, ok := item.(content.Object)
		if !ok {
			out = append(out, Violation{
				Path:    strings.TrimSuffix(itemPath, "."),
				Message: fmt.Sprintf("%s%s entry must be an object", itemLabel, label),
			})
			continue
		}
		out = append(out, checkObject(f.Item, obj, itemPath, itemLabel)...)
	}
	return out
}

// isAbsent treats missing, null and empty strings alike.
func isAbsent(v content.Value) bool {
	switch val := v.(type) {
	case nil, content.Null:
		return true
	case content.String:
		return val == ""
	}
	return false
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
