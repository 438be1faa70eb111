package validate

import (
	"github.com/microcosm-cc/bluemonday"

	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/schema"
)

var richText = bluemonday.UGCPolicy()

// Sanitize returns a copy of v with every rich text value cleaned of
// scripts, event handlers and other unsafe markup. Plain text fields are
// left alone; the renderer escapes them.
func Sanitize(fields []schema.Field, v content.Value) content.Value {
	obj, ok := v.(content.Object)
	if !ok {
		return content.Clone(v)
	}
	out := obj.Clone()
	for _, f := range fields {
		name := f.Meta().Name
		val, present := out[name]
		if !present {
			continue
		}
		switch f := f.(type) {
		case *schema.RichTextField:
			if s, ok := val.(content.String); ok {
				out[name] = content.String(richText.Sanitize(string(s)))
			}
		case *schema.ArrayField:
			arr, ok := val.(content.Array)
			if !ok {
				continue
			}
			items := make(content.Array, len(arr))
			for i, item := range arr {
				items[i] = Sanitize(f.Item, item)
			}
			out[name] = items
		}
	}
	return out
}

// SanitizeField cleans a single field value.
func SanitizeField(f schema.Field, v content.Value) content.Value {
	name := f.Meta().Name
	wrapped := Sanitize([]schema.Field{f}, content.Object{name: v})
	return wrapped.(content.Object)[name]
}
