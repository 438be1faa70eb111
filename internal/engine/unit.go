package engine

import (
	"fmt"
	"regexp"

	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/schema"
	"github.com/roach88/sitecms/internal/validate"
)

var entryKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// unit is what one (section, key) row holds: the whole singleton section,
// one of its fields, or one entry of a keyed section.
type unit struct {
	section *schema.Section
	key     string
	field   schema.Field
}

func (e *Engine) unitFor(section, key string) (unit, error) {
	sec, ok := e.registry.Lookup(section)
	if !ok {
		return unit{}, notFound(section, key, fmt.Sprintf("unknown section %q", section))
	}
	if key == "" {
		return unit{}, notFound(section, key, "content key is required")
	}

	if sec.Keyed {
		if key == schema.DefaultContentKey {
			return unit{}, validationFailed(section, key, []validate.Violation{{
				Path:    "key",
				Message: fmt.Sprintf("Key %q is reserved", schema.DefaultContentKey),
			}})
		}
		if !entryKeyPattern.MatchString(key) {
			return unit{}, validationFailed(section, key, []validate.Violation{{
				Path:    "key",
				Message: "Key must start with a lowercase letter or digit and use only a-z, 0-9, - and _",
			}})
		}
		return unit{section: sec, key: key}, nil
	}

	if key == schema.DefaultContentKey {
		return unit{section: sec, key: key}, nil
	}
	f, ok := sec.Field(key)
	if !ok {
		return unit{}, notFound(section, key, fmt.Sprintf("section %q has no field %q", section, key))
	}
	return unit{section: sec, key: key, field: f}, nil
}

// candidate is the value the public would see for this unit alone: the
// unit's defaults overlaid with value.
func (u unit) candidate(value content.Value) content.Value {
	switch {
	case u.field != nil:
		return value
	case u.section.Keyed:
		base := content.Value(u.section.EntryDefaults())
		if entry, ok := content.Lookup(u.section.Default, u.key); ok {
			base = content.Merge(base, entry)
		}
		return content.Merge(base, value)
	default:
		return content.Merge(u.section.Default, value)
	}
}

func (u unit) validate(value content.Value) []validate.Violation {
	if u.field != nil {
		return validate.Field(u.field, value)
	}
	vs := validate.Section(u.section, u.candidate(value))
	if u.section.Keyed {
		for i := range vs {
			vs[i].Path = u.key + "." + vs[i].Path
			vs[i].Message = u.key + ": " + vs[i].Message
		}
	}
	return vs
}

func (u unit) sanitize(value content.Value) content.Value {
	if u.field != nil {
		return validate.SanitizeField(u.field, value)
	}
	return validate.Sanitize(u.section.Fields, value)
}
