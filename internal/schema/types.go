package schema

import "github.com/roach88/sitecms/internal/content"

// Kind names a field variant. It appears only at the CUE boundary and in
// API output; code dispatches on the concrete Field type.
type Kind string

const (
	KindText     Kind = "text"
	KindRichText Kind = "richtext"
	KindImage    Kind = "image"
	KindIcon     Kind = "icon"
	KindColor    Kind = "color"
	KindLink     Kind = "link"
	KindNumber   Kind = "number"
	KindSelect   Kind = "select"
	KindArray    Kind = "array"
)

// Field is a sealed interface over the field variants. Each variant
// carries only the constraints meaningful to its kind.
type Field interface {
	Kind() Kind
	Meta() Common
	field()
}

// Common holds attributes shared by every variant.
type Common struct {
	Name     string
	Label    string
	Help     string
	Required bool
	Default  content.Value // nil when the field declares no default
}

// TextField is a single-line or multi-line plain string.
type TextField struct {
	Common
	MaxLength   int // 0 means unbounded
	Multiline   bool
	Placeholder string
}

// RichTextField holds HTML markup. MaxLength applies to the visible text.
type RichTextField struct {
	Common
	MaxLength int
}

// ImageField holds an image URL (usually a media row's best URL).
type ImageField struct {
	Common
}

// IconField holds an icon identifier from the site's icon set.
type IconField struct {
	Common
}

// ColorField holds a hex color (#rgb or #rrggbb).
type ColorField struct {
	Common
}

// LinkField holds a relative path, anchor, tel:, mailto: or http(s) URL.
type LinkField struct {
	Common
	MaxLength int
}

// NumberField holds a number with optional inclusive bounds.
type NumberField struct {
	Common
	Min *float64
	Max *float64
}

// SelectField holds one value out of a closed option list.
type SelectField struct {
	Common
	Options []string
}

// ArrayField holds a list of objects, each conforming to Item.
type ArrayField struct {
	Common
	MaxItems int // 0 means unbounded
	Item     []Field
}

func (f *TextField) Kind() Kind     { return KindText }
func (f *RichTextField) Kind() Kind { return KindRichText }
func (f *ImageField) Kind() Kind    { return KindImage }
func (f *IconField) Kind() Kind     { return KindIcon }
func (f *ColorField) Kind() Kind    { return KindColor }
func (f *LinkField) Kind() Kind     { return KindLink }
func (f *NumberField) Kind() Kind   { return KindNumber }
func (f *SelectField) Kind() Kind   { return KindSelect }
func (f *ArrayField) Kind() Kind    { return KindArray }

func (f *TextField) Meta() Common     { return f.Common }
func (f *RichTextField) Meta() Common { return f.Common }
func (f *ImageField) Meta() Common    { return f.Common }
func (f *IconField) Meta() Common     { return f.Common }
func (f *ColorField) Meta() Common    { return f.Common }
func (f *LinkField) Meta() Common     { return f.Common }
func (f *NumberField) Meta() Common   { return f.Common }
func (f *SelectField) Meta() Common   { return f.Common }
func (f *ArrayField) Meta() Common    { return f.Common }

func (*TextField) field()     {}
func (*RichTextField) field() {}
func (*ImageField) field()    {}
func (*IconField) field()     {}
func (*ColorField) field()    {}
func (*LinkField) field()     {}
func (*NumberField) field()   {}
func (*SelectField) field()   {}
func (*ArrayField) field()    {}

// ItemField returns the named field of the array's item schema.
func (f *ArrayField) ItemField(name string) (Field, bool) {
	for _, item := range f.Item {
		if item.Meta().Name == name {
			return item, true
		}
	}
	return nil, false
}

// Section is one editable group of fields.
type Section struct {
	Key         string
	Label       string
	Description string

	// Keyed sections are collections: every content_key other than
	// "default" is an entry conforming to Fields.
	Keyed bool

	Fields  []Field
	Default content.Value
}

// Field returns the named top-level field.
func (s *Section) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Meta().Name == name {
			return f, true
		}
	}
	return nil, false
}

// DefaultObject returns the section default as an object, or an empty
// object when the default is absent or not an object.
func (s *Section) DefaultObject() content.Object {
	if obj, ok := s.Default.(content.Object); ok {
		return obj.Clone()
	}
	return content.Object{}
}
