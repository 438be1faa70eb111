package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sitecms/internal/content"
)

// CompileError reports an invalid section declaration.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile parses CUE source declaring a top-level `section` struct and
// returns the resulting registry. Sections and fields keep their
// declaration order.
func Compile(filename string, src []byte) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	sectionsVal := v.LookupPath(cue.ParsePath("section"))
	if !sectionsVal.Exists() {
		return nil, &CompileError{Field: "section", Message: "no sections declared", Pos: v.Pos()}
	}

	iter, err := sectionsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	reg := newRegistry()
	for iter.Next() {
		sec, err := compileSection(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		reg.add(sec)
	}
	return reg, nil
}

// compileSection converts one `section: <key>: {...}` value.
func compileSection(key string, v cue.Value) (*Section, error) {
	attrs, err := regularFields(v)
	if err != nil {
		return nil, err
	}

	sec := &Section{Key: key}
	if sec.Label, err = stringAttr(attrs, "label"); err != nil {
		return nil, err
	}
	if sec.Description, err = stringAttr(attrs, "description"); err != nil {
		return nil, err
	}
	if sec.Keyed, err = boolAttr(attrs, "keyed"); err != nil {
		return nil, err
	}

	fieldsVal, ok := attrs["fields"]
	if !ok {
		return nil, &CompileError{Field: key + ".fields", Message: "at least one field is required", Pos: v.Pos()}
	}
	sec.Fields, err = compileFields(key, fieldsVal, true)
	if err != nil {
		return nil, err
	}
	if len(sec.Fields) == 0 {
		return nil, &CompileError{Field: key + ".fields", Message: "at least one field is required", Pos: v.Pos()}
	}

	def := content.Value(content.Object{})
	if dv, ok := attrs["default"]; ok {
		def, err = exportValue(key+".default", dv)
		if err != nil {
			return nil, err
		}
		if _, isObj := def.(content.Object); !isObj {
			return nil, &CompileError{Field: key + ".default", Message: "section default must be a struct", Pos: dv.Pos()}
		}
	}
	sec.Default = foldFieldDefaults(sec, def.(content.Object))

	return sec, nil
}

// compileFields converts a struct of field declarations. Nested arrays are
// rejected: array items hold scalar fields only.
func compileFields(path string, v cue.Value, allowArray bool) ([]Field, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []Field
	for iter.Next() {
		f, err := compileField(path+"."+iter.Label(), iter.Label(), iter.Value(), allowArray)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func compileField(path, name string, v cue.Value, allowArray bool) (Field, error) {
	attrs, err := regularFields(v)
	if err != nil {
		return nil, err
	}

	typeName, err := stringAttr(attrs, "type")
	if err != nil {
		return nil, err
	}

	common := Common{Name: name}
	if common.Label, err = stringAttr(attrs, "label"); err != nil {
		return nil, err
	}
	if common.Label == "" {
		common.Label = name
	}
	if common.Help, err = stringAttr(attrs, "help"); err != nil {
		return nil, err
	}
	if common.Required, err = boolAttr(attrs, "required"); err != nil {
		return nil, err
	}
	if dv, ok := attrs["default"]; ok {
		if common.Default, err = exportValue(path+".default", dv); err != nil {
			return nil, err
		}
	}

	switch Kind(typeName) {
	case KindText:
		f := &TextField{Common: common}
		if f.MaxLength, err = intAttr(attrs, "maxLength"); err != nil {
			return nil, err
		}
		if f.Multiline, err = boolAttr(attrs, "multiline"); err != nil {
			return nil, err
		}
		if f.Placeholder, err = stringAttr(attrs, "placeholder"); err != nil {
			return nil, err
		}
		return f, nil
	case KindRichText:
		f := &RichTextField{Common: common}
		if f.MaxLength, err = intAttr(attrs, "maxLength"); err != nil {
			return nil, err
		}
		return f, nil
	case KindImage:
		return &ImageField{Common: common}, nil
	case KindIcon:
		return &IconField{Common: common}, nil
	case KindColor:
		return &ColorField{Common: common}, nil
	case KindLink:
		f := &LinkField{Common: common}
		if f.MaxLength, err = intAttr(attrs, "maxLength"); err != nil {
			return nil, err
		}
		return f, nil
	case KindNumber:
		f := &NumberField{Common: common}
		if f.Min, err = floatAttr(attrs, "min"); err != nil {
			return nil, err
		}
		if f.Max, err = floatAttr(attrs, "max"); err != nil {
			return nil, err
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return nil, &CompileError{Field: path, Message: "min is greater than max", Pos: v.Pos()}
		}
		return f, nil
	case KindSelect:
		f := &SelectField{Common: common}
		if f.Options, err = stringListAttr(attrs, "options"); err != nil {
			return nil, err
		}
		if len(f.Options) == 0 {
			return nil, &CompileError{Field: path, Message: "select fields need at least one option", Pos: v.Pos()}
		}
		return f, nil
	case KindArray:
		if !allowArray {
			return nil, &CompileError{Field: path, Message: "arrays cannot be nested inside array items", Pos: v.Pos()}
		}
		f := &ArrayField{Common: common}
		if f.MaxItems, err = intAttr(attrs, "maxItems"); err != nil {
			return nil, err
		}
		itemVal, ok := attrs["item"]
		if !ok {
			return nil, &CompileError{Field: path, Message: "array fields need an item schema", Pos: v.Pos()}
		}
		if f.Item, err = compileFields(path, itemVal, false); err != nil {
			return nil, err
		}
		if len(f.Item) == 0 {
			return nil, &CompileError{Field: path, Message: "array item schema is empty", Pos: v.Pos()}
		}
		return f, nil
	default:
		return nil, &CompileError{Field: path, Message: fmt.Sprintf("unknown field type %q", typeName), Pos: v.Pos()}
	}
}

// foldFieldDefaults fills keys missing from the section default with the
// field-level defaults. For keyed sections the field defaults apply to
// every declared entry.
func foldFieldDefaults(sec *Section, def content.Object) content.Object {
	entry := sec.EntryDefaults()
	if len(entry) == 0 {
		return def
	}
	if !sec.Keyed {
		return content.Merge(entry, def).(content.Object)
	}
	out := make(content.Object, len(def))
	for k, v := range def {
		out[k] = content.Merge(entry, v)
	}
	return out
}

// EntryDefaults collects the field-level defaults of the section.
func (s *Section) EntryDefaults() content.Object {
	out := content.Object{}
	for _, f := range s.Fields {
		if d := f.Meta().Default; d != nil {
			out[f.Meta().Name] = content.Clone(d)
		}
	}
	return out
}

// regularFields indexes the non-optional fields of a struct. Optional
// fields inherited from the #Scalar/#Array definitions are skipped, so
// presence in the map means the declaration set the attribute.
func regularFields(v cue.Value) (map[string]cue.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := make(map[string]cue.Value)
	for iter.Next() {
		out[iter.Label()] = iter.Value()
	}
	return out, nil
}

func stringAttr(attrs map[string]cue.Value, name string) (string, error) {
	v, ok := attrs[name]
	if !ok {
		return "", nil
	}
	s, err := v.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func boolAttr(attrs map[string]cue.Value, name string) (bool, error) {
	v, ok := attrs[name]
	if !ok {
		return false, nil
	}
	b, err := v.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func intAttr(attrs map[string]cue.Value, name string) (int, error) {
	v, ok := attrs[name]
	if !ok {
		return 0, nil
	}
	n, err := v.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

func floatAttr(attrs map[string]cue.Value, name string) (*float64, error) {
	v, ok := attrs[name]
	if !ok {
		return nil, nil
	}
	f, err := v.Float64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &f, nil
}

func stringListAttr(attrs map[string]cue.Value, name string) ([]string, error) {
	v, ok := attrs[name]
	if !ok {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// exportValue converts a concrete CUE value to content.Value via JSON.
func exportValue(path string, v cue.Value) (content.Value, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
	}
	cv, err := content.ParseJSON(data)
	if err != nil {
		return nil, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
	}
	return cv, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
