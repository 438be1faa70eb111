package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sitecms/internal/content"
)

func TestDefault_CompilesEmbeddedSections(t *testing.T) {
	reg := Default()

	var keys []string
	for _, s := range reg.Sections() {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"hero", "about", "services", "testimonials", "contact", "service_areas", "cta"}, keys)
}

func TestDefault_HeroSlides(t *testing.T) {
	hero, ok := Default().Lookup("hero")
	require.True(t, ok)

	slides, ok := hero.Field("slides")
	require.True(t, ok)
	arr, ok := slides.(*ArrayField)
	require.True(t, ok, "slides must compile to an ArrayField, got %T", slides)
	assert.True(t, arr.Required)
	assert.Equal(t, 5, arr.MaxItems)

	title, ok := arr.ItemField("title")
	require.True(t, ok)
	text, ok := title.(*TextField)
	require.True(t, ok)
	assert.Equal(t, 80, text.MaxLength)
	assert.True(t, text.Required)

	def, ok := content.Lookup(hero.Default, "slides")
	require.True(t, ok)
	assert.Len(t, def.(content.Array), 2)
}

func TestDefault_FieldVariants(t *testing.T) {
	reg := Default()

	about, _ := reg.Lookup("about")
	years, _ := about.Field("years_experience")
	num, ok := years.(*NumberField)
	require.True(t, ok)
	require.NotNil(t, num.Min)
	require.NotNil(t, num.Max)
	assert.Equal(t, 0.0, *num.Min)
	assert.Equal(t, 100.0, *num.Max)

	body, _ := about.Field("body")
	assert.Equal(t, KindRichText, body.Kind())

	cta, _ := reg.Lookup("cta")
	bg, _ := cta.Field("background")
	assert.IsType(t, &ColorField{}, bg)
	link, _ := cta.Field("button_link")
	assert.IsType(t, &LinkField{}, link)

	areas, _ := reg.Lookup("service_areas")
	assert.True(t, areas.Keyed)
	prio, _ := areas.Field("priority")
	sel, ok := prio.(*SelectField)
	require.True(t, ok)
	assert.Equal(t, []string{"primary", "secondary"}, sel.Options)
}

func TestDefault_FieldDefaultsFoldIntoSectionDefault(t *testing.T) {
	reg := Default()

	testimonials, _ := reg.Lookup("testimonials")
	heading, ok := content.Lookup(testimonials.Default, "heading")
	require.True(t, ok)
	assert.Equal(t, content.String("What our clients say"), heading)

	cta, _ := reg.Lookup("cta")
	bg, ok := content.Lookup(cta.Default, "background")
	require.True(t, ok)
	assert.Equal(t, content.String("#1f3a5f"), bg)

	// Keyed sections apply field defaults per entry without overriding
	// what the entry declares.
	areas, _ := reg.Lookup("service_areas")
	p, _ := content.Lookup(areas.Default, "springfield", "priority")
	assert.Equal(t, content.String("primary"), p)
	p, _ = content.Lookup(areas.Default, "shelbyville", "priority")
	assert.Equal(t, content.String("secondary"), p)
}

func TestLookup_UnknownSection(t *testing.T) {
	_, ok := Default().Lookup("pricing")
	assert.False(t, ok)
}

func TestDefaults_ReturnsCopies(t *testing.T) {
	reg := Default()
	d := reg.Defaults()
	d["contact"].(content.Object)["phone"] = content.String("changed")

	again := reg.Defaults()
	phone, _ := content.Lookup(again, "contact", "phone")
	assert.Equal(t, content.String("(555) 010-0100"), phone)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown type",
			src:  `section: s: {label: "S", fields: f: {type: "video", label: "F"}}`,
			want: `unknown field type "video"`,
		},
		{
			name: "no fields",
			src:  `section: s: {label: "S", fields: {}}`,
			want: "at least one field is required",
		},
		{
			name: "nested array",
			src: `section: s: {label: "S", fields: a: {type: "array", label: "A", item: {
				b: {type: "array", label: "B", item: c: {type: "text", label: "C"}}
			}}}`,
			want: "arrays cannot be nested",
		},
		{
			name: "select without options",
			src:  `section: s: {label: "S", fields: f: {type: "select", label: "F"}}`,
			want: "at least one option",
		},
		{
			name: "min above max",
			src:  `section: s: {label: "S", fields: f: {type: "number", label: "F", min: 5, max: 1}}`,
			want: "min is greater than max",
		},
		{
			name: "no section struct",
			src:  `other: 1`,
			want: "no sections declared",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("test.cue", []byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompile_SyntaxErrorHasPosition(t *testing.T) {
	_, err := Compile("broken.cue", []byte("section: {\n  hero: \n"))
	require.Error(t, err)

	var ce *CompileError
	if assert.ErrorAs(t, err, &ce) {
		assert.True(t, ce.Pos.IsValid())
	}
}

func TestCompile_MinimalSection(t *testing.T) {
	reg, err := Compile("min.cue", []byte(`
		section: faq: {
			label: "FAQ"
			fields: question: {type: "text", label: "Question", required: true}
			default: question: "Do you offer financing?"
		}
	`))
	require.NoError(t, err)

	faq, ok := reg.Lookup("faq")
	require.True(t, ok)
	assert.Equal(t, "FAQ", faq.Label)
	assert.False(t, faq.Keyed)
	assert.Equal(t, content.Object{"question": content.String("Do you offer financing?")}, faq.Default)
}
