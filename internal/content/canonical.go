package content

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DomainContent separates content hashes from any other hash we compute.
const DomainContent = "sitecms/content/v1"

// Canonical produces the canonical JSON encoding of v. This is the only
// form written to the store, so equal content always compares equal as
// bytes.
func Canonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the hex SHA-256 of the canonical encoding, domain separated.
func Hash(v Value) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainContent))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal reports whether a and b have the same canonical encoding.
func Equal(a, b Value) bool {
	ab, err := Canonical(a)
	if err != nil {
		return false
	}
	bb, err := Canonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		s, err := canonicalString(string(val))
		if err != nil {
			return err
		}
		buf.Write(s)
	case Number:
		n, err := formatNumber(float64(val))
		if err != nil {
			return err
		}
		buf.Write(n)
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := canonicalString(k)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported content type for canonical JSON: %T", v)
	}
	return nil
}

// canonicalString NFC-normalizes s and encodes it without HTML escaping.
// U+2028 and U+2029 are left literal as RFC 8785 requires.
func canonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	if !bytes.Contains(out, []byte(`\u` + "202")) {
		return out, nil
	}
	return []byte(unescapeLineSeparators(string(out))), nil
}

// Escaped and literal forms of LINE SEPARATOR and PARAGRAPH SEPARATOR.
var (
	escLineSep = `\u` + "2028"
	escParaSep = `\u` + "2029"
	lineSep    = string(rune(0x2028))
	paraSep    = string(rune(0x2029))
)

// unescapeLineSeparators turns the encoder's escapes for U+2028 and U+2029
// back into literal characters, leaving an escaped backslash followed by
// the text "u2028" untouched.
func unescapeLineSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch {
			case s[i+1] == '\\':
				b.WriteString(`\\`)
				i++
				continue
			case strings.HasPrefix(s[i:], escLineSep):
				b.WriteString(lineSep)
				i += len(escLineSep) - 1
				continue
			case strings.HasPrefix(s[i:], escParaSep):
				b.WriteString(paraSep)
				i += len(escParaSep) - 1
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
