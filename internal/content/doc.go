// Package content defines the value model stored in content items and
// revisions.
//
// Values are a sealed set of JSON-shaped variants (Null, String, Number,
// Bool, Array, Object). Everything that crosses the store boundary is
// serialized with Canonical so that identical content always produces
// identical bytes and hashes:
//
//   - object keys sorted by UTF-16 code units (RFC 8785)
//   - strings NFC normalized, no HTML escaping
//   - numbers in shortest round-trip form, NaN and Inf rejected
//
// Merge implements the defaults-overlay rule shared by the public resolver
// and the admin preview: objects merge key by key, every other value is
// replaced wholesale.
package content
