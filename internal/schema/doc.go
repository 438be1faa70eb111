// Package schema is the registry of editable content sections.
//
// Sections are declared in CUE (sections.cue, embedded at build time) and
// compiled into closed Go variants, one type per field kind. The string
// type tag only exists at the CUE boundary; the validator and the form
// metadata switch on the concrete Field type.
//
// A section is either a singleton (one "default" content row plus optional
// per-field rows) or Keyed, in which case each content key is an entry of
// the collection (for example a region slug).
package schema
