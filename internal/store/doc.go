// Package store is the SQLite-backed content store adapter.
//
// It owns the mapping between engine values and rows:
//   - content: one row per (section_key, content_key) with draft and
//     schedule flags
//   - content_revisions: append-only snapshots of replaced content,
//     deleted only by cascade with their item
//   - media, themes, user_roles: supporting tables for uploads, palettes
//     and editor authorization
//
// # Revision capture
//
// UpsertField reads the existing row, records its content as a revision
// and only then updates it, inside one transaction. A revision therefore
// always holds the value that was live immediately before the write that
// created it.
//
// # Visibility
//
// ReadPublished is the only query the public site uses. It selects rows
// with is_draft = 0 and scheduled_for unset or not after the given
// instant; scheduled rows become visible without any further write.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Every failure leaves the package as a *Error; lookups that match nothing
// wrap ErrNotFound.
package store
