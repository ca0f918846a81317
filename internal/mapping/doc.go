/*
Package mapping binds directory entries to typed, validated domain objects.

# Architecture Overview

  - Entry: a DN plus a case-insensitive attribute multimap of text or binary values
  - Codec: Decode, Encode and Diff between raw backend entries and Entry values
  - Object: one entry bound to a DN, lazily loaded, saved by difference
  - Collection: the entries of one type below a base DN, searched by filter
  - Registry: data-driven EntryType declarations keyed by name

# Backends

All directory access goes through the Backend interface. A Backend is a single
logical connection and is not assumed safe for concurrent requests; callers
serialise access or use one backend per goroutine. Every call is bounded by
Options.Timeout and a deadline surfaces as a connection error with Timeout set.

Backends implementing VersionedBackend give Object.Save optimistic concurrency:
the modify only applies if the entry is unchanged since it was loaded, otherwise
Save fails with KindConflict. Other backends are last-write-wins.

# Error Handling

Every public operation returns *Error values classified by ErrorKind. Local
validation runs before any write. Writes are never retried; IsRetryable reports
whether a failed read may be reissued.
*/
package mapping
