// Package kv is the durable client storage used for per-screen state such as
// saved filters and minimized rows.
//
// A [Store] maps string keys to opaque byte values. Three backends exist:
// [Mem] for tests and throwaway sessions, [File] for one file per key under a
// directory, and [SQLite] for a single database file. [GetJSON] and [SetJSON]
// encode values as JSON on top of any backend.
package kv
