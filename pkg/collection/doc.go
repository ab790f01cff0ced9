// Package collection holds the authoritative in-memory copy of fetched entities.
//
// A [Store] keeps records in display order, keyed by id, and enforces that no
// two entries ever share an id: [Store.AppendUnique] drops incoming records
// whose id is already present (first write wins) and reports each drop through
// the logger and the OnDuplicate hook. [Store.Upsert] replaces in place.
//
// Records are values. A record type T implements [Record] by returning modified
// copies from WithField/WithoutField, so callers can never change a stored
// record except through Store methods.
//
// Board views are derived with [ByBucket], which groups from scratch on every
// call rather than patching column slices, so a record that changed bucket can
// never show up in two columns.
package collection
