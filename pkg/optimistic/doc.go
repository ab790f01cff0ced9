// Package optimistic applies local edits before the backend confirms them.
//
// [Coordinator.Mutate] runs in three steps:
//
//  1. Under the coordinator lock, snapshot every changed field of the record
//     and write the new values into the [collection.Store]. The UI sees the
//     change immediately.
//  2. Call the remote function without holding any lock.
//  3. On success, write the authoritative fields the backend returned. On
//     failure, restore the snapshot and return a [*MutationError].
//
// Overlapping edits of the same record are ordered, not merged. Each edit is
// an [Intent] with a sequence number. When an edit resolves, a field it
// touched is only written back to the store if no later edit of that field is
// still pending and none has already committed. If a later edit is pending,
// the resolved value becomes that edit's snapshot instead, so a slow failure
// of an early edit can never clobber a newer one, and a later failure still
// restores a value the backend actually holds.
//
// Backends often echo the whole record. An echoed field the resolving edit
// did not change is skipped while another pending edit touches it, since the
// echo may predate that edit. Field names nest with [collection.FieldSep]: an edit of
// "tasks/t1.done" and an echo of "tasks" overlap, while "tasks/t1.done" and
// "tasks/t2.done" do not.
//
// [Coordinator.Move] is the board variant: it reassigns the bucket field and
// repositions the record. The position is tracked like a field, so rollback
// restores both the bucket and the place within the source column.
package optimistic
