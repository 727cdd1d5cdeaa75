// Package domain defines the storage contracts of the srmgate identity subsystem.
//
// The identity subsystem never talks to a database directly. It is handed a
// RecordStore for the durable id → bytes table and, for garbage collection, a
// ReferenceIndex that knows which record ids are still referenced by the
// caller's own tables (requests, reservations, ...).
//
// # Interfaces
//
//   - RecordStore: create, read and delete immutable records by numeric id
//   - RecordLister: lists the ids of a record store kept outside SQL
//   - ReferenceIndex: reports record ids no longer referenced by durable state
//
// See the kgorm package for a GORM implementation of both, and the cas package
// for Redis and in-memory record stores.
package domain

import "context"

// RecordStore is the backing table for content-addressed records.
//
// Records are immutable: Create is only ever called for an id that has no
// row, and a row is only removed through Delete.
type RecordStore interface {
	// Create stores payload under id. Implementations return an error
	// wrapping ErrRecordExists when the id is already taken.
	Create(ctx context.Context, id int64, payload []byte) error

	// Read returns the payload stored under id, or nil without error when
	// no row exists.
	Read(ctx context.Context, id int64) ([]byte, error)

	// Delete removes the row for id. Deleting a missing row is not an error.
	Delete(ctx context.Context, id int64) error
}

// RecordLister enumerates the ids held by a record store that lives outside
// the database the reference index queries.
type RecordLister interface {
	RecordIDs(ctx context.Context) ([]int64, error)
}

// ReferenceIndex reports which records are no longer referenced by any
// durable state outside the identity subsystem.
type ReferenceIndex interface {
	UnreferencedIDs(ctx context.Context) ([]int64, error)
}

// ReferenceIndexFunc adapts a function to ReferenceIndex.
type ReferenceIndexFunc func(ctx context.Context) ([]int64, error)

func (f ReferenceIndexFunc) UnreferencedIDs(ctx context.Context) ([]int64, error) {
	return f(ctx)
}
