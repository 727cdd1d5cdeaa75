package domain

import "errors"

var (
	// ErrPermissionDenied is returned when the login authority rejects the
	// presented material.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnavailable marks internal or transient failures (authority
	// unreachable, storage timeout). Callers may retry.
	ErrUnavailable = errors.New("service unavailable")

	// ErrRecordVanished means a live handle points at a missing record.
	// It indicates a broken locking invariant, never a normal condition.
	ErrRecordVanished = errors.New("record vanished")

	// ErrCorruptRecord is returned when a stored payload cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrNoSuchIdentity is returned when no record exists for a requested id.
	ErrNoSuchIdentity = errors.New("identity does not exist")

	// ErrRecordExists is returned by RecordStore.Create for an id that is
	// already in use.
	ErrRecordExists = errors.New("record already exists")

	// ErrSaltSpaceExhausted is returned when every salt attempt for a
	// payload collided with a different payload.
	ErrSaltSpaceExhausted = errors.New("salt space exhausted")
)
