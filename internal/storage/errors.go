package storage

import "errors"

var (
	// ErrNotFound is returned for unknown keys, purged blobs and deleted documents.
	ErrNotFound = errors.New("storage: not found")
	// ErrWrite wraps I/O failures while persisting a blob or its metadata.
	ErrWrite = errors.New("storage: write failed")
	// ErrTierTransition is returned when a document would move to a warmer tier.
	ErrTierTransition = errors.New("storage: tier transition not allowed")
	// ErrImmutableKey is returned when a metadata update tries to change the storage key.
	ErrImmutableKey = errors.New("storage: storage key is immutable")
	// ErrSignatureExpired is returned for signed URLs at or past their expiry.
	ErrSignatureExpired = errors.New("storage: signed url expired")
	// ErrInvalidSignature is returned for malformed or tampered signed URLs.
	ErrInvalidSignature = errors.New("storage: invalid signature")
)
