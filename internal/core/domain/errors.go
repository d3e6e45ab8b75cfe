package domain

import "errors"

var (
	// ErrDuplicateAsset indicates a scanner identity that resolves to an
	// already-tracked physical asset; the new identity must not be inserted.
	ErrDuplicateAsset = errors.New("asset identity duplicates a tracked asset")

	// ErrInvariant indicates an internal consistency violation in the store
	// (e.g. a row reported inserted but absent on lookup). Callers must
	// abort the ingestion cycle.
	ErrInvariant = errors.New("store invariant violation")
)
