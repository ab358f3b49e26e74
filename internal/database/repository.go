package database

import (
	"context"
)

// LedgerReader provides read-only access to the attendance ledger
type LedgerReader interface {
	// Records returns every record in insertion order
	Records(ctx context.Context) ([]AttendanceRecord, error)
	// LastRecord returns the most recent record for the exact name, nil if there is none
	LastRecord(ctx context.Context, name string) (*AttendanceRecord, error)
}

// LedgerWriter appends attendance records
type LedgerWriter interface {
	// Append persists one record after all existing ones
	Append(ctx context.Context, record AttendanceRecord) error
}

// Ledger is a full attendance ledger backend
type Ledger interface {
	LedgerReader
	LedgerWriter
	// Close releases the backend's resources
	Close() error
}

// ReferenceCache stores reference embeddings keyed by name and image content
// so unchanged reference files are not re-encoded on every reload
type ReferenceCache interface {
	// GetReference returns the cached embedding, nil if missing or stale
	GetReference(ctx context.Context, name, contentHash string) (*StoredReference, error)
	// SaveReference inserts or replaces the embedding for the name
	SaveReference(ctx context.Context, ref StoredReference) error
	// DeleteReference removes the cached embedding for the name
	DeleteReference(ctx context.Context, name string) error
}
