// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Matching constants
const (
	// DefaultDistanceThreshold is the maximum face distance (exclusive) accepted as a match.
	// 0.6 is the dlib reference tolerance for 128-d Euclidean descriptors.
	DefaultDistanceThreshold = 0.6

	// DefaultHashThreshold is the Hamming distance (exclusive, in bits) below which
	// two perceptual hashes are considered the same face.
	DefaultHashThreshold = 8

	// DefaultComparisonTimeout bounds a single call to the face-comparison backend
	DefaultComparisonTimeout = 10 * time.Second

	// UnknownName is reported when no reference entry matches a probe
	UnknownName = "Unknown"
)

// Ledger constants
const (
	// LedgerTimeFormat is the timestamp layout stored in the attendance ledger
	LedgerTimeFormat = "2006-01-02 15:04:05"

	// DefaultLedgerWriteRetries is the number of retries for a failed ledger append
	DefaultLedgerWriteRetries = 3

	// DefaultLedgerLimit is the default number of rows returned when viewing the ledger
	DefaultLedgerLimit = 500
)

// Identity store constants
const (
	// MaxNameLength is the maximum length of an identity name in bytes
	MaxNameLength = 128

	// ReloadDebounce is how long the store watcher waits for a burst of
	// filesystem events to settle before reloading
	ReloadDebounce = 500 * time.Millisecond
)

// Upload constants
const (
	// MaxUploadSize is the maximum size of a multipart upload (32 MB)
	MaxUploadSize = 32 << 20

	// MaxFrameSize is the maximum size of a single live-camera frame (8 MB)
	MaxFrameSize = 8 << 20
)

// Index constants
const (
	// HNSWSearchCandidates is the number of nearest candidates requested from the
	// HNSW index before exact reranking
	HNSWSearchCandidates = 10
)
