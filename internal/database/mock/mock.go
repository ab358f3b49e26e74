// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockLedger is an in-memory implementation of database.Ledger
type MockLedger struct {
	mu      sync.RWMutex
	records []database.AttendanceRecord
	appends int

	// Error injection
	RecordsError    error
	LastRecordError error
	AppendError     error
	// AppendFailures limits AppendError to the first N appends, 0 fails every append
	AppendFailures int
}

// NewMockLedger creates a new mock ledger
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

// AddRecord seeds a record without going through Append
func (m *MockLedger) AddRecord(rec database.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

// AppendCalls returns the number of Append attempts, failed ones included
func (m *MockLedger) AppendCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appends
}

// Records returns every record in insertion order
func (m *MockLedger) Records(ctx context.Context) ([]database.AttendanceRecord, error) {
	if m.RecordsError != nil {
		return nil, m.RecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.AttendanceRecord(nil), m.records...), nil
}

// LastRecord returns the most recent record for the name
func (m *MockLedger) LastRecord(ctx context.Context, name string) (*database.AttendanceRecord, error) {
	if m.LastRecordError != nil {
		return nil, m.LastRecordError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Name == name {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// Append stores a record, failing while AppendFailures remain
func (m *MockLedger) Append(ctx context.Context, rec database.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.AppendError != nil && (m.AppendFailures == 0 || m.appends <= m.AppendFailures) {
		return m.AppendError
	}
	m.records = append(m.records, rec)
	return nil
}

// Close is a no-op
func (m *MockLedger) Close() error {
	return nil
}

// MockReferenceCache is an in-memory implementation of database.ReferenceCache
type MockReferenceCache struct {
	mu   sync.RWMutex
	refs map[string]database.StoredReference
	gets int

	// Error injection
	GetError    error
	SaveError   error
	DeleteError error
}

// NewMockReferenceCache creates a new mock reference cache
func NewMockReferenceCache() *MockReferenceCache {
	return &MockReferenceCache{refs: make(map[string]database.StoredReference)}
}

// Hits returns how many GetReference calls found a fresh entry
func (m *MockReferenceCache) Hits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets
}

// Len returns the number of cached references
func (m *MockReferenceCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refs)
}

// GetReference returns the cached reference when the content hash matches
func (m *MockReferenceCache) GetReference(ctx context.Context, name, contentHash string) (*database.StoredReference, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.refs[name]
	if !ok || ref.ContentHash != contentHash {
		return nil, nil
	}
	m.gets++
	return &ref, nil
}

// SaveReference inserts or replaces a reference
func (m *MockReferenceCache) SaveReference(ctx context.Context, ref database.StoredReference) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[ref.Name] = ref
	return nil
}

// DeleteReference removes a reference
func (m *MockReferenceCache) DeleteReference(ctx context.Context, name string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refs, name)
	return nil
}
