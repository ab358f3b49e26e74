package database

import "time"

// AttendanceStatus is the status column of the ledger.
type AttendanceStatus string

// StatusPresent is the only status the engine records.
const StatusPresent AttendanceStatus = "Present"

// AttendanceRecord is one row of the attendance ledger.
type AttendanceRecord struct {
	ID     int64            `json:"id,omitempty"` // backend row id, zero for the CSV ledger
	Name   string           `json:"name"`
	Time   time.Time        `json:"time"`
	Status AttendanceStatus `json:"status"`
}

// SameDay reports whether the record was taken on the same local calendar day as t.
func (r AttendanceRecord) SameDay(t time.Time) bool {
	y1, m1, d1 := r.Time.In(time.Local).Date()
	y2, m2, d2 := t.In(time.Local).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// StoredReference is a cached face embedding of one reference image.
type StoredReference struct {
	Name        string    `json:"name"`
	ContentHash string    `json:"content_hash"` // sha256 of the image file, hex
	Embedding   []float32 `json:"embedding"`
	Model       string    `json:"model,omitempty"`
	Dim         int       `json:"dim"`
	UpdatedAt   time.Time `json:"updated_at"`
}
