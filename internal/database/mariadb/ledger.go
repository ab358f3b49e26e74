package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const createAttendanceTable = `
	CREATE TABLE IF NOT EXISTS attendance (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		recorded_at DATETIME(6) NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'Present',
		INDEX idx_attendance_name_id (name, id)
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin
`

// Ledger stores attendance records in the attendance table.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a ledger that owns the pool.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// EnsureSchema creates the attendance table when missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.db.ExecContext(ctx, createAttendanceTable); err != nil {
		return fmt.Errorf("create attendance table: %w", err)
	}
	return nil
}

// Records returns every record in insertion order.
func (l *Ledger) Records(ctx context.Context) ([]database.AttendanceRecord, error) {
	rows, err := l.pool.db.QueryContext(ctx, `SELECT id, name, recorded_at, status FROM attendance ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Time, &status); err != nil {
			return nil, fmt.Errorf("scan attendance row: %w", err)
		}
		rec.Status = database.AttendanceStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

// LastRecord returns the newest record for the name, nil if there is none.
func (l *Ledger) LastRecord(ctx context.Context, name string) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var status string
	err := l.pool.db.QueryRowContext(ctx,
		`SELECT id, name, recorded_at, status FROM attendance WHERE name = ? ORDER BY id DESC LIMIT 1`, name,
	).Scan(&rec.ID, &rec.Name, &rec.Time, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last attendance for %s: %w", name, err)
	}
	rec.Status = database.AttendanceStatus(status)
	return &rec, nil
}

// Append inserts the record.
func (l *Ledger) Append(ctx context.Context, record database.AttendanceRecord) error {
	status := record.Status
	if status == "" {
		status = database.StatusPresent
	}
	_, err := l.pool.db.ExecContext(ctx,
		`INSERT INTO attendance (name, recorded_at, status) VALUES (?, ?, ?)`,
		record.Name, record.Time, string(status))
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (l *Ledger) Close() error {
	return l.pool.Close()
}
