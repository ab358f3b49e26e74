package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// LedgerRepository stores attendance records in the attendance table.
// Row ids carry the insertion order.
type LedgerRepository struct {
	pool *Pool
}

// NewLedgerRepository creates a ledger on top of the pool.
func NewLedgerRepository(pool *Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Records returns every record in insertion order.
func (r *LedgerRepository) Records(ctx context.Context) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, recorded_at, status
		FROM attendance
		ORDER BY id
	`)
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
func (r *LedgerRepository) LastRecord(ctx context.Context, name string) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, recorded_at, status
		FROM attendance
		WHERE name = $1
		ORDER BY id DESC
		LIMIT 1
	`, name).Scan(&rec.ID, &rec.Name, &rec.Time, &status)
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
func (r *LedgerRepository) Append(ctx context.Context, record database.AttendanceRecord) error {
	status := record.Status
	if status == "" {
		status = database.StatusPresent
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance (name, recorded_at, status)
		VALUES ($1, $2, $3)
	`, record.Name, record.Time, string(status))
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// Close is a no-op, the shared pool is closed by CloseGlobalPool.
func (r *LedgerRepository) Close() error {
	return nil
}
