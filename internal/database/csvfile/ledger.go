// Package csvfile implements the attendance ledger as a CSV file with the
// columns Name,Time,Status.
package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var header = []string{"Name", "Time", "Status"}

func init() {
	database.RegisterLedgerBackend(config.BackendCSV, func(ctx context.Context, cfg *config.Config) (database.Ledger, error) {
		return New(cfg.Ledger.Path), nil
	})
}

// Ledger is a CSV attendance ledger. Every append reads the whole file and
// replaces it atomically, so readers never observe a partial row.
// The mutex serializes access within one process only.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// New returns a ledger stored at path. The file is created on first append.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Records returns every record in insertion order. A missing file is an empty ledger.
func (l *Ledger) Records(ctx context.Context) ([]database.AttendanceRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

// LastRecord returns the most recent record for the name.
func (l *Ledger) LastRecord(ctx context.Context, name string) (*database.AttendanceRecord, error) {
	records, err := l.Records(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Name == name {
			return &records[i], nil
		}
	}
	return nil, nil
}

// Append adds a record after the existing ones.
func (l *Ledger) Append(ctx context.Context, rec database.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.read()
	if err != nil {
		return err
	}
	if rec.Status == "" {
		rec.Status = database.StatusPresent
	}
	return l.write(append(records, rec))
}

// Close is a no-op, the file is not held open between calls.
func (l *Ledger) Close() error {
	return nil
}

func (l *Ledger) read() ([]database.AttendanceRecord, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records []database.AttendanceRecord
	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ledger %s: %w", l.path, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), header[0]) {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("ledger %s line %d: %w", l.path, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// parseRow accepts Name,Time[,Status]; rows without a status are Present.
func parseRow(row []string) (database.AttendanceRecord, error) {
	if len(row) < 2 {
		return database.AttendanceRecord{}, fmt.Errorf("expected at least 2 columns, got %d", len(row))
	}
	t, err := time.ParseInLocation(constants.LedgerTimeFormat, strings.TrimSpace(row[1]), time.Local)
	if err != nil {
		return database.AttendanceRecord{}, fmt.Errorf("invalid time %q: %w", row[1], err)
	}
	status := database.StatusPresent
	if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
		status = database.AttendanceStatus(strings.TrimSpace(row[2]))
	}
	return database.AttendanceRecord{Name: row[0], Time: t, Status: status}, nil
}

func (l *Ledger) write(records []database.AttendanceRecord) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}
	for _, rec := range records {
		row := []string{rec.Name, rec.Time.In(time.Local).Format(constants.LedgerTimeFormat), string(rec.Status)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("encoding ledger: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	if err := renameio.WriteFile(l.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing ledger %s: %w", l.path, err)
	}
	return nil
}
