//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestLedgerRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewLedgerRepository(pool)
	day := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	t.Run("EmptyLedger", func(t *testing.T) {
		records, err := repo.Records(ctx)
		if err != nil {
			t.Fatalf("Failed to read records: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("Expected empty ledger, got %d records", len(records))
		}

		last, err := repo.LastRecord(ctx, "alice")
		if err != nil {
			t.Fatalf("Failed to read last record: %v", err)
		}
		if last != nil {
			t.Errorf("Expected nil, got %+v", last)
		}
	})

	t.Run("AppendKeepsInsertionOrder", func(t *testing.T) {
		for i, name := range []string{"bob", "alice", "bob"} {
			rec := database.AttendanceRecord{Name: name, Time: day.Add(time.Duration(i) * time.Minute)}
			if err := repo.Append(ctx, rec); err != nil {
				t.Fatalf("Failed to append: %v", err)
			}
		}

		records, err := repo.Records(ctx)
		if err != nil {
			t.Fatalf("Failed to read records: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(records))
		}
		want := []string{"bob", "alice", "bob"}
		for i, rec := range records {
			if rec.Name != want[i] {
				t.Errorf("Record %d: expected %s, got %s", i, want[i], rec.Name)
			}
			if rec.Status != database.StatusPresent {
				t.Errorf("Record %d: expected status Present, got %s", i, rec.Status)
			}
		}
	})

	t.Run("LastRecord", func(t *testing.T) {
		last, err := repo.LastRecord(ctx, "bob")
		if err != nil {
			t.Fatalf("Failed to read last record: %v", err)
		}
		if last == nil {
			t.Fatal("Expected record, got nil")
		}
		if !last.Time.Equal(day.Add(2 * time.Minute)) {
			t.Errorf("Expected newest bob record, got %v", last.Time)
		}
	})
}

func TestReferenceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewReferenceRepository(pool)

	embedding := make([]float32, 128)
	for i := range embedding {
		embedding[i] = float32(i) / 128.0
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		err := repo.SaveReference(ctx, database.StoredReference{
			Name:        "alice",
			ContentHash: "aaaa",
			Embedding:   embedding,
			Model:       "dlib",
		})
		if err != nil {
			t.Fatalf("Failed to save reference: %v", err)
		}

		got, err := repo.GetReference(ctx, "alice", "aaaa")
		if err != nil {
			t.Fatalf("Failed to get reference: %v", err)
		}
		if got == nil {
			t.Fatal("Expected reference, got nil")
		}
		if got.Dim != 128 || len(got.Embedding) != 128 {
			t.Errorf("Expected 128 dimensions, got dim=%d len=%d", got.Dim, len(got.Embedding))
		}
	})

	t.Run("StaleHashMisses", func(t *testing.T) {
		got, err := repo.GetReference(ctx, "alice", "bbbb")
		if err != nil {
			t.Fatalf("Failed to get reference: %v", err)
		}
		if got != nil {
			t.Error("Expected nil for a changed image, got a cached reference")
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		err := repo.SaveReference(ctx, database.StoredReference{Name: "alice", ContentHash: "bbbb", Embedding: embedding})
		if err != nil {
			t.Fatalf("Failed to overwrite reference: %v", err)
		}
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1, got %d", count)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteReference(ctx, "alice"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		got, err := repo.GetReference(ctx, "alice", "bbbb")
		if err != nil {
			t.Fatalf("Failed to get reference: %v", err)
		}
		if got != nil {
			t.Error("Expected nil after delete")
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_attendance.sql",
		"002_reference_embeddings.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	// Running again applies nothing new.
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
}
