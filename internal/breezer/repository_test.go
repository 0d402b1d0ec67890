package breezer

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			model_class     TEXT NOT NULL DEFAULT 'standard',
			has_humidifier  INTEGER NOT NULL DEFAULT 0,
			first_seen      TEXT NOT NULL
		);
		CREATE TABLE diagnostics (
			id               INTEGER PRIMARY KEY CHECK (id = 1),
			successful_polls INTEGER NOT NULL DEFAULT 0,
			failed_polls     INTEGER NOT NULL DEFAULT 0,
			retries          INTEGER NOT NULL DEFAULT 0,
			reauths          INTEGER NOT NULL DEFAULT 0,
			last_error_class TEXT NOT NULL DEFAULT ''
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestRepositoryUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	firstSeen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	device := Device{
		ID:            "42",
		Name:          "Bedroom",
		Model:         ModelBabycareForever,
		HasHumidifier: true,
		FirstSeen:     firstSeen,
	}

	if err := repo.Upsert(ctx, device); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "42")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Bedroom" || got.Model != ModelBabycareForever || !got.HasHumidifier {
		t.Errorf("GetByID() = %+v, want original device", got)
	}
	if !got.FirstSeen.Equal(firstSeen) {
		t.Errorf("FirstSeen = %v, want %v", got.FirstSeen, firstSeen)
	}

	// Re-upsert with a new name: first_seen must be preserved.
	device.Name = "Nursery"
	device.FirstSeen = firstSeen.Add(time.Hour)
	if err := repo.Upsert(ctx, device); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	got, err = repo.GetByID(ctx, "42")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Nursery" {
		t.Errorf("Name = %q, want Nursery after upsert", got.Name)
	}
	if !got.FirstSeen.Equal(firstSeen) {
		t.Errorf("FirstSeen = %v, want original %v preserved", got.FirstSeen, firstSeen)
	}
}

func TestRepositoryGetMissing(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetByID(context.Background(), "nope")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	now := time.Now().UTC().Truncate(time.Second)
	for _, d := range []Device{
		{ID: "2", Name: "Office", Model: ModelStandard, FirstSeen: now},
		{ID: "1", Name: "Bedroom", Model: ModelStandard, FirstSeen: now},
	} {
		if err := repo.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert(%s) error = %v", d.ID, err)
		}
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len = %d, want 2", len(devices))
	}
	if devices[0].Name != "Bedroom" || devices[1].Name != "Office" {
		t.Errorf("List() order = %s, %s, want name order", devices[0].Name, devices[1].Name)
	}
}

func TestRepositoryDiagnosticsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	// Nothing saved yet: zero counters, no error.
	diag, err := repo.LoadDiagnostics(ctx)
	if err != nil {
		t.Fatalf("LoadDiagnostics() error = %v", err)
	}
	if diag != (Diagnostics{}) {
		t.Errorf("LoadDiagnostics() = %+v, want zero counters", diag)
	}

	want := Diagnostics{
		SuccessfulPolls: 120,
		FailedPolls:     3,
		Retries:         7,
		Reauths:         1,
		LastErrorClass:  "api",
	}
	if err := repo.SaveDiagnostics(ctx, want); err != nil {
		t.Fatalf("SaveDiagnostics() error = %v", err)
	}

	got, err := repo.LoadDiagnostics(ctx)
	if err != nil {
		t.Fatalf("LoadDiagnostics() error = %v", err)
	}
	if got != want {
		t.Errorf("LoadDiagnostics() = %+v, want %+v", got, want)
	}

	// Second save overwrites the single row.
	want.SuccessfulPolls = 121
	if err := repo.SaveDiagnostics(ctx, want); err != nil {
		t.Fatalf("second SaveDiagnostics() error = %v", err)
	}
	got, _ = repo.LoadDiagnostics(ctx)
	if got.SuccessfulPolls != 121 {
		t.Errorf("SuccessfulPolls = %d, want 121", got.SuccessfulPolls)
	}
}
