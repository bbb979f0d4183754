package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"symptosafe/internal/config"
)

func openTemp(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func tableExists(t *testing.T, path, table string) bool {
	t.Helper()
	db, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = $1`, table).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate_EmbeddedIsIdempotent(t *testing.T) {
	path := openTemp(t)

	for i := 0; i < 2; i++ {
		db, err := OpenSQLite(context.Background(), path)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		if err := Migrate(db, config.StorageSQLite, ""); err != nil {
			t.Fatalf("run %d: expected no error, got: %v", i+1, err)
		}
		db.Close()
	}

	if !tableExists(t, path, "sessions") {
		t.Error("expected sessions table after migration")
	}
}

func TestMigrate_FileSource(t *testing.T) {
	path := openTemp(t)
	db, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	src, err := filepath.Abs(filepath.Join("..", "..", "..", "migrations"))
	if err != nil {
		t.Fatal(err)
	}
	if err := Migrate(db, config.StorageSQLite, "file://"+filepath.ToSlash(src)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !tableExists(t, path, "sessions") {
		t.Error("expected sessions table after migration")
	}
}

func TestUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), &config.Config{StorageDriver: "mongo"}, nil); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Open: expected ErrInvalidConfig, got %v", err)
	}

	db, err := OpenSQLite(context.Background(), openTemp(t))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "mongo", ""); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Migrate: expected ErrInvalidConfig, got %v", err)
	}
}

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(context.Background(), &config.Config{StorageDriver: config.StorageSQLite, SQLitePath: openTemp(t)}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Errorf("ping: %v", err)
	}
}
