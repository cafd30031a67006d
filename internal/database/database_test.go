package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"

	"tradesync/internal/config"
	"tradesync/internal/database/migrations"
	"tradesync/pkg/retry"
)

func withMockOpen(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	orig := sqlOpen
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		if driver != "postgres" {
			t.Errorf("driver = %q, want postgres", driver)
		}
		return db, nil
	}
	t.Cleanup(func() { sqlOpen = orig })
	return mock
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{
		MaxRetries:   attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

var testDB = config.DatabaseConfig{
	Driver: "postgres", Host: "localhost", Port: 5432, Name: "tradesync",
	User: "u", Password: "secret", SSLMode: "disable", MaxOpenConns: 5, MaxIdleConns: 1,
}

func TestOpen_Success(t *testing.T) {
	mock := withMockOpen(t)
	mock.ExpectPing()

	db, err := Open(context.Background(), testDB, fastRetry(3))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer db.Close()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestOpen_RetriesPing(t *testing.T) {
	mock := withMockOpen(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	db, err := Open(context.Background(), testDB, fastRetry(3))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer db.Close()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestOpen_GivesUp(t *testing.T) {
	mock := withMockOpen(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	_, err := Open(context.Background(), testDB, fastRetry(2))
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error leaks the password: %v", err)
	}
}

func TestMigrate_UsesEmbeddedDir(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
}

func TestMigrate_PropagatesError(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	sentinel := errors.New("boom")
	orig := gooseUpContext
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error { return sentinel }
	defer func() { gooseUpContext = orig }()

	if err := Migrate(context.Background(), db); !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
}

func TestMigrations_Embedded(t *testing.T) {
	files, err := fs.Glob(migrations.Migrations, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("got %d migrations, want 3", len(files))
	}

	trades, err := fs.ReadFile(migrations.Migrations, "00003_trades.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "UNIQUE (user_id, external_id)", "JSONB"} {
		if !strings.Contains(string(trades), want) {
			t.Errorf("trades migration lacks %q", want)
		}
	}
}
