package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"tradesync/internal/models"
)

// ============================================================
// AccountRepository Tests
// ============================================================

var accountColumns = []string{
	"id", "user_id", "server", "login", "password_enc", "password_nonce", "password_hash", "last_sync", "created_at",
}

func TestNewAccountRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewAccountRepository(db)
	if repo == nil {
		t.Fatal("NewAccountRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestAccountRepositoryCreate(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO mt5_accounts`).
					WithArgs("user-1", "Broker-Demo", int64(5012345), []byte("ct"), []byte("nonce-12byte"), "$2a$hash", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, created))
			},
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO mt5_accounts`).
					WillReturnError(errors.New("connection refused"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			account := &models.Account{
				UserID:        "user-1",
				Server:        "Broker-Demo",
				Login:         5012345,
				PasswordEnc:   []byte("ct"),
				PasswordNonce: []byte("nonce-12byte"),
				PasswordHash:  "$2a$hash",
			}
			err = NewAccountRepository(db).Create(context.Background(), account)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if account.ID != 7 {
					t.Errorf("expected ID=7, got %d", account.ID)
				}
				if !account.CreatedAt.Equal(created) {
					t.Errorf("expected created_at %v, got %v", created, account.CreatedAt)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestAccountRepositoryFindLatest(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	synced := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	login := int64(5012345)

	tests := []struct {
		name         string
		login        *int64
		mockSetup    func(mock sqlmock.Sqlmock)
		expectError  error
		expectID     int64
		expectSynced bool
	}{
		{
			name:  "latest without login filter",
			login: nil,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM mt5_accounts .* ORDER BY created_at DESC, id DESC`).
					WithArgs("user-1", nil).
					WillReturnRows(sqlmock.NewRows(accountColumns).
						AddRow(9, "user-1", "Broker-Demo", login, []byte("ct"), []byte("n"), "h", nil, created))
			},
			expectID: 9,
		},
		{
			name:  "with login filter and watermark",
			login: &login,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM mt5_accounts`).
					WithArgs("user-1", login).
					WillReturnRows(sqlmock.NewRows(accountColumns).
						AddRow(3, "user-1", "Broker-Demo", login, []byte("ct"), []byte("n"), "h", synced, created))
			},
			expectID:     3,
			expectSynced: true,
		},
		{
			name: "not found",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM mt5_accounts`).
					WillReturnError(sql.ErrNoRows)
			},
			expectError: ErrAccountNotFound,
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM mt5_accounts`).
					WillReturnError(errors.New("connection reset"))
			},
			expectError: errors.New("connection reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			account, err := NewAccountRepository(db).FindLatest(context.Background(), "user-1", tt.login)

			if tt.expectError != nil {
				if err == nil {
					t.Fatalf("expected error %v, got nil", tt.expectError)
				}
				if tt.expectError == ErrAccountNotFound && !errors.Is(err, ErrAccountNotFound) {
					t.Errorf("expected ErrAccountNotFound, got %v", err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if account.ID != tt.expectID {
					t.Errorf("expected ID=%d, got %d", tt.expectID, account.ID)
				}
				if account.HasWatermark() != tt.expectSynced {
					t.Errorf("HasWatermark = %v, want %v", account.HasWatermark(), tt.expectSynced)
				}
				if tt.expectSynced && !account.LastSync.Equal(synced) {
					t.Errorf("last_sync = %v, want %v", account.LastSync, synced)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestAccountRepositoryUpdateWatermark(t *testing.T) {
	watermark := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE mt5_accounts SET last_sync`).
					WithArgs(watermark, int64(7)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "not found",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE mt5_accounts SET last_sync`).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectError: ErrAccountNotFound,
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE mt5_accounts SET last_sync`).
					WillReturnError(errors.New("deadlock detected"))
			},
			expectError: errors.New("deadlock detected"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			err = NewAccountRepository(db).UpdateWatermark(context.Background(), 7, watermark)

			if tt.expectError != nil {
				if err == nil {
					t.Errorf("expected error %v, got nil", tt.expectError)
				} else if tt.expectError == ErrAccountNotFound && !errors.Is(err, ErrAccountNotFound) {
					t.Errorf("expected ErrAccountNotFound, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
