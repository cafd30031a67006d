package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tradesync/internal/models"
)

// Ошибки репозитория счетов
var (
	ErrAccountNotFound = errors.New("mt5 account not found")
)

// AccountRepository - работа с таблицей mt5_accounts
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create сохраняет привязанный счёт. Каждое подключение создаёт новую строку:
// актуальной считается самая свежая.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO mt5_accounts (user_id, server, login, password_enc, password_nonce, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	createdAt := time.Now().UTC()

	err := r.db.QueryRowContext(
		ctx,
		query,
		account.UserID,
		account.Server,
		account.Login,
		account.PasswordEnc,
		account.PasswordNonce,
		account.PasswordHash,
		createdAt,
	).Scan(&account.ID, &account.CreatedAt)

	return err
}

// FindLatest возвращает последний созданный счёт пользователя.
// login == nil - любой счёт; при равном created_at побеждает больший id.
func (r *AccountRepository) FindLatest(ctx context.Context, userID string, login *int64) (*models.Account, error) {
	query := `
		SELECT id, user_id, server, login, password_enc, password_nonce, password_hash, last_sync, created_at
		FROM mt5_accounts
		WHERE user_id = $1 AND ($2::BIGINT IS NULL OR login = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var loginArg interface{}
	if login != nil {
		loginArg = *login
	}

	account := &models.Account{}
	var lastSync sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID, loginArg).Scan(
		&account.ID,
		&account.UserID,
		&account.Server,
		&account.Login,
		&account.PasswordEnc,
		&account.PasswordNonce,
		&account.PasswordHash,
		&lastSync,
		&account.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if lastSync.Valid {
		t := lastSync.Time.UTC()
		account.LastSync = &t
	}

	return account, nil
}

// UpdateWatermark сдвигает отметку последней синхронизации
func (r *AccountRepository) UpdateWatermark(ctx context.Context, id int64, watermark time.Time) error {
	query := `UPDATE mt5_accounts SET last_sync = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, watermark.UTC(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAccountNotFound
	}

	return nil
}
