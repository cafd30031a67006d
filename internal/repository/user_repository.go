package repository

import (
	"context"
	"database/sql"
	"errors"
)

// Ошибки репозитория пользователей
var (
	ErrUserNotFound = errors.New("user not found")
)

// DefaultPlan - тариф пользователя без явно заданного плана
const DefaultPlan = "free"

// UserRepository - чтение таблицы users (только тариф)
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository создает новый экземпляр репозитория
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetPlan возвращает тариф пользователя
func (r *UserRepository) GetPlan(ctx context.Context, userID string) (string, error) {
	query := `SELECT plan FROM users WHERE id = $1`

	var plan sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&plan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}

	if !plan.Valid || plan.String == "" {
		return DefaultPlan, nil
	}
	return plan.String, nil
}
