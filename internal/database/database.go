// Package database открывает пул соединений PostgreSQL и применяет миграции goose.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"tradesync/internal/config"
	"tradesync/internal/database/migrations"
	"tradesync/pkg/retry"
	"tradesync/pkg/utils"
)

// sqlOpen и gooseUpContext - точки подмены для тестов
var (
	sqlOpen        = sql.Open
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
)

// pingTimeout - таймаут одной попытки ping
const pingTimeout = 5 * time.Second

// Open создаёт пул соединений и ждёт, пока база станет доступна.
// Ping повторяется с экспоненциальной задержкой: контейнер базы
// часто поднимается позже сервиса.
func Open(ctx context.Context, cfg config.DatabaseConfig, retryCfg retry.Config) (*sql.DB, error) {
	db, err := sqlOpen(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	// таймаут отдельной попытки повторяется, отмена внешнего ctx - нет
	retryCfg.RetryIf = func(error) bool { return ctx.Err() == nil }
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		utils.L().Warn("database is not reachable yet",
			utils.Int("attempt", attempt),
			utils.String("retry_in", delay.String()),
			utils.Err(err),
		)
	}

	err = retry.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	}, retryCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.DSNWithoutPassword(), err)
	}

	return db, nil
}

// Migrate применяет встроенные миграции
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
