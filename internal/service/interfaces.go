package service

import (
	"context"
	"time"

	"tradesync/internal/forecast"
	"tradesync/internal/models"
	"tradesync/internal/repository"
	"tradesync/pkg/crypto"
	"tradesync/pkg/ratelimit"
)

// AccountRepositoryInterface определяет интерфейс репозитория счетов MT5
type AccountRepositoryInterface interface {
	Create(ctx context.Context, account *models.Account) error
	FindLatest(ctx context.Context, userID string, login *int64) (*models.Account, error)
	UpdateWatermark(ctx context.Context, id int64, watermark time.Time) error
}

// TradeRepositoryInterface определяет интерфейс репозитория сделок
type TradeRepositoryInterface interface {
	Upsert(ctx context.Context, trades []*models.Trade) (int, error)
}

// UserRepositoryInterface определяет интерфейс чтения тарифа пользователя
type UserRepositoryInterface interface {
	GetPlan(ctx context.Context, userID string) (string, error)
}

// CredentialVault шифрует и проверяет инвесторские пароли
type CredentialVault interface {
	Encrypt(plaintext string) (nonce, ciphertext []byte, err error)
	Decrypt(nonce, ciphertext []byte) (string, error)
	IntegrityHash(plaintext string) (string, error)
	VerifyIntegrity(plaintext, hash string) error
}

// RateLimiter - допуск запусков синхронизации
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) bool
	RetryAfter(key string, limit int, window time.Duration) time.Duration
	Remaining(key string, limit int, window time.Duration) int
}

// Forecaster - внешний сервис прогнозов
type Forecaster interface {
	Predict(ctx context.Context, pair, plan string) ([]byte, error)
}

// SyncServiceInterface - синхронизация и прямой импорт сделок (для handlers)
type SyncServiceInterface interface {
	Sync(ctx context.Context, userID string, login *int64) (*models.SyncSummary, error)
	UpsertTrades(ctx context.Context, userID string, login *int64, records []models.RawRecord) (*models.SyncSummary, error)
}

// AccountServiceInterface - привязка счетов MT5
type AccountServiceInterface interface {
	Connect(ctx context.Context, req ConnectRequest) (*models.Account, error)
}

// PredictServiceInterface - прокси прогнозов
type PredictServiceInterface interface {
	Predict(ctx context.Context, userID, pair string) ([]byte, error)
}

// Проверка соответствия реализаций интерфейсам на этапе компиляции
var (
	_ SyncServiceInterface       = (*SyncService)(nil)
	_ AccountServiceInterface    = (*AccountService)(nil)
	_ PredictServiceInterface    = (*PredictService)(nil)
	_ AccountRepositoryInterface = (*repository.AccountRepository)(nil)
	_ TradeRepositoryInterface   = (*repository.TradeRepository)(nil)
	_ UserRepositoryInterface    = (*repository.UserRepository)(nil)
	_ CredentialVault            = (*crypto.Vault)(nil)
	_ RateLimiter                = (*ratelimit.SlidingWindow)(nil)
	_ Forecaster                 = (*forecast.Client)(nil)
)
