// Package provider - источники истории сделок MT5: мост терминала и облачный API.
package provider

import (
	"context"
	"errors"
	"time"

	"tradesync/internal/models"
	"tradesync/pkg/utils"
)

// HistoryProvider определяет унифицированный интерфейс источника истории
type HistoryProvider interface {
	// Name возвращает имя провайдера (terminal, cloud)
	Name() string

	// Authenticate проверяет учётные данные живым входом.
	// Неверные данные - (false, nil); ошибка только при сбое инфраструктуры.
	Authenticate(ctx context.Context, creds Credentials) (bool, error)

	// FetchSince получает сделки и открытые позиции начиная с since.
	// since == nil - окно по умолчанию. Пустой результат не является ошибкой.
	FetchSince(ctx context.Context, creds Credentials, since *time.Time) (*History, error)
}

// Credentials - параметры входа в счёт MT5
type Credentials struct {
	Server   string
	Login    int64
	Password string
}

// History - сырые записи одного провайдера
type History struct {
	Provider       string
	Deals          []models.RawRecord
	Positions      []models.RawRecord
	DealSource     models.SourceKind
	PositionSource models.SourceKind
}

// Empty - провайдер не вернул ни одной сделки
func (h *History) Empty() bool {
	return h == nil || len(h.Deals) == 0
}

var (
	// ErrInvalidCredentials - провайдер отклонил вход
	ErrInvalidCredentials = errors.New("invalid MT5 credentials")
	// ErrUnavailable - провайдер недоступен (сеть, 5xx, таймаут)
	ErrUnavailable = errors.New("provider unavailable")
	// ErrNotConfigured - провайдер не настроен (нет URL или токена)
	ErrNotConfigured = errors.New("provider not configured")
)

// ProviderError представляет ошибку от провайдера
type ProviderError struct {
	Provider string
	Op       string
	Status   int
	Code     string
	Message  string
	Original error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + " " + e.Op + ": " + e.Message
	if e.Original != nil {
		msg += ": " + e.Original.Error()
	}
	return msg
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ProviderError) Unwrap() error {
	return e.Original
}

// DefaultLookback - окно истории при первой синхронизации
const DefaultLookback = 90 * 24 * time.Hour

// Окно запроса истории: от водяного знака или за lookback до now
func window(since *time.Time, lookback time.Duration, now time.Time) utils.TimeRange {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	rng := utils.Lookback(now, lookback)
	if since != nil && !since.IsZero() {
		rng.Start = since.UTC()
		if rng.Start.After(rng.End) {
			rng.Start = rng.End
		}
	}
	return rng
}
