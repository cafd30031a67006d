package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"tradesync/internal/models"
)

var rawCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// TradeRepository - работа с таблицей trades
type TradeRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db, now: time.Now}
}

// upsertTradeQuery - вставка или обновление по (user_id, external_id).
//
// id существующей строки не меняется. Колонки брокера берутся из новой записи
// как есть: снятый SL или обнулённая комиссия приходят NULL и затирают старое.
// Журнальные поля и account_login при NULL сохраняют значение из базы.
// Строка обновляется только если что-то поменялось, поэтому RowsAffected
// считает новые и изменённые сделки, а повтор той же истории даёт 0.
const upsertTradeQuery = `
	INSERT INTO trades (
		id, user_id, account_login, external_id, source,
		symbol, direction, order_type, open_time, close_time, session,
		volume, entry_price, exit_price, stop_loss, take_profit, profit, commission, swap,
		outcome, strategy, notes, journal_notes, emotion, reason_for_trade, tags, pinned, reviewed,
		raw, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16, $17, $18, $19,
		$20, $21, $22, $23, $24, $25, $26, $27, $28,
		$29, $30, $31
	)
	ON CONFLICT (user_id, external_id) DO UPDATE SET
		account_login    = COALESCE(EXCLUDED.account_login, trades.account_login),
		source           = EXCLUDED.source,
		symbol           = EXCLUDED.symbol,
		direction        = EXCLUDED.direction,
		order_type       = EXCLUDED.order_type,
		open_time        = EXCLUDED.open_time,
		close_time       = EXCLUDED.close_time,
		session          = EXCLUDED.session,
		volume           = EXCLUDED.volume,
		entry_price      = EXCLUDED.entry_price,
		exit_price       = EXCLUDED.exit_price,
		stop_loss        = EXCLUDED.stop_loss,
		take_profit      = EXCLUDED.take_profit,
		profit           = EXCLUDED.profit,
		commission       = EXCLUDED.commission,
		swap             = EXCLUDED.swap,
		outcome          = COALESCE(EXCLUDED.outcome, trades.outcome),
		strategy         = COALESCE(EXCLUDED.strategy, trades.strategy),
		notes            = COALESCE(EXCLUDED.notes, trades.notes),
		journal_notes    = COALESCE(EXCLUDED.journal_notes, trades.journal_notes),
		emotion          = COALESCE(EXCLUDED.emotion, trades.emotion),
		reason_for_trade = COALESCE(EXCLUDED.reason_for_trade, trades.reason_for_trade),
		tags             = COALESCE(EXCLUDED.tags, trades.tags),
		pinned           = COALESCE(EXCLUDED.pinned, trades.pinned),
		reviewed         = COALESCE(EXCLUDED.reviewed, trades.reviewed),
		raw              = EXCLUDED.raw,
		updated_at       = EXCLUDED.updated_at
	WHERE (
		trades.account_login, trades.source, trades.symbol, trades.direction, trades.order_type,
		trades.open_time, trades.close_time, trades.session,
		trades.volume, trades.entry_price, trades.exit_price, trades.stop_loss, trades.take_profit,
		trades.profit, trades.commission, trades.swap,
		trades.outcome, trades.strategy, trades.notes, trades.journal_notes, trades.emotion,
		trades.reason_for_trade, trades.tags, trades.pinned, trades.reviewed,
		trades.raw
	) IS DISTINCT FROM (
		COALESCE(EXCLUDED.account_login, trades.account_login), EXCLUDED.source, EXCLUDED.symbol,
		EXCLUDED.direction, EXCLUDED.order_type,
		EXCLUDED.open_time, EXCLUDED.close_time, EXCLUDED.session,
		EXCLUDED.volume, EXCLUDED.entry_price, EXCLUDED.exit_price, EXCLUDED.stop_loss, EXCLUDED.take_profit,
		EXCLUDED.profit, EXCLUDED.commission, EXCLUDED.swap,
		COALESCE(EXCLUDED.outcome, trades.outcome),
		COALESCE(EXCLUDED.strategy, trades.strategy),
		COALESCE(EXCLUDED.notes, trades.notes),
		COALESCE(EXCLUDED.journal_notes, trades.journal_notes),
		COALESCE(EXCLUDED.emotion, trades.emotion),
		COALESCE(EXCLUDED.reason_for_trade, trades.reason_for_trade),
		COALESCE(EXCLUDED.tags, trades.tags),
		COALESCE(EXCLUDED.pinned, trades.pinned),
		COALESCE(EXCLUDED.reviewed, trades.reviewed),
		EXCLUDED.raw
	)`

// idOwnerQuery - чья строка уже занимает id, пришедший от клиента
const idOwnerQuery = `SELECT user_id, external_id FROM trades WHERE id = $1`

// Upsert сохраняет пакет сделок одной транзакцией.
// Возвращает число вставленных или изменённых строк; при любой ошибке пакет
// откатывается целиком, а сделки вызывающего остаются нетронутыми.
// ID, CreatedAt и UpdatedAt проставляются сделкам только после commit.
func (r *TradeRepository) Upsert(ctx context.Context, trades []*models.Trade) (n int, err error) {
	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			n = 0
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertTradeQuery)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := r.now().UTC()
	rows := make([]models.Trade, len(trades))
	for i, trade := range trades {
		row := &rows[i]
		*row = *trade

		if row.ID != "" {
			if row.ID, err = claimTradeID(ctx, tx, row); err != nil {
				return 0, err
			}
		}

		args, err := tradeArgs(row, now)
		if err != nil {
			return 0, err
		}

		result, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("upsert trade %d: %w", trade.ExternalID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		n += int(affected)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}

	for i, trade := range trades {
		trade.ID = rows[i].ID
		trade.CreatedAt = rows[i].CreatedAt
		trade.UpdatedAt = rows[i].UpdatedAt
	}
	return n, nil
}

// claimTradeID оставляет id клиента, если он свободен или уже принадлежит
// этой же сделке. id чужой строки заменяется новым UUID, иначе вставка
// упала бы на первичном ключе и отбросила весь пакет.
func claimTradeID(ctx context.Context, tx *sql.Tx, trade *models.Trade) (string, error) {
	var ownerUser string
	var ownerTicket int64
	err := tx.QueryRowContext(ctx, idOwnerQuery, trade.ID).Scan(&ownerUser, &ownerTicket)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return trade.ID, nil
	case err != nil:
		return "", fmt.Errorf("check id of trade %d: %w", trade.ExternalID, err)
	case ownerUser == trade.UserID && ownerTicket == trade.ExternalID:
		return trade.ID, nil
	default:
		return uuid.New().String(), nil
	}
}

// tradeArgs раскладывает сделку в параметры upsertTradeQuery.
// Сделке без id назначается новый UUID.
func tradeArgs(trade *models.Trade, now time.Time) ([]interface{}, error) {
	if !trade.Source.Valid() {
		return nil, fmt.Errorf("trade %d: unknown source %q", trade.ExternalID, trade.Source)
	}
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}

	raw := []byte("{}")
	if trade.Raw != nil {
		encoded, err := rawCodec.Marshal(trade.Raw)
		if err != nil {
			return nil, fmt.Errorf("encode raw of trade %d: %w", trade.ExternalID, err)
		}
		raw = encoded
	}

	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}
	trade.UpdatedAt = now

	var tags interface{}
	if trade.Tags != nil {
		tags = pq.Array(trade.Tags)
	}

	return []interface{}{
		trade.ID,
		trade.UserID,
		nullInt64(trade.AccountLogin),
		trade.ExternalID,
		string(trade.Source),
		trade.Symbol,
		nullString(trade.Direction),
		nullString(trade.OrderType),
		nullTime(trade.OpenTime),
		nullTime(trade.CloseTime),
		nullString(trade.Session),
		nullFloat(trade.Volume),
		nullFloat(trade.EntryPrice),
		nullFloat(trade.ExitPrice),
		nullFloat(trade.StopLoss),
		nullFloat(trade.TakeProfit),
		nullFloat(trade.Profit),
		nullFloat(trade.Commission),
		nullFloat(trade.Swap),
		nullStringPtr(trade.Outcome),
		nullStringPtr(trade.Strategy),
		nullStringPtr(trade.Notes),
		nullStringPtr(trade.JournalNotes),
		nullStringPtr(trade.Emotion),
		nullStringPtr(trade.ReasonForTrade),
		tags,
		nullBool(trade.Pinned),
		nullBool(trade.Reviewed),
		string(raw),
		trade.CreatedAt,
		trade.UpdatedAt,
	}, nil
}

// ============ NULL для необязательных колонок ============

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
