package models

import "time"

// SourceKind - форма исходной записи, определяет таблицу соответствия полей
type SourceKind string

const (
	SourceTerminalDeal     SourceKind = "terminal_deal"
	SourceTerminalPosition SourceKind = "terminal_position"
	SourceCloudDeal        SourceKind = "cloud_deal"
	SourceCloudPosition    SourceKind = "cloud_position"
	SourceClient           SourceKind = "client" // сделки, присланные фронтендом
)

// IsPosition - открытая позиция, close_time никогда не заполняется
func (k SourceKind) IsPosition() bool {
	return k == SourceTerminalPosition || k == SourceCloudPosition
}

// Valid проверяет, что вид источника известен
func (k SourceKind) Valid() bool {
	switch k {
	case SourceTerminalDeal, SourceTerminalPosition, SourceCloudDeal, SourceCloudPosition, SourceClient:
		return true
	}
	return false
}

// Направление сделки
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// Trade - каноническая сделка.
// Уникальна по (UserID, ExternalID), повторная синхронизация перезаписывает ту же строку.
type Trade struct {
	ID           string     `json:"id" db:"id"` // UUID, суррогатный ключ
	UserID       string     `json:"user_id" db:"user_id"`
	AccountLogin int64      `json:"account_login,omitempty" db:"account_login"`
	ExternalID   int64      `json:"external_id" db:"external_id"` // тикет брокера
	Source       SourceKind `json:"source" db:"source"`

	Symbol    string     `json:"symbol" db:"symbol"`
	Direction string     `json:"direction,omitempty" db:"direction"`   // buy, sell
	OrderType string     `json:"order_type,omitempty" db:"order_type"` // сырой тип брокера
	OpenTime  *time.Time `json:"open_time,omitempty" db:"open_time"`
	CloseTime *time.Time `json:"close_time,omitempty" db:"close_time"` // nil для открытых позиций
	Session   string     `json:"session,omitempty" db:"session"`

	Volume     *float64 `json:"volume,omitempty" db:"volume"`
	EntryPrice *float64 `json:"entry_price,omitempty" db:"entry_price"`
	ExitPrice  *float64 `json:"exit_price,omitempty" db:"exit_price"`
	StopLoss   *float64 `json:"stop_loss,omitempty" db:"stop_loss"`
	TakeProfit *float64 `json:"take_profit,omitempty" db:"take_profit"`
	Profit     *float64 `json:"profit,omitempty" db:"profit"`
	Commission *float64 `json:"commission,omitempty" db:"commission"`
	Swap       *float64 `json:"swap,omitempty" db:"swap"`

	// Поля журнала. Заполняются пользователем, провайдеры их не присылают.
	Outcome        *string  `json:"outcome,omitempty" db:"outcome"`
	Strategy       *string  `json:"strategy,omitempty" db:"strategy"`
	Notes          *string  `json:"notes,omitempty" db:"notes"`
	JournalNotes   *string  `json:"journal_notes,omitempty" db:"journal_notes"`
	Emotion        *string  `json:"emotion,omitempty" db:"emotion"`
	ReasonForTrade *string  `json:"reason_for_trade,omitempty" db:"reason_for_trade"`
	Tags           []string `json:"tags,omitempty" db:"tags"`
	Pinned         *bool    `json:"pinned,omitempty" db:"pinned"`
	Reviewed       *bool    `json:"reviewed,omitempty" db:"reviewed"`

	Raw map[string]interface{} `json:"raw,omitempty" db:"raw"` // исходная запись без изменений

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsOpen - открытая позиция (нет времени закрытия)
func (t *Trade) IsOpen() bool {
	return t.CloseTime == nil
}

// IsWin - закрытая сделка с положительным результатом
func (t *Trade) IsWin() bool {
	if t.Outcome != nil {
		return *t.Outcome == "win" || *t.Outcome == "Win"
	}
	return t.Profit != nil && *t.Profit > 0
}

// RawRecord - запись провайдера или клиента как есть (декодированный JSON)
type RawRecord map[string]interface{}
