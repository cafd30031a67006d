package models

// SyncSummary - результат одной синхронизации или импорта
type SyncSummary struct {
	Imported    int     `json:"imported"`         // затронуто строк при upsert
	Skipped     int     `json:"skipped"`          // записей, отброшенных нормализатором
	Positions   int     `json:"positions"`        // из них открытых позиций
	TotalTrades int     `json:"total_trades"`     // нормализовано сделок
	WinRate     float64 `json:"win_rate"`         // % прибыльных среди закрытых
	Source      string  `json:"source,omitempty"` // провайдер, чьи данные использованы
	Message     string  `json:"message"`

	// RateRemaining - сколько синхронизаций осталось в окне, nil для импорта клиента.
	// Уходит в заголовок X-RateLimit-Remaining, не в тело.
	RateRemaining *int `json:"-"`
}
