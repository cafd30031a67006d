package service

import (
	"tradesync/internal/models"
	"tradesync/pkg/utils"
)

// Analysis - простая сводка по пакету сделок
type Analysis struct {
	TotalTrades int     `json:"total_trades"` // закрытые сделки с направлением
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"` // проценты, 2 знака
}

// Analyze считает винрейт по закрытым сделкам с направлением.
// Открытые позиции и балансовые операции не учитываются.
func Analyze(trades []*models.Trade) Analysis {
	var a Analysis
	for _, t := range trades {
		if t == nil || t.IsOpen() || t.Direction == "" {
			continue
		}
		a.TotalTrades++
		switch {
		case t.IsWin():
			a.Wins++
		case t.Profit != nil && *t.Profit < 0:
			a.Losses++
		}
	}
	a.WinRate = utils.Percent(a.Wins, a.TotalTrades)
	return a
}
