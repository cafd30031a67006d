package normalizer

import (
	"tradesync/internal/models"
	"tradesync/pkg/utils"
)

// Field - каноническое поле сделки
type Field string

const (
	FieldTicket       Field = "ticket"
	FieldSurrogateID  Field = "id"
	FieldSymbol       Field = "symbol"
	FieldType         Field = "type"
	FieldDirection    Field = "direction"
	FieldOrderType    Field = "order_type"
	FieldOpenTime     Field = "open_time"
	FieldCloseTime    Field = "close_time"
	FieldSession      Field = "session"
	FieldVolume       Field = "volume"
	FieldEntryPrice   Field = "entry_price"
	FieldExitPrice    Field = "exit_price"
	FieldStopLoss     Field = "stop_loss"
	FieldTakeProfit   Field = "take_profit"
	FieldProfit       Field = "profit"
	FieldCommission   Field = "commission"
	FieldSwap         Field = "swap"
	FieldOutcome      Field = "outcome"
	FieldStrategy     Field = "strategy"
	FieldNotes        Field = "notes"
	FieldJournalNotes Field = "journal_notes"
	FieldEmotion      Field = "emotion"
	FieldReason       Field = "reason_for_trade"
	FieldTags         Field = "tags"
	FieldPinned       Field = "pinned"
	FieldReviewed     Field = "reviewed"
)

// Key - имя ключа в исходной записи. Unit задаёт единицу для числовых меток времени.
type Key struct {
	Name string
	Unit utils.TimeUnit
}

func keys(names ...string) []Key {
	out := make([]Key, len(names))
	for i, n := range names {
		out[i] = Key{Name: n}
	}
	return out
}

// Mapping - таблица соответствия для одного вида источника.
// Для каждого поля ключи перечислены в порядке приоритета.
type Mapping struct {
	Kind   models.SourceKind
	Fields map[Field][]Key
	// TypeNames переводит числовой код типа MT5 в имя (DEAL_TYPE_BUY и т.п.)
	TypeNames map[int64]string
	// Nested - вложенный объект, который просматривается раньше самой записи
	Nested string
}

// Коды ENUM_DEAL_TYPE терминала MT5
var dealTypeNames = map[int64]string{
	0:  "DEAL_TYPE_BUY",
	1:  "DEAL_TYPE_SELL",
	2:  "DEAL_TYPE_BALANCE",
	3:  "DEAL_TYPE_CREDIT",
	4:  "DEAL_TYPE_CHARGE",
	5:  "DEAL_TYPE_CORRECTION",
	6:  "DEAL_TYPE_BONUS",
	7:  "DEAL_TYPE_COMMISSION",
	8:  "DEAL_TYPE_COMMISSION_DAILY",
	9:  "DEAL_TYPE_COMMISSION_MONTHLY",
	10: "DEAL_TYPE_COMMISSION_AGENT_DAILY",
	11: "DEAL_TYPE_COMMISSION_AGENT_MONTHLY",
	12: "DEAL_TYPE_INTEREST",
	13: "DEAL_TYPE_BUY_CANCELED",
	14: "DEAL_TYPE_SELL_CANCELED",
	15: "DEAL_DIVIDEND",
	16: "DEAL_DIVIDEND_FRANKED",
	17: "DEAL_TAX",
}

// Коды ENUM_POSITION_TYPE
var positionTypeNames = map[int64]string{
	0: "POSITION_TYPE_BUY",
	1: "POSITION_TYPE_SELL",
}

var mappings = map[models.SourceKind]*Mapping{
	// Сделка терминала (TradeDeal): time в секундах, time_msc в миллисекундах
	models.SourceTerminalDeal: {
		Kind: models.SourceTerminalDeal,
		Fields: map[Field][]Key{
			FieldTicket:     keys("ticket", "deal"),
			FieldSymbol:     keys("symbol"),
			FieldType:       keys("type"),
			FieldOpenTime:   {{Name: "time", Unit: utils.UnitSeconds}, {Name: "time_msc", Unit: utils.UnitMillis}},
			FieldCloseTime:  {{Name: "time_msc", Unit: utils.UnitMillis}, {Name: "time", Unit: utils.UnitSeconds}},
			FieldVolume:     keys("volume"),
			FieldEntryPrice: keys("price_open", "price"),
			FieldExitPrice:  keys("price_close"),
			FieldStopLoss:   keys("sl"),
			FieldTakeProfit: keys("tp"),
			FieldProfit:     keys("profit"),
			FieldCommission: keys("commission"),
			FieldSwap:       keys("swap"),
		},
		TypeNames: dealTypeNames,
	},

	// Открытая позиция терминала (TradePosition)
	models.SourceTerminalPosition: {
		Kind: models.SourceTerminalPosition,
		Fields: map[Field][]Key{
			FieldTicket:     keys("ticket", "identifier"),
			FieldSymbol:     keys("symbol"),
			FieldType:       keys("type"),
			FieldOpenTime:   {{Name: "time_msc", Unit: utils.UnitMillis}, {Name: "time", Unit: utils.UnitSeconds}},
			FieldVolume:     keys("volume"),
			FieldEntryPrice: keys("price_open"),
			FieldStopLoss:   keys("sl"),
			FieldTakeProfit: keys("tp"),
			FieldProfit:     keys("profit"),
			FieldSwap:       keys("swap"),
		},
		TypeNames: positionTypeNames,
	},

	// Сделка облачного API: id строкой, время ISO 8601, тип строкой DEAL_TYPE_*
	models.SourceCloudDeal: {
		Kind: models.SourceCloudDeal,
		Fields: map[Field][]Key{
			FieldTicket:     keys("id", "dealId"),
			FieldSymbol:     keys("symbol"),
			FieldType:       keys("type"),
			FieldOpenTime:   keys("time", "brokerTime"),
			FieldCloseTime:  keys("time", "brokerTime"),
			FieldVolume:     keys("volume"),
			FieldEntryPrice: keys("price"),
			FieldStopLoss:   keys("stopLoss"),
			FieldTakeProfit: keys("takeProfit"),
			FieldProfit:     keys("profit"),
			FieldCommission: keys("commission"),
			FieldSwap:       keys("swap"),
		},
	},

	// Открытая позиция облачного API
	models.SourceCloudPosition: {
		Kind: models.SourceCloudPosition,
		Fields: map[Field][]Key{
			FieldTicket:     keys("id", "positionId"),
			FieldSymbol:     keys("symbol"),
			FieldType:       keys("type"),
			FieldOpenTime:   keys("time", "brokerTime"),
			FieldVolume:     keys("volume"),
			FieldEntryPrice: keys("openPrice"),
			FieldStopLoss:   keys("stopLoss"),
			FieldTakeProfit: keys("takeProfit"),
			FieldProfit:     keys("profit", "unrealizedProfit"),
			FieldCommission: keys("commission"),
			FieldSwap:       keys("swap"),
		},
	},

	// Сделка от фронтенда: поля журнала в camelCase во вложенном raw,
	// базовые поля могут лежать и на верхнем уровне
	models.SourceClient: {
		Kind:   models.SourceClient,
		Nested: "raw",
		Fields: map[Field][]Key{
			FieldTicket:       keys("ticket", "externalId", "external_id", "id"),
			FieldSurrogateID:  keys("id"),
			FieldSymbol:       keys("symbol"),
			FieldType:         keys("type"),
			FieldDirection:    keys("direction"),
			FieldOrderType:    keys("orderType", "order_type"),
			FieldOpenTime:     keys("openTime", "open_time"),
			FieldCloseTime:    keys("closeTime", "close_time"),
			FieldSession:      keys("session"),
			FieldVolume:       keys("lotSize", "volume"),
			FieldEntryPrice:   keys("entryPrice", "entry_price"),
			FieldExitPrice:    keys("exitPrice", "exit_price"),
			FieldStopLoss:     keys("stopLossPrice", "stop_loss"),
			FieldTakeProfit:   keys("takeProfitPrice", "take_profit"),
			FieldProfit:       keys("pnl", "profit", "profitLoss"),
			FieldCommission:   keys("commission"),
			FieldSwap:         keys("swap"),
			FieldOutcome:      keys("outcome"),
			FieldStrategy:     keys("strategy"),
			FieldNotes:        keys("notes"),
			FieldJournalNotes: keys("journalNotes", "journal_notes"),
			FieldEmotion:      keys("emotion"),
			FieldReason:       keys("reasonForTrade", "reason_for_trade"),
			FieldTags:         keys("tags"),
			FieldPinned:       keys("pinned"),
			FieldReviewed:     keys("reviewed"),
		},
		TypeNames: dealTypeNames,
	},
}

// MappingFor возвращает таблицу соответствия для вида источника
func MappingFor(kind models.SourceKind) (*Mapping, bool) {
	m, ok := mappings[kind]
	return m, ok
}
