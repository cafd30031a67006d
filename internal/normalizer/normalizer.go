// Package normalizer приводит записи разных источников к каноническому models.Trade.
//
// Каждому виду источника соответствует явная таблица Mapping (mapping.go):
// никаких догадок по набору ключей. Функции чистые: без I/O и без состояния.
package normalizer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradesync/internal/models"
	"tradesync/pkg/utils"
)

// NormalizationError - запись не может быть приведена к сделке
type NormalizationError struct {
	Source models.SourceKind
	Field  Field
	Reason string
	// Index - позиция записи в пакете (-1 для одиночной записи)
	Index int
}

func (e *NormalizationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("normalize %s record #%d: %s %s", e.Source, e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("normalize %s record: %s %s", e.Source, e.Field, e.Reason)
}

// Normalize приводит одну запись к сделке.
// Отсутствующие необязательные поля остаются nil; отсутствие или
// некорректность тикета возвращает *NormalizationError.
func Normalize(raw models.RawRecord, kind models.SourceKind) (*models.Trade, error) {
	m, ok := MappingFor(kind)
	if !ok {
		return nil, &NormalizationError{Source: kind, Field: "source", Reason: "is not supported", Index: -1}
	}
	if raw == nil {
		return nil, &NormalizationError{Source: kind, Field: FieldTicket, Reason: "is missing", Index: -1}
	}

	r := record{raw: raw, mapping: m}
	if m.Nested != "" {
		if nested, ok := raw[m.Nested].(map[string]interface{}); ok {
			r.nested = nested
		} else if nested, ok := raw[m.Nested].(models.RawRecord); ok {
			r.nested = nested
		}
	}

	ticket, reason := r.ticket()
	if reason != "" {
		return nil, &NormalizationError{Source: kind, Field: FieldTicket, Reason: reason, Index: -1}
	}

	trade := &models.Trade{
		ExternalID: ticket,
		Source:     kind,
		Raw:        map[string]interface{}(raw),
	}

	if kind == models.SourceClient {
		if id, ok := r.str(FieldSurrogateID); ok {
			if parsed, err := uuid.Parse(id); err == nil {
				trade.ID = parsed.String()
			}
		}
	}

	trade.Symbol, _ = r.str(FieldSymbol)

	typeValue, hasType := r.value(FieldType)
	if name, ok := r.str(FieldOrderType); ok {
		trade.OrderType = name
	} else if hasType {
		trade.OrderType = typeName(typeValue, m.TypeNames)
	}

	if dir, ok := r.str(FieldDirection); ok {
		trade.Direction = parseDirection(dir)
	}
	if trade.Direction == "" && hasType {
		trade.Direction = directionFrom(typeValue)
	}
	if trade.Direction == "" && trade.OrderType != "" {
		trade.Direction = parseDirection(trade.OrderType)
	}

	trade.OpenTime = r.timestamp(FieldOpenTime)
	if !kind.IsPosition() {
		trade.CloseTime = r.timestamp(FieldCloseTime)
	}
	trade.Session, _ = r.str(FieldSession)

	trade.Volume = r.number(FieldVolume, utils.VolumePrecision)
	trade.EntryPrice = r.number(FieldEntryPrice, utils.PricePrecision)
	trade.ExitPrice = r.number(FieldExitPrice, utils.PricePrecision)
	trade.StopLoss = r.nonZero(FieldStopLoss, utils.PricePrecision)
	trade.TakeProfit = r.nonZero(FieldTakeProfit, utils.PricePrecision)
	trade.Profit = r.number(FieldProfit, utils.MoneyPrecision)
	trade.Commission = r.number(FieldCommission, utils.MoneyPrecision)
	trade.Swap = r.number(FieldSwap, utils.MoneyPrecision)

	trade.Outcome = r.optString(FieldOutcome)
	trade.Strategy = r.optString(FieldStrategy)
	trade.Notes = r.optString(FieldNotes)
	trade.JournalNotes = r.optString(FieldJournalNotes)
	trade.Emotion = r.optString(FieldEmotion)
	trade.ReasonForTrade = r.optString(FieldReason)
	trade.Pinned = r.optBool(FieldPinned)
	trade.Reviewed = r.optBool(FieldReviewed)
	if v, ok := r.value(FieldTags); ok {
		trade.Tags, _ = toTags(v)
	}

	return trade, nil
}

// NormalizeBatch нормализует пакет записей одного вида.
// Невалидные записи пропускаются и возвращаются отдельным списком ошибок,
// остальные сохраняют исходный порядок.
func NormalizeBatch(records []models.RawRecord, kind models.SourceKind) ([]*models.Trade, []*NormalizationError) {
	trades := make([]*models.Trade, 0, len(records))
	var skipped []*NormalizationError

	for i, raw := range records {
		trade, err := Normalize(raw, kind)
		if err != nil {
			nerr, ok := err.(*NormalizationError)
			if !ok {
				nerr = &NormalizationError{Source: kind, Field: "record", Reason: err.Error()}
			}
			nerr.Index = i
			skipped = append(skipped, nerr)
			continue
		}
		trades = append(trades, trade)
	}

	return trades, skipped
}

func typeName(v interface{}, names map[int64]string) string {
	if code, ok := toInt64(v); ok {
		if name, found := names[code]; found {
			return name
		}
		return fmt.Sprintf("%d", code)
	}
	s, _ := toString(v)
	return s
}

// ============ Чтение полей по таблице ============

type record struct {
	raw     map[string]interface{}
	nested  map[string]interface{}
	mapping *Mapping
}

// value ищет первое непустое значение: сначала во вложенном объекте, затем в самой записи
func (r record) value(field Field) (interface{}, bool) {
	for _, src := range []map[string]interface{}{r.nested, r.raw} {
		if src == nil {
			continue
		}
		for _, k := range r.mapping.Fields[field] {
			v, ok := src[k.Name]
			if !ok || v == nil {
				continue
			}
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

// ticket перебирает все кандидаты и берёт первый положительный целый тикет.
// "is missing" - ни одного ключа нет, "is not a positive integer" - ключи есть, но значения негодные.
func (r record) ticket() (int64, string) {
	found := false
	for _, src := range []map[string]interface{}{r.nested, r.raw} {
		if src == nil {
			continue
		}
		for _, k := range r.mapping.Fields[FieldTicket] {
			v, ok := src[k.Name]
			if !ok || v == nil {
				continue
			}
			found = true
			if id, ok := toInt64(v); ok && id > 0 {
				return id, ""
			}
		}
	}
	if found {
		return 0, "is not a positive integer"
	}
	return 0, "is missing"
}

func (r record) str(field Field) (string, bool) {
	v, ok := r.value(field)
	if !ok {
		return "", false
	}
	return toString(v)
}

func (r record) optString(field Field) *string {
	if s, ok := r.str(field); ok {
		return &s
	}
	return nil
}

func (r record) optBool(field Field) *bool {
	v, ok := r.value(field)
	if !ok {
		return nil
	}
	if b, ok := toBool(v); ok {
		return &b
	}
	return nil
}

func (r record) number(field Field, places int) *float64 {
	v, ok := r.value(field)
	if !ok {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	f = utils.RoundTo(f, places)
	return &f
}

// nonZero - как number, но 0 считается отсутствием (SL/TP не выставлены)
func (r record) nonZero(field Field, places int) *float64 {
	f := r.number(field, places)
	if f == nil || *f == 0 {
		return nil
	}
	return f
}

// timestamp перебирает ключи поля по приоритету и берёт первую разбираемую метку
func (r record) timestamp(field Field) *time.Time {
	for _, src := range []map[string]interface{}{r.nested, r.raw} {
		if src == nil {
			continue
		}
		for _, k := range r.mapping.Fields[field] {
			v, ok := src[k.Name]
			if !ok || v == nil {
				continue
			}
			if t, ok := toTime(v, k.Unit); ok {
				return &t
			}
		}
	}
	return nil
}
