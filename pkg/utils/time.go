package utils

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// time.go - разбор и преобразование временных меток брокеров
//
// Терминал и облачный API отдают время в разных видах:
// - секунды Unix (deal.time)
// - миллисекунды Unix (deal.time_msc)
// - ISO 8601 / RFC 3339 ("2024-01-15T14:30:45.123Z")
// - формат MT5 ("2024.01.15 14:30:45")
// Все функции возвращают время в UTC.

// TimeUnit - единица измерения числовой метки
type TimeUnit int

const (
	// UnitAuto - определить по величине значения
	UnitAuto TimeUnit = iota
	UnitSeconds
	UnitMillis
)

// Значения больше этого порога считаются миллисекундами (~ 2286 год в секундах)
const millisThreshold = 1e10

// ErrInvalidTimestamp - значение нельзя интерпретировать как время
var ErrInvalidTimestamp = errors.New("invalid timestamp")

var stringLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006.01.02 15:04:05.999",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006-01-02",
}

// FromUnixMillis конвертирует миллисекунды Unix в time.Time
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// FromUnixSeconds конвертирует секунды Unix (возможно дробные) в time.Time
func FromUnixSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
}

// FromNumber интерпретирует число как метку времени в указанной единице
func FromNumber(v float64, unit TimeUnit) (time.Time, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return time.Time{}, ErrInvalidTimestamp
	}

	switch unit {
	case UnitSeconds:
		return FromUnixSeconds(v), nil
	case UnitMillis:
		return FromUnixMillis(int64(v)), nil
	default:
		if v >= millisThreshold {
			return FromUnixMillis(int64(v)), nil
		}
		return FromUnixSeconds(v), nil
	}
}

// ParseTimestamp разбирает строковую метку: число, RFC 3339 или формат MT5.
// Строки без зоны считаются UTC (серверное время брокера не переводим).
func ParseTimestamp(value string, unit TimeUnit) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidTimestamp
	}

	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return FromNumber(n, unit)
	}

	for _, layout := range stringLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}

// TimeRange - полуинтервал [Start, End)
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Lookback возвращает диапазон [now-d, now)
func Lookback(now time.Time, d time.Duration) TimeRange {
	now = now.UTC()
	return TimeRange{Start: now.Add(-d), End: now}
}

// FormatDuration форматирует длительность для сообщений пользователю: "45s", "5m30s", "2h15m", "3d5h"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	d = d.Round(time.Second)

	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60

	switch {
	case days > 0:
		if hours > 0 {
			return strconv.Itoa(days) + "d" + strconv.Itoa(hours) + "h"
		}
		return strconv.Itoa(days) + "d"
	case hours > 0:
		if minutes > 0 {
			return strconv.Itoa(hours) + "h" + strconv.Itoa(minutes) + "m"
		}
		return strconv.Itoa(hours) + "h"
	case minutes > 0:
		if seconds > 0 {
			return strconv.Itoa(minutes) + "m" + strconv.Itoa(seconds) + "s"
		}
		return strconv.Itoa(minutes) + "m"
	default:
		return strconv.Itoa(seconds) + "s"
	}
}
