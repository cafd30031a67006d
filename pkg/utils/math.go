package utils

import (
	"math"
)

// math.go - округление и проценты для нормализации сделок

// Точность хранения числовых полей сделки
const (
	PricePrecision  = 5 // цены: EURUSD 1.08345, XAUUSD 2034.12000
	MoneyPrecision  = 2 // прибыль, комиссия, своп
	VolumePrecision = 2 // лоты
)

// RoundTo округляет значение до places знаков после запятой (half away from zero).
//
// Примеры:
//   - RoundTo(1.083456, 5) = 1.08346
//   - RoundTo(-12.345, 2) = -12.35
//   - RoundTo(0.1, 0) = 0
func RoundTo(value float64, places int) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	if places < 0 {
		places = 0
	}
	pow := math.Pow(10, float64(places))
	// Поправка на двоичное представление: 1.005*100 = 100.49999...
	return math.Round(value*pow+math.Copysign(1e-9, value)) / pow
}

// RoundPrice округляет цену
func RoundPrice(v float64) float64 {
	return RoundTo(v, PricePrecision)
}

// RoundMoney округляет денежную сумму
func RoundMoney(v float64) float64 {
	return RoundTo(v, MoneyPrecision)
}

// RoundVolume округляет объём в лотах
func RoundVolume(v float64) float64 {
	return RoundTo(v, VolumePrecision)
}

// Percent возвращает part/total*100 с округлением до 2 знаков. При total == 0 возвращает 0.
func Percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return RoundTo(float64(part)/float64(total)*100, 2)
}

// IsFinite проверяет, что число не NaN и не бесконечность
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
