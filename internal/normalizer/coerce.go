package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"tradesync/internal/models"
	"tradesync/pkg/utils"
)

// Приведение значений из декодированного JSON.
// Провайдеры декодируются с UseNumber, поэтому числа приходят как json.Number;
// клиентские записи могут содержать float64 и строки.

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if !utils.IsFinite(f) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	return f, utils.IsFinite(f)
}

func toString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		s = strings.TrimSpace(s)
		return s, s != ""
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int:
		return strconv.Itoa(s), true
	}
	return "", false
}

func toBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	}
	if i, ok := toInt64(v); ok && (i == 0 || i == 1) {
		return i == 1, true
	}
	return false, false
}

func toTime(v interface{}, unit utils.TimeUnit) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		parsed, err := utils.ParseTimestamp(t, unit)
		return parsed, err == nil
	}
	if f, ok := toFloat(v); ok {
		parsed, err := utils.FromNumber(f, unit)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func toTags(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return cleanTags(t), true
	case []interface{}:
		tags := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := toString(item); ok {
				tags = append(tags, s)
			}
		}
		return cleanTags(tags), true
	case string:
		return cleanTags(strings.Split(t, ",")), true
	}
	return nil, false
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// directionFrom определяет направление по коду или имени типа.
// Коды 0/1 у терминала означают buy/sell и для сделок, и для позиций.
func directionFrom(v interface{}) string {
	if code, ok := toInt64(v); ok {
		switch code {
		case 0:
			return models.DirectionBuy
		case 1:
			return models.DirectionSell
		}
		return ""
	}

	s, ok := toString(v)
	if !ok {
		return ""
	}
	return parseDirection(s)
}

func parseDirection(s string) string {
	s = strings.ToUpper(s)
	switch {
	case strings.Contains(s, "BUY"), s == "LONG":
		return models.DirectionBuy
	case strings.Contains(s, "SELL"), s == "SHORT":
		return models.DirectionSell
	}
	return ""
}
