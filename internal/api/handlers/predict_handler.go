package handlers

import (
	"net/http"
	"strings"

	"tradesync/internal/service"
)

// PredictHandler проксирует прогнозы с учётом тарифа пользователя
type PredictHandler struct {
	predictService service.PredictServiceInterface
}

// NewPredictHandler создает новый PredictHandler
func NewPredictHandler(predictService service.PredictServiceInterface) *PredictHandler {
	return &PredictHandler{predictService: predictService}
}

// Predict возвращает JSON сервиса прогнозов без изменений
// GET /api/v1/predict?user_id=...&pair=EURUSD
//
// Ответы:
// - 200 OK: тело сервиса прогнозов
// - 400 Bad Request: нет user_id или pair
// - 404 Not Found: пользователь не найден
// - 502 Bad Gateway: сервис прогнозов недоступен или отказал
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := strings.TrimSpace(query.Get("user_id"))
	pair := strings.TrimSpace(query.Get("pair"))
	if !authorizeUser(w, r, userID) {
		return
	}

	body, err := h.predictService.Predict(r.Context(), userID, pair)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
