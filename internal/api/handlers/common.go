package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradesync/internal/api/middleware"
	"tradesync/internal/service"
	"tradesync/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RateLimitRemainingHeader - сколько синхронизаций осталось в текущем окне
const RateLimitRemainingHeader = "X-RateLimit-Remaining"

// MaxRequestBodySize ограничение размера тела запроса (8 MB, импорт истории бывает большим)
const MaxRequestBodySize = 8 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	OK      bool        `json:"ok"`
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"error":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, code int, message, kind string, details interface{}) {
	respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Code:    kind,
		Details: details,
	})
}

// statusForKind - 4xx для исправимых клиентом ошибок, 5xx для инфраструктуры и целостности
func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation, service.KindCredentialInvalid:
		return http.StatusBadRequest
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	case service.KindAccountNotFound, service.KindUserNotFound:
		return http.StatusNotFound
	case service.KindProviderUnavailable, service.KindForecaster:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError переводит ошибку сервиса в HTTP ответ
func respondWithServiceError(w http.ResponseWriter, err error) {
	var se *service.SyncError
	if !errors.As(err, &se) {
		utils.L().WithComponent("http").Error("unclassified service error", utils.Err(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error", string(service.KindInternal), nil)
		return
	}

	if se.Kind == service.KindRateLimited {
		w.Header().Set(RateLimitRemainingHeader, "0")
		if se.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(se.RetryAfter)))
		}
	}

	var details interface{}
	if len(se.Details) > 0 {
		details = se.Details
	}
	respondWithError(w, statusForKind(se.Kind), se.Message, string(se.Kind), details)
}

// retryAfterSeconds округляет вверх: клиент не должен прийти раньше срока
func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// decodeJSON читает тело запроса с ограничением размера.
// Числа декодируются как json.Number, чтобы тикеты не теряли точность.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(dst)
}

// validateRequest проверяет теги validate DTO и отвечает 400 при ошибках
func validateRequest(w http.ResponseWriter, req interface{}) bool {
	err := utils.ValidateStruct(req)
	if err == nil {
		return true
	}
	var verrs utils.ValidationErrors
	if errors.As(err, &verrs) {
		respondWithError(w, http.StatusBadRequest, "Invalid request", string(service.KindValidation), verrs.Fields())
		return false
	}
	respondWithError(w, http.StatusBadRequest, "Invalid request", string(service.KindValidation), err.Error())
	return false
}

// authorizeUser с включённым JWT разрешает доступ только к своему user_id
func authorizeUser(w http.ResponseWriter, r *http.Request, userID string) bool {
	subject, ok := middleware.UserIDFromContext(r.Context())
	if !ok || subject == userID {
		return true
	}
	respondWithError(w, http.StatusForbidden, "Token does not grant access to this user", "forbidden", nil)
	return false
}
