package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"tradesync/internal/models"
	"tradesync/internal/service"
)

// ConnectRequest - тело запроса привязки счёта MT5
type ConnectRequest struct {
	UserID           string `json:"user_id" validate:"required,max=128"`
	Server           string `json:"server" validate:"required,mtserver"`
	Login            int64  `json:"login" validate:"required,gt=0"`
	InvestorPassword string `json:"investor_password" validate:"required,min=4,max=72"`
}

// ConnectResponse - ответ на успешную привязку
type ConnectResponse struct {
	OK        bool   `json:"ok"`
	AccountID int64  `json:"account_id"`
	Message   string `json:"message"`
}

// UpsertTradesRequest - сделки, собранные на клиенте
type UpsertTradesRequest struct {
	UserID string             `json:"user_id" validate:"required,max=128"`
	Login  *int64             `json:"login,omitempty" validate:"omitempty,gt=0"`
	Trades []models.RawRecord `json:"trades" validate:"max=10000"`
}

// SyncResponse - итог синхронизации или импорта
type SyncResponse struct {
	OK bool `json:"ok"`
	models.SyncSummary
}

// SyncHandler отвечает за привязку счетов и синхронизацию сделок
//
// Endpoints:
// - POST /api/v1/connect - проверка и сохранение инвесторского пароля
// - GET /api/v1/sync - загрузка истории с терминала или облака
// - POST /api/v1/upsert-trades - импорт сделок клиента без провайдеров
type SyncHandler struct {
	syncService    service.SyncServiceInterface
	accountService service.AccountServiceInterface
}

// NewSyncHandler создает новый SyncHandler
func NewSyncHandler(syncService service.SyncServiceInterface, accountService service.AccountServiceInterface) *SyncHandler {
	return &SyncHandler{
		syncService:    syncService,
		accountService: accountService,
	}
}

// Connect привязывает счёт MT5
// POST /api/v1/connect
//
// Тело запроса:
//
//	{
//	  "user_id": "uuid",
//	  "server": "MetaQuotes-Demo",
//	  "login": 5012345,
//	  "investor_password": "..."
//	}
//
// Ответы:
// - 200 OK: счёт сохранён
// - 400 Bad Request: некорректные данные или терминал отклонил пароль
// - 403 Forbidden: токен выдан другому пользователю
// - 502 Bad Gateway: терминал недоступен
func (h *SyncHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", string(service.KindValidation), err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Server = strings.TrimSpace(req.Server)
	if !validateRequest(w, &req) {
		return
	}
	if !authorizeUser(w, r, req.UserID) {
		return
	}

	account, err := h.accountService.Connect(r.Context(), service.ConnectRequest{
		UserID:   req.UserID,
		Server:   req.Server,
		Login:    req.Login,
		Password: req.InvestorPassword,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ConnectResponse{
		OK:        true,
		AccountID: account.ID,
		Message:   "Connected and credentials stored securely.",
	})
}

// Sync синхронизирует сделки последнего привязанного счёта
// GET /api/v1/sync?user_id=...&login=...
//
// Ответы:
// - 200 OK: {ok, imported, skipped, positions, total_trades, win_rate, source, message}
// - 404 Not Found: счёт не привязан
// - 429 Too Many Requests: лимит синхронизаций, заголовок Retry-After
//
// Заголовок X-RateLimit-Remaining - остаток синхронизаций в окне.
// - 500: пароль не расшифровывается или ошибка БД
// - 502: провайдеры недоступны
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := strings.TrimSpace(query.Get("user_id"))
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required", string(service.KindValidation),
			map[string]string{"user_id": "is required"})
		return
	}

	login, ok := parseLogin(w, query.Get("login"))
	if !ok {
		return
	}
	if !authorizeUser(w, r, userID) {
		return
	}

	summary, err := h.syncService.Sync(r.Context(), userID, login)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if summary.RateRemaining != nil {
		w.Header().Set(RateLimitRemainingHeader, strconv.Itoa(*summary.RateRemaining))
	}
	respondWithJSON(w, http.StatusOK, SyncResponse{OK: true, SyncSummary: *summary})
}

// UpsertTrades импортирует сделки клиента
// POST /api/v1/upsert-trades
//
// Повторный импорт тех же тикетов обновляет строки, дубликатов нет.
func (h *SyncHandler) UpsertTrades(w http.ResponseWriter, r *http.Request) {
	var req UpsertTradesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", string(service.KindValidation), err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if !validateRequest(w, &req) {
		return
	}
	if !authorizeUser(w, r, req.UserID) {
		return
	}

	summary, err := h.syncService.UpsertTrades(r.Context(), req.UserID, req.Login, req.Trades)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SyncResponse{OK: true, SyncSummary: *summary})
}

// parseLogin разбирает необязательный параметр login
func parseLogin(w http.ResponseWriter, raw string) (*int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	login, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || login <= 0 {
		respondWithError(w, http.StatusBadRequest, "login must be a positive integer", string(service.KindValidation),
			map[string]string{"login": "must be a positive integer"})
		return nil, false
	}
	return &login, true
}
