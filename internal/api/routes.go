package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradesync/internal/api/handlers"
	"tradesync/internal/api/middleware"
	"tradesync/internal/service"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	SyncService    service.SyncServiceInterface
	AccountService service.AccountServiceInterface
	PredictService service.PredictServiceInterface

	AllowedOrigins []string
	JWTSecret      []byte // пустой - проверка токенов выключена
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── POST /connect - проверить и сохранить инвесторский пароль MT5
//	├── GET /sync - синхронизировать историю сделок
//	├── POST /upsert-trades - импорт сделок, собранных клиентом
//	└── GET /predict - прогноз по инструменту с учётом тарифа
//
// GET /health - проверка живости
// GET /metrics - метрики Prometheus
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (только /api/v1)
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(deps.AllowedOrigins))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(deps.JWTSecret))

	if deps.SyncService != nil && deps.AccountService != nil {
		syncHandler := handlers.NewSyncHandler(deps.SyncService, deps.AccountService)
		api.HandleFunc("/connect", syncHandler.Connect).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/sync", syncHandler.Sync).Methods(http.MethodGet, http.MethodOptions)
		api.HandleFunc("/upsert-trades", syncHandler.UpsertTrades).Methods(http.MethodPost, http.MethodOptions)
	}

	if deps.PredictService != nil {
		predictHandler := handlers.NewPredictHandler(deps.PredictService)
		api.HandleFunc("/predict", predictHandler.Predict).Methods(http.MethodGet, http.MethodOptions)
	}

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true,"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}
