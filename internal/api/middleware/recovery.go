package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	jsoniter "github.com/json-iterator/go"

	"tradesync/pkg/utils"
)

// errorBody совпадает по форме с ошибками handlers
type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	body, _ := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(errorBody{Error: message, Code: code})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Recovery перехватывает panic в handlers, логирует stack trace и отвечает 500.
// Подробности паники клиенту не отдаются.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				utils.L().WithComponent("http").Error("panic in handler",
					utils.String("panic", fmt.Sprint(rec)),
					utils.String("method", r.Method),
					utils.String("path", r.URL.Path),
					utils.RequestID(r.Header.Get(RequestIDHeader)),
					utils.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "Internal server error", "internal_error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
