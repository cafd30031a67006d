package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"tradesync/internal/metrics"
	"tradesync/pkg/utils"
)

// releaseTimeout - сколько ждать освобождения сессии после отмены вызывающего
const releaseTimeout = 5 * time.Second

// withSession открывает сессию, выполняет fn и всегда освобождает сессию.
// Освобождение идёт на отвязанном от отмены контексте: сессия закрывается
// и при истёкшем дедлайне вызывающего, и при панике внутри fn.
func withSession(
	ctx context.Context,
	provider string,
	acquire func(ctx context.Context) (string, error),
	release func(ctx context.Context, id string) error,
	fn func(id string) error,
) error {
	id, err := acquire(ctx)
	if err != nil {
		return err
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if rerr := release(releaseCtx, id); rerr != nil {
			utils.L().Warn("failed to release provider session",
				utils.Provider(provider),
				utils.String("session_id", id),
				utils.Err(rerr),
			)
		}
	}()

	return fn(id)
}

// apiError - тело ошибки провайдера
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func parseAPIError(body []byte) apiError {
	var e apiError
	_ = codec.Unmarshal(body, &e)
	if e.Message == "" {
		e.Message = e.Error
	}
	return e
}

const codeInvalidCredentials = "INVALID_CREDENTIALS"

// call выполняет запрос, пишет метрики и приводит ответ к ошибкам пакета.
// loginRejects - отвечает ли эндпоинт 401/403 на неверный пароль
// (у облачного API 401 означает неверный токен сервиса, не пользователя).
func call(
	ctx context.Context,
	hc *HTTPClient,
	provider, op, method, url string,
	header http.Header,
	in, out interface{},
	loginRejects bool,
) error {
	start := time.Now()
	resp, err := hc.doJSON(ctx, method, url, header, in, out)
	perr := classify(provider, op, resp, err, loginRejects)

	result := "ok"
	switch {
	case errors.Is(perr, ErrInvalidCredentials):
		result = "rejected"
	case perr != nil:
		result = "error"
	}
	metrics.RecordProviderRequest(provider, op, result, time.Since(start))

	return perr
}

func classify(provider, op string, resp *response, err error, loginRejects bool) error {
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.Status
		}
		return &ProviderError{
			Provider: provider,
			Op:       op,
			Status:   status,
			Message:  "request failed",
			Original: errors.Join(ErrUnavailable, err),
		}
	}
	if resp.OK() {
		return nil
	}

	body := parseAPIError(resp.Body)
	perr := &ProviderError{
		Provider: provider,
		Op:       op,
		Status:   resp.Status,
		Code:     body.Code,
		Message:  body.Message,
	}
	if perr.Message == "" {
		perr.Message = http.StatusText(resp.Status)
	}

	rejected := strings.EqualFold(body.Code, codeInvalidCredentials) ||
		(loginRejects && (resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden))
	if rejected {
		perr.Original = ErrInvalidCredentials
	} else {
		perr.Original = ErrUnavailable
	}
	return perr
}
