// Package forecast - HTTP клиент внешнего сервиса прогнозов.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradesync/pkg/retry"
)

var (
	// ErrUnavailable - сервис прогнозов не ответил или ответил 5xx
	ErrUnavailable = errors.New("forecaster unavailable")
	// ErrRejected - сервис отклонил запрос (4xx)
	ErrRejected = errors.New("forecaster rejected request")
)

const maxBodySize = 4 << 20

// Config - настройки клиента
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   retry.Config
}

// Client проксирует запросы прогноза
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   retry.Config
}

// NewClient создаёт клиента. Запрос идемпотентный, поэтому 5xx и сетевые
// ошибки повторяются по cfg.Retry; при нулевом Retry - две попытки.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxRetries == 0 {
		retryCfg = retry.Config{
			MaxRetries:   2,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
			JitterFactor: 0.1,
		}
	}
	retryCfg.RetryIf = func(err error) bool {
		return retry.RetryIfNotContext(err) && errors.Is(err, ErrUnavailable)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		retry:   retryCfg,
	}
}

// Predict запрашивает прогноз по инструменту для тарифа пользователя.
// Возвращает тело ответа как есть (проверенный JSON).
func (c *Client) Predict(ctx context.Context, pair, plan string) ([]byte, error) {
	query := url.Values{}
	query.Set("plan", plan)
	endpoint := c.baseURL + "/api/forecast/" + url.PathEscape(pair) + "?" + query.Encode()

	var body []byte
	err := retry.Do(ctx, func() error {
		var err error
		body, err = c.get(ctx, endpoint)
		return err
	}, c.retry)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Join(ErrUnavailable, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if !jsoniter.Valid(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrUnavailable)
	}
	return body, nil
}
