package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// codec декодирует числа как json.Number: тикеты брокера не теряют точность
var codec = jsoniter.Config{
	UseNumber:              true,
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// maxBodySize - ограничение на размер ответа провайдера
const maxBodySize = 32 << 20

// HTTPClientConfig содержит настройки HTTP клиента для провайдеров
type HTTPClientConfig struct {
	// Таймауты
	ConnectTimeout        time.Duration // установка TCP соединения (default: 5s)
	TLSHandshakeTimeout   time.Duration // TLS handshake (default: 5s)
	ResponseHeaderTimeout time.Duration // ожидание заголовков ответа (default: 20s)
	TotalTimeout          time.Duration // общий таймаут запроса (default: 30s)

	// Connection pooling
	MaxIdleConns        int           // default: 50
	MaxIdleConnsPerHost int           // default: 10
	IdleConnTimeout     time.Duration // default: 90s

	KeepAliveInterval time.Duration // default: 30s
}

// DefaultHTTPClientConfig возвращает конфигурацию по умолчанию.
// История за 90 дней у облачного API может отдаваться долго, поэтому
// таймаут заголовков больше, чем у обычных REST вызовов.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout:        5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		TotalTimeout:          30 * time.Second,

		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		KeepAliveInterval: 30 * time.Second,
	}
}

// HTTPClient - HTTP клиент провайдеров с пулом соединений и JSON кодеком
type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// NewHTTPClient создаёт новый HTTP клиент с заданной конфигурацией
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: config.KeepAliveInterval,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.TotalTimeout,
		},
		config: config,
	}
}

// newHTTPClientFrom оборачивает готовый http.Client (httptest сервер в тестах)
func newHTTPClientFrom(c *http.Client) *HTTPClient {
	return &HTTPClient{client: c, config: DefaultHTTPClientConfig()}
}

// response - ответ провайдера: статус и тело для разбора ошибки
type response struct {
	Status int
	Body   []byte
}

// OK - статус 2xx
func (r *response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// doJSON выполняет запрос с JSON телом и декодирует успешный ответ в out.
// Ответ не 2xx не является ошибкой транспорта: статус и тело возвращаются вызывающему.
func (hc *HTTPClient) doJSON(ctx context.Context, method, url string, header http.Header, in, out interface{}) (*response, error) {
	var body io.Reader
	if in != nil {
		payload, err := codec.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	r := &response{Status: resp.StatusCode, Body: raw}
	if r.OK() && out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := codec.Unmarshal(raw, out); err != nil {
			return r, fmt.Errorf("decode response: %w", err)
		}
	}
	return r, nil
}

// Close закрывает все idle соединения.
// Вызывается при graceful shutdown.
func (hc *HTTPClient) Close() {
	hc.client.CloseIdleConnections()
}
