package provider

import "time"

// Config - настройки обоих провайдеров
type Config struct {
	TerminalURL string
	TerminalKey string
	CloudURL    string
	CloudToken  string
	CloudRPS    float64
	Lookback    time.Duration
	Timeout     time.Duration // общий таймаут одного HTTP запроса
}

// Set - провайдеры, собранные из конфигурации.
// Cloud равен nil, если токен облака не задан: резервный источник отключён.
type Set struct {
	Terminal HistoryProvider
	Cloud    HistoryProvider

	client *HTTPClient
}

// NewSet создаёт провайдеров с общим HTTP клиентом
func NewSet(cfg Config) *Set {
	httpCfg := DefaultHTTPClientConfig()
	if cfg.Timeout > 0 {
		httpCfg.TotalTimeout = cfg.Timeout
		if httpCfg.ResponseHeaderTimeout > cfg.Timeout {
			httpCfg.ResponseHeaderTimeout = cfg.Timeout
		}
	}
	client := NewHTTPClient(httpCfg)

	s := &Set{client: client}
	s.Terminal = NewTerminalProvider(TerminalConfig{
		BaseURL:  cfg.TerminalURL,
		APIKey:   cfg.TerminalKey,
		Lookback: cfg.Lookback,
	}, client)

	if cfg.CloudToken != "" {
		s.Cloud = NewCloudProvider(CloudConfig{
			BaseURL:  cfg.CloudURL,
			Token:    cfg.CloudToken,
			RPS:      cfg.CloudRPS,
			Lookback: cfg.Lookback,
		}, client)
	}
	return s
}

// Close закрывает соединения общего клиента
func (s *Set) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
