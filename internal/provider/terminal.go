package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradesync/internal/models"
)

// NameTerminal - мост к локально установленному терминалу MT5
const NameTerminal = "terminal"

// TerminalConfig - настройки моста терминала
type TerminalConfig struct {
	BaseURL  string
	APIKey   string // заголовок X-Bridge-Key, если мост его требует
	Lookback time.Duration
}

// TerminalProvider работает с терминалом через HTTP мост:
//
//	POST   /sessions                  вход в счёт, ответ {session_id}
//	GET    /sessions/{id}/account     информация о счёте
//	GET    /sessions/{id}/deals       история сделок, ?from&to в unix секундах
//	GET    /sessions/{id}/positions   открытые позиции
//	DELETE /sessions/{id}             выход
type TerminalProvider struct {
	baseURL  string
	apiKey   string
	lookback time.Duration
	http     *HTTPClient
	now      func() time.Time
}

// NewTerminalProvider создаёт провайдера терминала
func NewTerminalProvider(cfg TerminalConfig, client *HTTPClient) *TerminalProvider {
	if client == nil {
		client = NewHTTPClient(DefaultHTTPClientConfig())
	}
	return &TerminalProvider{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		lookback: cfg.Lookback,
		http:     client,
		now:      time.Now,
	}
}

// Name возвращает имя провайдера
func (p *TerminalProvider) Name() string { return NameTerminal }

type loginRequest struct {
	Server   string `json:"server"`
	Login    int64  `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string `json:"session_id"`
}

type accountInfo struct {
	Login    interface{} `json:"login"`
	Server   string      `json:"server"`
	Currency string      `json:"currency"`
}

type dealsResponse struct {
	Deals []models.RawRecord `json:"deals"`
}

type positionsResponse struct {
	Positions []models.RawRecord `json:"positions"`
}

// Authenticate входит в счёт и сверяет логин, который вернул терминал
func (p *TerminalProvider) Authenticate(ctx context.Context, creds Credentials) (bool, error) {
	authenticated := false
	err := p.session(ctx, creds, func(id string) error {
		var info accountInfo
		if err := p.do(ctx, "account", http.MethodGet, "/sessions/"+url.PathEscape(id)+"/account", nil, nil, &info); err != nil {
			return err
		}
		authenticated = loginMatches(info.Login, creds.Login)
		return nil
	})

	if errors.Is(err, ErrInvalidCredentials) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return authenticated, nil
}

// FetchSince получает сделки за окно [since, now) и открытые позиции
func (p *TerminalProvider) FetchSince(ctx context.Context, creds Credentials, since *time.Time) (*History, error) {
	rng := window(since, p.lookback, p.now())
	history := &History{
		Provider:       NameTerminal,
		DealSource:     models.SourceTerminalDeal,
		PositionSource: models.SourceTerminalPosition,
	}

	err := p.session(ctx, creds, func(id string) error {
		query := url.Values{}
		query.Set("from", strconv.FormatInt(rng.Start.Unix(), 10))
		query.Set("to", strconv.FormatInt(rng.End.Unix(), 10))

		var deals dealsResponse
		if err := p.do(ctx, "deals", http.MethodGet, "/sessions/"+url.PathEscape(id)+"/deals", query, nil, &deals); err != nil {
			return err
		}
		var positions positionsResponse
		if err := p.do(ctx, "positions", http.MethodGet, "/sessions/"+url.PathEscape(id)+"/positions", nil, nil, &positions); err != nil {
			return err
		}

		history.Deals = deals.Deals
		history.Positions = positions.Positions
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (p *TerminalProvider) session(ctx context.Context, creds Credentials, fn func(id string) error) error {
	if p.baseURL == "" {
		return &ProviderError{
			Provider: NameTerminal,
			Op:       "login",
			Message:  "bridge url is empty",
			Original: errors.Join(ErrUnavailable, ErrNotConfigured),
		}
	}
	return withSession(ctx, NameTerminal, func(ctx context.Context) (string, error) {
		return p.login(ctx, creds)
	}, p.logout, fn)
}

func (p *TerminalProvider) login(ctx context.Context, creds Credentials) (string, error) {
	var resp loginResponse
	req := loginRequest{Server: creds.Server, Login: creds.Login, Password: creds.Password}
	if err := p.do(ctx, "login", http.MethodPost, "/sessions", nil, req, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", &ProviderError{
			Provider: NameTerminal,
			Op:       "login",
			Message:  "bridge returned empty session id",
			Original: ErrUnavailable,
		}
	}
	return resp.SessionID, nil
}

func (p *TerminalProvider) logout(ctx context.Context, id string) error {
	return p.do(ctx, "logout", http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil, nil)
}

func (p *TerminalProvider) do(ctx context.Context, op, method, path string, query url.Values, in, out interface{}) error {
	u := p.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	header := http.Header{}
	if p.apiKey != "" {
		header.Set("X-Bridge-Key", p.apiKey)
	}
	return call(ctx, p.http, NameTerminal, op, method, u, header, in, out, true)
}

// loginMatches сравнивает логин из ответа (число или строка) с запрошенным.
// Отсутствие логина в ответе не считается расхождением.
func loginMatches(v interface{}, login int64) bool {
	switch l := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(l) == strconv.FormatInt(login, 10)
	case fmt.Stringer: // json.Number
		return l.String() == strconv.FormatInt(login, 10)
	case float64:
		return int64(l) == login
	}
	return false
}
