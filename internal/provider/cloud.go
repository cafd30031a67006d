package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tradesync/internal/models"
)

// NameCloud - облачный REST API (MetaApi)
const NameCloud = "cloud"

// DefaultCloudURL - клиентский API MetaApi
const DefaultCloudURL = "https://mt-client-api-v1.agiliumtrade.agiliumtrade.ai"

// CloudConfig - настройки облачного провайдера
type CloudConfig struct {
	BaseURL  string
	Token    string
	RPS      float64 // ограничение исходящих запросов, по умолчанию 5/с
	Burst    int
	Lookback time.Duration
}

// CloudProvider получает историю через облачный API по токену сервиса.
// Счёт должен быть заранее подключён в облаке: пароль пользователя сюда не передаётся,
// счёт ищется по логину и серверу. Не найденный или не развёрнутый счёт даёт
// пустой результат.
type CloudProvider struct {
	baseURL  string
	token    string
	lookback time.Duration
	limiter  *rate.Limiter
	http     *HTTPClient
	now      func() time.Time
}

// NewCloudProvider создаёт облачного провайдера
func NewCloudProvider(cfg CloudConfig, client *HTTPClient) *CloudProvider {
	if client == nil {
		client = NewHTTPClient(DefaultHTTPClientConfig())
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultCloudURL
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &CloudProvider{
		baseURL:  baseURL,
		token:    cfg.Token,
		lookback: cfg.Lookback,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		http:     client,
		now:      time.Now,
	}
}

// Name возвращает имя провайдера
func (p *CloudProvider) Name() string { return NameCloud }

// cloudAccount - счёт в облаке
type cloudAccount struct {
	ID               string      `json:"_id"`
	Login            interface{} `json:"login"`
	Server           string      `json:"server"`
	State            string      `json:"state"`
	ConnectionStatus string      `json:"connectionStatus"`
}

const stateDeployed = "DEPLOYED"

// Authenticate проверяет, что счёт подключён и развёрнут в облаке.
// Пароль облако не проверяет, поэтому подключение счёта идёт через терминал.
func (p *CloudProvider) Authenticate(ctx context.Context, creds Credentials) (bool, error) {
	account, err := p.resolveAccount(ctx, creds)
	if err != nil {
		return false, err
	}
	return account != nil, nil
}

// FetchSince получает сделки за окно [since, now) и открытые позиции
func (p *CloudProvider) FetchSince(ctx context.Context, creds Credentials, since *time.Time) (*History, error) {
	history := &History{
		Provider:       NameCloud,
		DealSource:     models.SourceCloudDeal,
		PositionSource: models.SourceCloudPosition,
	}

	account, err := p.resolveAccount(ctx, creds)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return history, nil
	}

	rng := window(since, p.lookback, p.now())
	base := "/users/current/accounts/" + url.PathEscape(account.ID)

	var deals []models.RawRecord
	dealsPath := base + "/history-deals/time/" +
		url.PathEscape(rng.Start.Format(isoMillis)) + "/" + url.PathEscape(rng.End.Format(isoMillis))
	if err := p.do(ctx, "deals", dealsPath, &deals); err != nil {
		return nil, err
	}

	var positions []models.RawRecord
	if err := p.do(ctx, "positions", base+"/positions", &positions); err != nil {
		return nil, err
	}

	history.Deals = deals
	history.Positions = positions
	return history, nil
}

const isoMillis = "2006-01-02T15:04:05.000Z"

// resolveAccount ищет развёрнутый счёт по логину и серверу (nil - не найден)
func (p *CloudProvider) resolveAccount(ctx context.Context, creds Credentials) (*cloudAccount, error) {
	if p.token == "" {
		return nil, &ProviderError{
			Provider: NameCloud,
			Op:       "accounts",
			Message:  "api token is empty",
			Original: errors.Join(ErrUnavailable, ErrNotConfigured),
		}
	}

	var accounts []cloudAccount
	if err := p.do(ctx, "accounts", "/users/current/accounts", &accounts); err != nil {
		return nil, err
	}

	for i := range accounts {
		a := &accounts[i]
		if !loginMatches(a.Login, creds.Login) || a.Login == nil {
			continue
		}
		if creds.Server != "" && !strings.EqualFold(strings.TrimSpace(a.Server), strings.TrimSpace(creds.Server)) {
			continue
		}
		if !strings.EqualFold(a.State, stateDeployed) {
			return nil, nil
		}
		return a, nil
	}
	return nil, nil
}

func (p *CloudProvider) do(ctx context.Context, op, path string, out interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return &ProviderError{
			Provider: NameCloud,
			Op:       op,
			Message:  "throttle wait aborted",
			Original: errors.Join(ErrUnavailable, err),
		}
	}
	header := http.Header{}
	header.Set("auth-token", p.token)
	return call(ctx, p.http, NameCloud, op, http.MethodGet, p.baseURL+path, header, nil, out, false)
}
