package service

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"tradesync/internal/models"
	"tradesync/internal/provider"
	"tradesync/internal/repository"
)

// ============ Mock AccountRepository ============

type MockAccountRepository struct {
	mu        sync.Mutex
	accounts  []*models.Account
	createErr error
	findErr   error
	updateErr error
	nextID    int64
	clock     func() time.Time
	// watermarks - история вызовов UpdateWatermark
	watermarks []time.Time
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{nextID: 1, clock: time.Now}
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	account.ID = m.nextID
	m.nextID++
	account.CreatedAt = m.clock()
	stored := *account
	m.accounts = append(m.accounts, &stored)
	return nil
}

func (m *MockAccountRepository) FindLatest(ctx context.Context, userID string, login *int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var matches []*models.Account
	for _, a := range m.accounts {
		if a.UserID != userID {
			continue
		}
		if login != nil && a.Login != *login {
			continue
		}
		matches = append(matches, a)
	}
	if len(matches) == 0 {
		return nil, repository.ErrAccountNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	found := *matches[0]
	return &found, nil
}

func (m *MockAccountRepository) UpdateWatermark(ctx context.Context, id int64, watermark time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, a := range m.accounts {
		if a.ID == id {
			w := watermark
			a.LastSync = &w
			m.watermarks = append(m.watermarks, w)
			return nil
		}
	}
	return repository.ErrAccountNotFound
}

func (m *MockAccountRepository) get(id int64) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// ============ Mock TradeRepository ============

type tradeKey struct {
	userID string
	ticket int64
}

type MockTradeRepository struct {
	mu        sync.Mutex
	rows      map[tradeKey]*models.Trade
	upsertErr error
	calls     int
}

func NewMockTradeRepository() *MockTradeRepository {
	return &MockTradeRepository{rows: make(map[tradeKey]*models.Trade)}
}

// Upsert повторяет счёт Postgres: вставка или строка с изменёнными данными,
// повтор без изменений не считается
func (m *MockTradeRepository) Upsert(ctx context.Context, trades []*models.Trade) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	n := 0
	for _, t := range trades {
		key := tradeKey{userID: t.UserID, ticket: t.ExternalID}
		incoming := *t
		if prev, ok := m.rows[key]; ok {
			stored := *prev
			stored.ID, stored.CreatedAt, stored.UpdatedAt = incoming.ID, incoming.CreatedAt, incoming.UpdatedAt
			if reflect.DeepEqual(stored, incoming) {
				continue
			}
		}
		m.rows[key] = &incoming
		n++
	}
	return n, nil
}

func (m *MockTradeRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MockTradeRepository) row(userID string, ticket int64) *models.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[tradeKey{userID: userID, ticket: ticket}]
}

// ============ Mock UserRepository ============

type MockUserRepository struct {
	mu     sync.Mutex
	plans  map[string]string
	getErr error
	calls  int
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{plans: make(map[string]string)}
}

func (m *MockUserRepository) GetPlan(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.getErr != nil {
		return "", m.getErr
	}
	plan, ok := m.plans[userID]
	if !ok {
		return "", repository.ErrUserNotFound
	}
	return plan, nil
}

// ============ Mock HistoryProvider ============

type MockProvider struct {
	mu       sync.Mutex
	name     string
	history  func(since *time.Time) *provider.History
	fetchErr error
	authOK   bool
	authErr  error

	fetchCalls int
	sinces     []*time.Time
	lastCreds  provider.Credentials
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name, authOK: true}
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Authenticate(ctx context.Context, creds provider.Credentials) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCreds = creds
	if m.authErr != nil {
		return false, m.authErr
	}
	return m.authOK, nil
}

func (m *MockProvider) FetchSince(ctx context.Context, creds provider.Credentials, since *time.Time) (*provider.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	m.sinces = append(m.sinces, since)
	m.lastCreds = creds
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if m.history == nil {
		return &provider.History{Provider: m.name}, nil
	}
	return m.history(since), nil
}

func (m *MockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

// ============ Mock Forecaster ============

type MockForecaster struct {
	mu       sync.Mutex
	body     []byte
	err      error
	lastPair string
	lastPlan string
	calls    int
}

func (m *MockForecaster) Predict(ctx context.Context, pair, plan string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastPair = pair
	m.lastPlan = plan
	if m.err != nil {
		return nil, m.err
	}
	return m.body, nil
}

// ============ Fixtures ============

// terminalDeal - сделка в форме ответа моста терминала
func terminalDeal(ticket int64, symbol string, profit float64) models.RawRecord {
	return models.RawRecord{
		"ticket": ticket,
		"symbol": symbol,
		"type":   int64(0),
		"volume": 0.1,
		"price":  1.1,
		"profit": profit,
		"time":   int64(1700000000),
	}
}

func terminalHistory(deals ...models.RawRecord) *provider.History {
	return &provider.History{
		Provider:       provider.NameTerminal,
		Deals:          deals,
		DealSource:     models.SourceTerminalDeal,
		PositionSource: models.SourceTerminalPosition,
	}
}

func terminalPosition(ticket int64, symbol string, sl, profit float64) models.RawRecord {
	return models.RawRecord{
		"ticket":     ticket,
		"symbol":     symbol,
		"type":       int64(0),
		"volume":     0.2,
		"price_open": 1.1,
		"sl":         sl,
		"profit":     profit,
		"time":       int64(1700000000),
	}
}

func cloudHistory(deals ...models.RawRecord) *provider.History {
	return &provider.History{
		Provider:       provider.NameCloud,
		Deals:          deals,
		DealSource:     models.SourceCloudDeal,
		PositionSource: models.SourceCloudPosition,
	}
}
