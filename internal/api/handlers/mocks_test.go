package handlers

import (
	"context"
	"errors"
	"sync"

	"tradesync/internal/models"
	"tradesync/internal/service"
)

var ErrMockDatabase = errors.New("mock database error")

// ============ Mock SyncService ============

type MockSyncService struct {
	mu        sync.Mutex
	summary   *models.SyncSummary
	err       error
	lastUser  string
	lastLogin *int64
	lastCount int
	calls     int
}

func NewMockSyncService() *MockSyncService {
	return &MockSyncService{summary: &models.SyncSummary{}}
}

func (m *MockSyncService) Sync(ctx context.Context, userID string, login *int64) (*models.SyncSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastUser = userID
	m.lastLogin = login
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

func (m *MockSyncService) UpsertTrades(ctx context.Context, userID string, login *int64, records []models.RawRecord) (*models.SyncSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastUser = userID
	m.lastLogin = login
	m.lastCount = len(records)
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

// ============ Mock AccountService ============

type MockAccountService struct {
	mu      sync.Mutex
	nextID  int64
	err     error
	lastReq service.ConnectRequest
	calls   int
}

func NewMockAccountService() *MockAccountService {
	return &MockAccountService{nextID: 1}
}

func (m *MockAccountService) Connect(ctx context.Context, req service.ConnectRequest) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	acc := &models.Account{ID: m.nextID, UserID: req.UserID, Server: req.Server, Login: req.Login}
	m.nextID++
	return acc, nil
}

// ============ Mock PredictService ============

type MockPredictService struct {
	body     []byte
	err      error
	lastUser string
	lastPair string
}

func (m *MockPredictService) Predict(ctx context.Context, userID, pair string) ([]byte, error) {
	m.lastUser = userID
	m.lastPair = pair
	if m.err != nil {
		return nil, m.err
	}
	return m.body, nil
}
