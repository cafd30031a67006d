package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesync/internal/forecast"
)

func TestPredict_UsesUserPlan(t *testing.T) {
	users := NewMockUserRepository()
	users.plans[testUser] = "pro"
	fc := &MockForecaster{body: []byte(`{"direction":"up"}`)}
	svc := NewPredictService(users, fc, nil)

	body, err := svc.Predict(context.Background(), testUser, "eur/usd")
	require.NoError(t, err)
	assert.JSONEq(t, `{"direction":"up"}`, string(body))
	assert.Equal(t, "EURUSD", fc.lastPair)
	assert.Equal(t, "pro", fc.lastPlan)
}

func TestPredict_CachesPlan(t *testing.T) {
	users := NewMockUserRepository()
	users.plans[testUser] = "free"
	fc := &MockForecaster{body: []byte(`{}`)}
	svc := NewPredictService(users, fc, cache.New(time.Minute, time.Minute))

	for i := 0; i < 3; i++ {
		_, err := svc.Predict(context.Background(), testUser, "EURUSD")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, users.calls)
	assert.Equal(t, 3, fc.calls)

	// смена тарифа видна после сброса кэша
	users.plans[testUser] = "elite"
	svc.InvalidatePlan(testUser)
	_, err := svc.Predict(context.Background(), testUser, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, "elite", fc.lastPlan)
	assert.Equal(t, 2, users.calls)
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		pair     string
		usersErr error
		fcErr    error
		wantKind ErrorKind
	}{
		{name: "missing pair", userID: testUser, pair: "", wantKind: KindValidation},
		{name: "missing user", userID: "", pair: "EURUSD", wantKind: KindValidation},
		{name: "unknown user", userID: "ghost", pair: "EURUSD", wantKind: KindUserNotFound},
		{name: "store down", userID: testUser, pair: "EURUSD", usersErr: errors.New("timeout"), wantKind: KindRepository},
		{name: "forecaster down", userID: testUser, pair: "EURUSD", fcErr: forecast.ErrUnavailable, wantKind: KindForecaster},
		{name: "forecaster rejects", userID: testUser, pair: "EURUSD", fcErr: forecast.ErrRejected, wantKind: KindForecaster},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := NewMockUserRepository()
			users.plans[testUser] = "free"
			users.getErr = tt.usersErr
			fc := &MockForecaster{body: []byte(`{}`), err: tt.fcErr}
			svc := NewPredictService(users, fc, nil)

			_, err := svc.Predict(context.Background(), tt.userID, tt.pair)
			assert.Equal(t, tt.wantKind, syncKind(t, err))
			if tt.fcErr != nil {
				assert.True(t, errors.Is(err, tt.fcErr))
			}
		})
	}
}

func TestPredict_UnknownUserMessage(t *testing.T) {
	svc := NewPredictService(NewMockUserRepository(), &MockForecaster{}, nil)

	_, err := svc.Predict(context.Background(), "ghost", "EURUSD")
	var se *SyncError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "User not found", se.Message)
}
