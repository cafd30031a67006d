package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesync/internal/models"
)

type fakeCloud struct {
	t        *testing.T
	accounts string
	calls    atomic.Int32
	dealPath atomic.Value
	status   int
}

func (c *fakeCloud) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.calls.Add(1)
	if r.Header.Get("auth-token") != "cloud-token" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"UnauthorizedError","message":"invalid token"}`))
		return
	}
	if c.status != 0 {
		w.WriteHeader(c.status)
		return
	}

	switch {
	case r.URL.Path == "/users/current/accounts":
		_, _ = w.Write([]byte(c.accounts))
	case strings.HasPrefix(r.URL.Path, "/users/current/accounts/acc-1/history-deals/time/"):
		c.dealPath.Store(r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"1001","symbol":"EURUSD","type":"DEAL_TYPE_BUY","time":"2024-02-10T10:00:00.000Z"}]`))
	case r.URL.Path == "/users/current/accounts/acc-1/positions":
		_, _ = w.Write([]byte(`[{"id":"2002","symbol":"GBPUSD","type":"POSITION_TYPE_SELL"}]`))
	default:
		c.t.Errorf("unexpected request %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

const deployedAccounts = `[
	{"_id":"acc-0","login":"111","server":"Broker-Demo","state":"DEPLOYED"},
	{"_id":"acc-1","login":"5012345","server":"broker-demo","state":"DEPLOYED"}
]`

func newTestCloud(t *testing.T, c *fakeCloud, token string) *CloudProvider {
	srv := httptest.NewServer(c)
	t.Cleanup(srv.Close)
	p := NewCloudProvider(CloudConfig{BaseURL: srv.URL, Token: token, RPS: 1000}, newHTTPClientFrom(srv.Client()))
	p.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return p
}

func TestCloud_FetchSince(t *testing.T) {
	c := &fakeCloud{t: t, accounts: deployedAccounts}
	p := newTestCloud(t, c, "cloud-token")

	since := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	h, err := p.FetchSince(context.Background(), testCreds, &since)
	require.NoError(t, err)

	assert.Equal(t, NameCloud, h.Provider)
	assert.Equal(t, models.SourceCloudDeal, h.DealSource)
	assert.Equal(t, models.SourceCloudPosition, h.PositionSource)
	require.Len(t, h.Deals, 1)
	require.Len(t, h.Positions, 1)
	assert.Equal(t, "1001", h.Deals[0]["id"])

	path, _ := c.dealPath.Load().(string)
	assert.True(t, strings.HasSuffix(path, "/2024-02-01T12:00:00.000Z/2024-03-01T00:00:00.000Z"), path)
}

func TestCloud_AccountNotDeployed(t *testing.T) {
	c := &fakeCloud{t: t, accounts: `[{"_id":"acc-1","login":5012345,"server":"Broker-Demo","state":"UNDEPLOYED"}]`}
	p := newTestCloud(t, c, "cloud-token")

	h, err := p.FetchSince(context.Background(), testCreds, nil)
	require.NoError(t, err)
	assert.True(t, h.Empty())
	assert.Equal(t, int32(1), c.calls.Load(), "no history requests for an undeployed account")

	ok, err := p.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloud_AccountMissing(t *testing.T) {
	c := &fakeCloud{t: t, accounts: `[]`}
	p := newTestCloud(t, c, "cloud-token")

	h, err := p.FetchSince(context.Background(), testCreds, nil)
	require.NoError(t, err)
	assert.True(t, h.Empty())
}

func TestCloud_Authenticate(t *testing.T) {
	c := &fakeCloud{t: t, accounts: deployedAccounts}
	p := newTestCloud(t, c, "cloud-token")

	ok, err := p.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCloud_BadTokenIsUnavailable(t *testing.T) {
	c := &fakeCloud{t: t, accounts: deployedAccounts}
	p := newTestCloud(t, c, "stale-token")

	_, err := p.FetchSince(context.Background(), testCreds, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, errors.Is(err, ErrInvalidCredentials), "service token failure is not a user credential failure")
}

func TestCloud_ServerError(t *testing.T) {
	c := &fakeCloud{t: t, accounts: deployedAccounts, status: http.StatusBadGateway}
	p := newTestCloud(t, c, "cloud-token")

	_, err := p.FetchSince(context.Background(), testCreds, nil)
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadGateway, perr.Status)
	assert.Equal(t, "accounts", perr.Op)
}

func TestCloud_NoToken(t *testing.T) {
	p := NewCloudProvider(CloudConfig{}, nil)
	_, err := p.FetchSince(context.Background(), testCreds, nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestCloud_ThrottleHonoursContext(t *testing.T) {
	c := &fakeCloud{t: t, accounts: deployedAccounts}
	srv := httptest.NewServer(c)
	defer srv.Close()

	p := NewCloudProvider(CloudConfig{BaseURL: srv.URL, Token: "cloud-token", RPS: 0.01, Burst: 1}, newHTTPClientFrom(srv.Client()))

	// первый запрос забирает единственный токен, следующий ждать не может
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.FetchSince(ctx, testCreds, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestNewSet(t *testing.T) {
	s := NewSet(Config{TerminalURL: "http://localhost:9000"})
	defer s.Close()

	require.NotNil(t, s.Terminal)
	assert.Equal(t, NameTerminal, s.Terminal.Name())
	assert.Nil(t, s.Cloud, "cloud fallback disabled without a token")

	withCloud := NewSet(Config{CloudToken: "x", Timeout: 10 * time.Second})
	defer withCloud.Close()
	require.NotNil(t, withCloud.Cloud)
	assert.Equal(t, NameCloud, withCloud.Cloud.Name())
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rng := window(nil, 0, now)
	assert.Equal(t, now.Add(-DefaultLookback), rng.Start)
	assert.Equal(t, now, rng.End)

	future := now.Add(time.Hour)
	rng = window(&future, 0, now)
	assert.Equal(t, now, rng.Start, "watermark in the future is clamped")

	rng = window(nil, 24*time.Hour, now)
	assert.Equal(t, now.Add(-24*time.Hour), rng.Start)

	local := time.Date(2024, 2, 1, 3, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	rng = window(&local, 0, now)
	assert.Equal(t, time.UTC, rng.Start.Location())
	assert.True(t, rng.Start.Equal(local))
}
