package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/knowable-run/chain-metrics-gateway/internal/cache"
	"github.com/knowable-run/chain-metrics-gateway/internal/chain"
	"github.com/knowable-run/chain-metrics-gateway/internal/location"
	"github.com/knowable-run/chain-metrics-gateway/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) Validators(ctx context.Context) ([]chain.Validator, error) {
	args := m.Called()
	return args.Get(0).([]chain.Validator), args.Error(1)
}

func (m *MockQuerier) Epoch(ctx context.Context) (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockQuerier) EffectiveNativeSupply(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockQuerier) TotalActiveVotingPower(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockQuerier) PGFParameters(ctx context.Context) (chain.PGFParameters, error) {
	args := m.Called()
	return args.Get(0).(chain.PGFParameters), args.Error(1)
}

func (m *MockQuerier) StakingRewardsRate(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockQuerier) TotalStake(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockQuerier) TotalNativeSupply(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockQuerier) Status(ctx context.Context) (*chain.Status, error) {
	args := m.Called()
	status, _ := args.Get(0).(*chain.Status)
	return status, args.Error(1)
}

type staticLocations []location.EnrichedPeerRecord

func (s staticLocations) Locations(context.Context) ([]location.EnrichedPeerRecord, error) {
	return s, nil
}

func newMockQuerier() *MockQuerier {
	q := new(MockQuerier)
	status := &chain.Status{}
	status.NodeInfo.Network = "knowable-mainnet.3f2a"
	status.SyncInfo.LatestBlockHeight = "123456"

	q.On("Validators").Return([]chain.Validator{{Address: "ABCD", VotingPower: "450"}}, nil)
	q.On("Epoch").Return(uint64(87), nil)
	q.On("EffectiveNativeSupply").Return("1800", nil)
	q.On("TotalActiveVotingPower").Return("450", nil)
	q.On("PGFParameters").Return(chain.PGFParameters{PGFInflationRate: "0.1", MaximumNumberOfStewards: 5}, nil)
	q.On("StakingRewardsRate").Return("0.08", nil)
	q.On("TotalStake").Return("500", nil)
	q.On("TotalNativeSupply").Return("2000", nil)
	q.On("Status").Return(status, nil)
	return q
}

func newTestDispatcher(q chain.Querier) *Dispatcher {
	locs := staticLocations{{
		PeerRecord: location.PeerRecord{ID: "abc", IP: "203.0.113.9", Port: "26656"},
		Location:   json.RawMessage(`{"country":"CH"}`),
	}}
	sources := NewSources(q, locs, store.NewMemoryStore(), zap.NewNop())
	return NewDispatcher(sources, zap.NewNop())
}

func get(t *testing.T, h http.Handler, method, path string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	resp := rr.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestRoutes(t *testing.T) {
	for _, r := range Routes {
		parsed, ok := ParseRoute(r.Path())
		require.True(t, ok, r.Path())
		assert.Equal(t, r, parsed)
	}

	_, ok := ParseRoute("/not-a-real-path")
	assert.False(t, ok)
	_, ok = ParseRoute("/epoch/")
	assert.False(t, ok)
	assert.Equal(t, "unknown", Route(99).String())
}

func TestDispatcher(t *testing.T) {
	d := newTestDispatcher(newMockQuerier())

	tests := []struct {
		path string
		want string
	}{
		{"/validators", `[{"address":"ABCD","pub_key":{"type":"","value":""},"voting_power":"450","proposer_priority":""}]`},
		{"/epoch", `{"value":87}`},
		{"/effective_supply", `{"value":"1800"}`},
		{"/total_active_voting_power", `{"value":"450"}`},
		{"/pgf", `{"value":{"stewards":null,"pgf_inflation_rate":"0.1","stewards_inflation_rate":"","maximum_number_of_stewards":5}}`},
		{"/staking_rewards_rate", `{"value":"0.08"}`},
		{"/total_stake", `{"value":"500"}`},
		{"/total_native_supply", `{"value":"2000"}`},
		{"/total_stake_percentage", `{"value":"25.00"}`},
		{"/current_block", `{"value":"123456"}`},
		{"/chain_id", `{"value":"knowable-mainnet.3f2a"}`},
		{"/nodes_locations", `[{"id":"abc","ip":"203.0.113.9","port":"26656","location":{"country":"CH"}}]`},
	}
	require.Len(t, tests, len(Routes))

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, d, http.MethodGet, tt.path)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.JSONEq(t, tt.want, body)
		})
	}
}

func TestDispatcher_CachesValues(t *testing.T) {
	q := newMockQuerier()
	d := newTestDispatcher(q)

	for i := 0; i < 3; i++ {
		resp, _ := get(t, d, http.MethodGet, "/total_stake_percentage")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	q.AssertNumberOfCalls(t, "TotalStake", 1)
	q.AssertNumberOfCalls(t, "TotalNativeSupply", 1)

	// Uncached routes read the node every time.
	get(t, d, http.MethodGet, "/current_block")
	get(t, d, http.MethodGet, "/chain_id")
	q.AssertNumberOfCalls(t, "Status", 2)
}

func TestDispatcher_PercentageFollowsRefresh(t *testing.T) {
	q := newMockQuerier()
	d := newTestDispatcher(q)

	_, body := get(t, d, http.MethodGet, "/total_stake_percentage")
	assert.JSONEq(t, `{"value":"25.00"}`, body)

	q.ExpectedCalls = nil
	q.On("TotalStake").Return("1000", nil)
	_, err := d.sources.TotalStake.Fetch(context.Background(), true)
	require.NoError(t, err)

	_, body = get(t, d, http.MethodGet, "/total_stake_percentage")
	assert.JSONEq(t, `{"value":"50.00"}`, body)
}

func TestDispatcher_Errors(t *testing.T) {
	t.Run("unknown path", func(t *testing.T) {
		d := newTestDispatcher(newMockQuerier())
		resp, body := get(t, d, http.MethodGet, "/not-a-real-path")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
		assert.Equal(t, "Not Found\n", body)
	})

	t.Run("method not allowed", func(t *testing.T) {
		d := newTestDispatcher(newMockQuerier())
		resp, _ := get(t, d, http.MethodPost, "/epoch")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "GET, HEAD", resp.Header.Get("Allow"))
	})

	t.Run("producer failure", func(t *testing.T) {
		q := new(MockQuerier)
		q.On("Epoch").Return(uint64(0), errors.New("node unreachable"))
		d := newTestDispatcher(q)

		resp, body := get(t, d, http.MethodGet, "/epoch")
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.JSONEq(t, `{"error":"fetch epoch: node unreachable"}`, body)
	})

	t.Run("zero supply", func(t *testing.T) {
		q := new(MockQuerier)
		q.On("TotalStake").Return("500", nil)
		q.On("TotalNativeSupply").Return("0", nil)
		d := newTestDispatcher(q)

		resp, body := get(t, d, http.MethodGet, "/total_stake_percentage")
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Contains(t, body, ErrZeroSupply.Error())
	})
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		part, whole string
		want        string
	}{
		{"500", "2000", "25.00"},
		{"1", "3", "33.33"},
		{"2", "3", "66.67"},
		{"0", "10", "0.00"},
		{"10", "10", "100.00"},
		{"1", "8", "12.50"},
		{"1", "200000", "0.00"},
		{"1", "20000", "0.01"},
		{"123456789012345678901234567890", "246913578024691357802469135780", "50.00"},
	}
	for _, tt := range tests {
		t.Run(tt.part+"/"+tt.whole, func(t *testing.T) {
			got, err := Percentage(tt.part, tt.whole)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Percentage("1", "0")
	assert.ErrorIs(t, err, ErrZeroSupply)
	_, err = Percentage("abc", "10")
	assert.Error(t, err)
}

type fakeHealth []cache.Health

func (f fakeHealth) Health() []cache.Health { return f }

func TestServer(t *testing.T) {
	d := newTestDispatcher(newMockQuerier())
	srv := NewServer(d, fakeHealth{{Name: "epoch", LastError: "boom"}})

	resp, body := get(t, srv, http.MethodGet, "/epoch")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"value":87}`, body)

	resp, body = get(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"last_error":"boom"`)

	resp, body = get(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "endpoint_responses_total")

	resp, _ = get(t, srv, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/epoch", endpointLabel(httptest.NewRequest(http.MethodGet, "/epoch", nil)))
	assert.Equal(t, "/metrics", endpointLabel(httptest.NewRequest(http.MethodGet, "/metrics", nil)))
	assert.Equal(t, "unknown", endpointLabel(httptest.NewRequest(http.MethodGet, "/random/123", nil)))
}
