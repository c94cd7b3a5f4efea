package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/indextracker/internal/clients/paper"
	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/modules/portfolio"
	"github.com/aristath/indextracker/internal/modules/universe"
	testingpkg "github.com/aristath/indextracker/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router chi.Router
	broker *paper.Broker
	cache  *portfolio.IndexCache
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "universe")
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	broker := paper.NewBroker(0, log)
	indexRepo := universe.NewIndexRepository(db.Conn(), log)
	instrumentRepo := universe.NewInstrumentRepository(db.Conn(), broker, log)
	cache := portfolio.NewIndexCache(indexRepo, nil, log)

	router := chi.NewRouter()
	NewUniverseHandlers(indexRepo, instrumentRepo, cache, log, broker).RegisterRoutes(router)

	return &fixture{router: router, broker: broker, cache: cache}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Code != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	}
	return w, response
}

func composition(date string) SaveIndexRequest {
	return SaveIndexRequest{
		Date: date,
		Constituents: []domain.IndexConstituent{
			{Ticker: "SBER", ShortName: "Sberbank", Weight: 60, LotSize: 10, LastPrice: 250},
			{Ticker: "GAZP", ShortName: "Gazprom", Weight: 40, LotSize: 10, LastPrice: 160},
		},
	}
}

func TestHandleSaveAndGetIndex(t *testing.T) {
	f := setup(t)

	w, response := f.do(t, "PUT", "/indices/imoex", composition("2026-10-19"))
	require.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "IMOEX", data["name"])
	assert.Equal(t, 2.0, data["constituents"])

	w, response = f.do(t, "GET", "/indices/IMOEX", nil)
	require.Equal(t, http.StatusOK, w.Code)
	index := response["data"].(map[string]interface{})
	assert.Equal(t, "2026-10-19", index["date"])
	constituents := index["constituents"].([]interface{})
	require.Len(t, constituents, 2)
	assert.Equal(t, "SBER", constituents[0].(map[string]interface{})["ticker"])

	w, response = f.do(t, "GET", "/indices/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, response["data"], 1)
}

func TestHandleSaveIndex_NotifiesObservers(t *testing.T) {
	f := setup(t)

	w, _ := f.do(t, "PUT", "/indices/IMOEX", composition("2026-10-19"))
	require.Equal(t, http.StatusOK, w.Code)

	instruments, err := f.broker.ListInstruments(context.Background())
	require.NoError(t, err)
	require.Len(t, instruments, 2)

	w, response := f.do(t, "POST", "/instruments/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, response["data"].(map[string]interface{})["refreshed"])

	w, response = f.do(t, "GET", "/instruments/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, response["data"], 2)
}

func TestHandleSaveIndex_InvalidatesCache(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.do(t, "PUT", "/indices/IMOEX", composition("2026-10-18"))
	cached, err := f.cache.Get(ctx, "IMOEX")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-18", cached.Date)

	f.do(t, "PUT", "/indices/IMOEX", composition("2026-10-19"))
	cached, err = f.cache.Get(ctx, "IMOEX")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", cached.Date)
}

func TestHandleSaveIndex_Invalid(t *testing.T) {
	f := setup(t)

	testCases := []struct {
		name   string
		mutate func(*SaveIndexRequest)
	}{
		{"bad date", func(r *SaveIndexRequest) { r.Date = "19.10.2026" }},
		{"weight out of range", func(r *SaveIndexRequest) { r.Constituents[0].Weight = 120 }},
		{"duplicate ticker", func(r *SaveIndexRequest) { r.Constituents[1].Ticker = "SBER" }},
		{"zero lot size", func(r *SaveIndexRequest) { r.Constituents[0].LotSize = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := composition("2026-10-19")
			tc.mutate(&req)
			w, response := f.do(t, "PUT", "/indices/IMOEX", req)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Contains(t, response, "error")
		})
	}

	w, _ := f.do(t, "GET", "/indices/IMOEX", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleInvalidateAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.do(t, "PUT", "/indices/IMOEX", composition("2026-10-19"))
	_, err := f.cache.Get(ctx, "IMOEX")
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.Stats().Entries)

	w, response := f.do(t, "DELETE", "/indices/imoex/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IMOEX", response["data"].(map[string]interface{})["invalidated"])
	assert.Equal(t, 0, f.cache.Stats().Entries)

	_, err = f.cache.Get(ctx, "IMOEX")
	require.NoError(t, err)
	w, _ = f.do(t, "DELETE", "/indices/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.cache.Stats().Entries)

	w, _ = f.do(t, "DELETE", "/indices/IMOEX", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, err = f.cache.Get(ctx, "IMOEX")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}
