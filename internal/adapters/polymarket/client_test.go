package polymarket_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/alejandrodnm/polyflow/internal/adapters/polymarket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type fakeTrade struct {
	ConditionID     string `json:"conditionId"`
	Asset           string `json:"asset"`
	Side            string `json:"side"`
	Price           string `json:"price"`
	Size            string `json:"size"`
	Timestamp       int64  `json:"timestamp"`
	Outcome         string `json:"outcome"`
	ProxyWallet     string `json:"proxyWallet"`
	Slug            string `json:"slug"`
	TransactionHash string `json:"transactionHash"`
}

func makeFakeTrade(i int) fakeTrade {
	return fakeTrade{
		ConditionID:     "0xcond",
		Asset:           "tok",
		Side:            "BUY",
		Price:           "0.45",
		Size:            strconv.Itoa(100 + i),
		Timestamp:       1735689600 + int64(i)*60,
		Outcome:         "Yes",
		ProxyWallet:     fmt.Sprintf("0xwallet%d", i),
		Slug:            "some-market",
		TransactionHash: fmt.Sprintf("0xhash%d", i),
	}
}

// --- tests ---

func TestFetchTrades_PaginatesAndStops(t *testing.T) {
	var offsets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trades", r.URL.Path)
		require.Equal(t, "tok", r.URL.Query().Get("asset"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, offset)

		// Primera página llena, segunda corta → fin de paginación.
		count := 500
		if offset > 0 {
			count = 40
		}
		page := make([]fakeTrade, 0, count)
		for i := 0; i < count; i++ {
			page = append(page, makeFakeTrade(offset+i))
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, srv.URL)
	records, err := client.FetchTradesByAsset(context.Background(), "tok", 2000)
	require.NoError(t, err)

	assert.Len(t, records, 540)
	assert.Equal(t, []int{0, 500}, offsets)
	assert.Equal(t, "tok", records[0].Asset)
	assert.Equal(t, "0xwallet0", records[0].Wallet)
	assert.Equal(t, "0xcond", records[0].ConditionID)
}

func TestFetchTrades_DeduplicatesAcrossPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if offset > 0 {
			json.NewEncoder(w).Encode([]fakeTrade{})
			return
		}
		// La misma fila repetida: el offset de la API no es estable.
		dup := makeFakeTrade(1)
		json.NewEncoder(w).Encode([]fakeTrade{makeFakeTrade(0), dup, dup})
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, srv.URL)
	records, err := client.FetchTradesByAsset(context.Background(), "tok", 100)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFetchTrades_TruncatesToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		page := make([]fakeTrade, 0, 500)
		for i := 0; i < 500; i++ {
			page = append(page, makeFakeTrade(offset+i))
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, srv.URL)
	records, err := client.FetchTradesByAsset(context.Background(), "tok", 750)
	require.NoError(t, err)
	assert.Len(t, records, 750)
}

func TestFetchTrades_ClientErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"bad market"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, srv.URL)
	_, err := client.FetchTradesByCondition(context.Background(), "0xcond", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client error 400")
}

func TestFetchTrades_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]fakeTrade{makeFakeTrade(0)})
	}))
	defer srv.Close()

	client := polymarket.NewClient(srv.URL, srv.URL)
	records, err := client.FetchTradesByAsset(context.Background(), "tok", 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, calls)
}
