package products

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/geo"
)

const shoppingBody = `{"shopping":[
	{"title":"Moen 1225 Cartridge","link":"https://shop.example/moen","price":"$24.98","source":"Home Depot","rating":4.6,"ratingCount":812,"imageUrl":"https://img.example/moen.jpg"},
	{"title":"No price","link":"https://shop.example/np"},
	{"link":"https://shop.example/nt","price":"$3.00"},
	{"title":"No link","price":"$3.00"},
	{"title":"Generic cartridge","link":"https://shop.example/gen","price":9.5}
]}`

func TestSearchFiltersIncompleteResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "serper-key", r.Header.Get("X-API-KEY"))
		b, _ := io.ReadAll(r.Body)
		var q map[string]string
		require.NoError(t, json.Unmarshal(b, &q))
		assert.Equal(t, "faucet cartridge", q["q"])
		assert.Equal(t, "us", q["gl"])
		_, _ = w.Write([]byte(shoppingBody))
	}))
	defer srv.Close()

	f := NewFinder("serper-key", time.Second, nil).WithBaseURL(srv.URL)
	got, err := f.Search(context.Background(), " faucet cartridge ", geo.Coordinates{Lat: 34.05, Lng: -118.24})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "faucet cartridge", got[0].PartName)
	assert.Equal(t, "Moen 1225 Cartridge", got[0].Title)
	assert.Equal(t, "$24.98", got[0].Price)
	assert.Equal(t, "Home Depot", got[0].Store)
	assert.Equal(t, 4.6, *got[0].Rating)
	assert.Equal(t, 812, got[0].ReviewsCount)
	assert.Nil(t, got[0].DistanceKm)

	assert.Equal(t, "9.5", got[1].Price)
	assert.Equal(t, defaultStore, got[1].Store)
	assert.Nil(t, got[1].Rating)
}

func TestSearchHTTPErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewFinder("k", time.Second, nil).WithBaseURL(srv.URL).Search(context.Background(), "washer", geo.Coordinates{})
	assert.True(t, apperr.Is(err, apperr.Transport))
}

func TestSearchAllIsolatesFailingParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q map[string]string
		_ = json.NewDecoder(r.Body).Decode(&q)
		if q["q"] == "broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"shopping":[{"title":"` + q["q"] + ` kit","link":"https://l","price":"$1"}]}`))
	}))
	defer srv.Close()

	f := NewFinder("k", time.Second, nil).WithBaseURL(srv.URL)
	got := f.SearchAll(context.Background(), []string{"washer", "broken", "", "tape"}, geo.Coordinates{})
	require.Len(t, got, 2)
	assert.Equal(t, "washer kit", got[0].Title)
	assert.Equal(t, "tape kit", got[1].Title)

	assert.NotNil(t, f.SearchAll(context.Background(), nil, geo.Coordinates{}))
}

func TestProductJSON(t *testing.T) {
	p := Product{PartName: "tape", Title: "PTFE tape", Price: "$2", Store: "Lowe's", Link: "https://l"}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"product_name":"tape","title":"PTFE tape","price":"$2","rating":null,
		"store":"Lowe's","distance_km":"unavailable","link":"https://l"}`, string(b))

	d, r := 1.25, 4.0
	p.DistanceKm, p.Rating = &d, &r
	b, err = json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"distance_km":1.25`)
	assert.Contains(t, string(b), `"rating":4`)
}
