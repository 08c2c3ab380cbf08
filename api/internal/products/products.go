// Package products looks up purchasable parts through a shopping search API.
package products

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/geo"
	"repair-assistant/api/internal/httpclient"
)

const (
	DefaultShoppingURL = "https://google.serper.dev/shopping"

	// DistanceUnavailable is written in place of a distance the shopping API
	// cannot tell us.
	DistanceUnavailable = "unavailable"
	defaultStore        = "Unknown Store"
)

type Product struct {
	PartName     string
	Title        string
	Price        string
	Rating       *float64
	Store        string
	DistanceKm   *float64
	Link         string
	ImageURL     string
	ReviewsCount int
}

// MarshalJSON writes distance_km as a number when known and as
// DistanceUnavailable otherwise.
func (p Product) MarshalJSON() ([]byte, error) {
	var dist any = DistanceUnavailable
	if p.DistanceKm != nil {
		dist = *p.DistanceKm
	}
	return json.Marshal(struct {
		PartName   string   `json:"product_name"`
		Title      string   `json:"title"`
		Price      string   `json:"price"`
		Rating     *float64 `json:"rating"`
		Store      string   `json:"store"`
		DistanceKm any      `json:"distance_km"`
		Link       string   `json:"link"`
	}{p.PartName, p.Title, p.Price, p.Rating, p.Store, dist, p.Link})
}

// shoppingItem is one entry of the "shopping" array. Price stays raw so a
// missing key can be told apart from an empty one.
type shoppingItem struct {
	Title       *string         `json:"title"`
	Link        *string         `json:"link"`
	Price       json.RawMessage `json:"price"`
	Source      string          `json:"source"`
	Rating      *float64        `json:"rating"`
	RatingCount int             `json:"ratingCount"`
	ImageURL    string          `json:"imageUrl"`
}

type shoppingResponse struct {
	Shopping []shoppingItem `json:"shopping"`
}

type Finder struct {
	apiKey  string
	baseURL string
	country string
	http    *http.Client
	limiter *rate.Limiter
}

func NewFinder(apiKey string, timeout time.Duration, limiter *rate.Limiter) *Finder {
	return &Finder{
		apiKey:  apiKey,
		baseURL: DefaultShoppingURL,
		country: "us",
		http:    httpclient.New(timeout),
		limiter: limiter,
	}
}

func (f *Finder) WithBaseURL(u string) *Finder {
	f.baseURL = u
	return f
}

// Search runs one shopping query for partName. origin is accepted for a
// future store-distance lookup; distances are currently left unknown.
func (f *Finder) Search(ctx context.Context, partName string, origin geo.Coordinates) ([]Product, error) {
	partName = strings.TrimSpace(partName)
	if partName == "" {
		return []Product{}, nil
	}

	body, err := json.Marshal(map[string]string{"q": partName, "gl": f.country})
	if err != nil {
		return nil, apperr.New(apperr.Parse, "shopping.search", err)
	}
	req, err := http.NewRequest(http.MethodPost, f.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.Transport, "shopping.search", err)
	}
	req.Header.Set("X-API-KEY", f.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var out shoppingResponse
	if err := httpclient.DoJSON(ctx, f.http, f.limiter, "shopping.search", req, &out); err != nil {
		return nil, err
	}

	res := make([]Product, 0, len(out.Shopping))
	for _, it := range out.Shopping {
		if it.Title == nil || it.Link == nil || len(it.Price) == 0 || string(it.Price) == "null" {
			continue
		}
		store := it.Source
		if store == "" {
			store = defaultStore
		}
		res = append(res, Product{
			PartName:     partName,
			Title:        *it.Title,
			Price:        priceText(it.Price),
			Rating:       it.Rating,
			Store:        store,
			Link:         *it.Link,
			ImageURL:     it.ImageURL,
			ReviewsCount: it.RatingCount,
		})
	}

	log.Info().
		Str("part", partName).
		Int("results", len(out.Shopping)).
		Int("kept", len(res)).
		Str("origin", origin.String()).
		Msg("shopping search completed")
	return res, nil
}

// priceText accepts both "$12.99" and 12.99.
func priceText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// SearchAll concatenates the results for every part in order. A part whose
// search fails contributes nothing.
func (f *Finder) SearchAll(ctx context.Context, parts []string, origin geo.Coordinates) []Product {
	all := []Product{}
	for _, part := range parts {
		ps, err := f.Search(ctx, part, origin)
		if err != nil {
			log.Warn().Err(err).Str("part", part).Msg("shopping search failed, skipping part")
			continue
		}
		all = append(all, ps...)
	}
	return all
}
