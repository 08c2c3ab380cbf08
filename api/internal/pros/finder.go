// Package pros finds nearby tradespeople for a diagnosed problem.
package pros

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/geo"
	"repair-assistant/api/internal/httpclient"
)

const (
	DefaultNearbyURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	DefaultTopK      = 5
	DefaultRadiusM   = 8000

	// missingRating sorts places without a rating below every real one.
	missingRating = -1.0
)

type Contractor struct {
	Name         string   `json:"name"`
	Rating       *float64 `json:"rating"`
	Address      string   `json:"address"`
	DistanceKm   float64  `json:"distance_km"`
	MapsURL      string   `json:"maps_url"`
	PlaceID      string   `json:"-"`
	ReviewsCount int      `json:"-"`
}

// Place is the subset of a Places API result the finder reads.
type Place struct {
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	Vicinity string `json:"vicinity,omitempty"`
	Address  string `json:"formatted_address,omitempty"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Rating           *float64 `json:"rating,omitempty"`
	UserRatingsTotal int      `json:"user_ratings_total,omitempty"`
}

type nearbyResponse struct {
	Results      []Place `json:"results"`
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

type Finder struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewFinder(apiKey string, timeout time.Duration, limiter *rate.Limiter) *Finder {
	return &Finder{
		apiKey:  apiKey,
		baseURL: DefaultNearbyURL,
		http:    httpclient.New(timeout),
		limiter: limiter,
	}
}

func (f *Finder) WithBaseURL(u string) *Finder {
	f.baseURL = u
	return f
}

// FindNearby queries businesses of the given category around origin, keeps the
// topK best rated and annotates each with its distance from origin.
func (f *Finder) FindNearby(ctx context.Context, category string, origin geo.Coordinates, radiusM, topK int) ([]Contractor, error) {
	if radiusM <= 0 {
		radiusM = DefaultRadiusM
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	places, err := f.nearby(ctx, category, origin, radiusM)
	if err != nil {
		return nil, err
	}
	out := Rank(places, origin, topK)

	log.Info().
		Str("type", category).
		Str("origin", origin.String()).
		Int("radius", radiusM).
		Int("results", len(places)).
		Int("kept", len(out)).
		Msg("places nearby search completed")
	return out, nil
}

func (f *Finder) nearby(ctx context.Context, category string, origin geo.Coordinates, radiusM int) ([]Place, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", origin.Lat, origin.Lng))
	params.Set("radius", fmt.Sprintf("%d", radiusM))
	params.Set("type", category)
	params.Set("key", f.apiKey)

	req, err := http.NewRequest(http.MethodGet, f.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, apperr.New(apperr.Transport, "places.nearby", err)
	}
	log.Debug().Str("url", fmt.Sprintf("%s?location=%f,%f&radius=%d&type=%s&key=***REDACTED***",
		f.baseURL, origin.Lat, origin.Lng, radiusM, category)).Msg("calling places nearby search")

	var out nearbyResponse
	if err := httpclient.DoJSON(ctx, f.http, f.limiter, "places.nearby", req, &out); err != nil {
		return nil, err
	}
	switch out.Status {
	case "OK", "ZERO_RESULTS":
		return out.Results, nil
	default:
		return nil, apperr.Transportf("places.nearby", "API error: %s - %s", out.Status, out.ErrorMessage)
	}
}

func ratingKey(r *float64) float64 {
	if r == nil {
		return missingRating
	}
	return *r
}

// Rank sorts places by rating descending (unrated last, ties keep API order),
// truncates to topK and converts them to contractors.
func Rank(places []Place, origin geo.Coordinates, topK int) []Contractor {
	sorted := append([]Place(nil), places...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ratingKey(sorted[i].Rating) > ratingKey(sorted[j].Rating)
	})
	if topK > 0 && len(sorted) > topK {
		sorted = sorted[:topK]
	}

	out := make([]Contractor, 0, len(sorted))
	for _, p := range sorted {
		loc := geo.Coordinates{Lat: p.Geometry.Location.Lat, Lng: p.Geometry.Location.Lng}
		addr := p.Vicinity
		if addr == "" {
			addr = p.Address
		}
		out = append(out, Contractor{
			Name:         p.Name,
			Rating:       p.Rating,
			Address:      addr,
			DistanceKm:   geo.Haversine(origin, loc),
			MapsURL:      MapsURL(p.PlaceID),
			PlaceID:      p.PlaceID,
			ReviewsCount: p.UserRatingsTotal,
		})
	}
	return out
}

func MapsURL(placeID string) string {
	return "https://www.google.com/maps/place/?q=place_id:" + url.QueryEscape(placeID)
}
