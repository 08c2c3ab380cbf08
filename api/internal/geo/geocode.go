package geo

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/httpclient"
)

const DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

type geocodeResponse struct {
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// GoogleGeocoder resolves free-form addresses via the Geocoding API. When the
// API returns several matches the first one is used as is.
type GoogleGeocoder struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cache   *lru.Cache[string, Coordinates]
}

func NewGoogleGeocoder(apiKey string, timeout time.Duration, limiter *rate.Limiter, cacheSize int) *GoogleGeocoder {
	g := &GoogleGeocoder{
		apiKey:  apiKey,
		baseURL: DefaultGeocodeURL,
		http:    httpclient.New(timeout),
		limiter: limiter,
	}
	if cacheSize > 0 {
		g.cache, _ = lru.New[string, Coordinates](cacheSize)
	}
	return g
}

// WithBaseURL points the geocoder at another endpoint (tests, proxies).
func (g *GoogleGeocoder) WithBaseURL(u string) *GoogleGeocoder {
	g.baseURL = u
	return g
}

func cacheKey(addr string) string {
	return strings.ToLower(strings.Join(strings.Fields(addr), " "))
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	key := cacheKey(address)
	if g.cache != nil {
		if c, ok := g.cache.Get(key); ok {
			return c, nil
		}
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.apiKey)
	req, err := http.NewRequest(http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Coordinates{}, apperr.New(apperr.Transport, "geocode", err)
	}
	log.Debug().Str("address", address).Str("url", g.baseURL+"?address=...&key=***REDACTED***").Msg("calling geocoding API")

	var out geocodeResponse
	if err := httpclient.DoJSON(ctx, g.http, g.limiter, "geocode", req, &out); err != nil {
		return Coordinates{}, err
	}
	switch out.Status {
	case "OK":
	case "ZERO_RESULTS":
		return Coordinates{}, apperr.Parsef("geocode", "no results for %q", address)
	default:
		return Coordinates{}, apperr.Transportf("geocode", "API error: %s - %s", out.Status, out.ErrorMessage)
	}
	if len(out.Results) == 0 {
		return Coordinates{}, apperr.Parsef("geocode", "no results for %q", address)
	}

	first := out.Results[0].Geometry.Location
	c := Coordinates{Lat: first.Lat, Lng: first.Lng}
	if !c.Valid() {
		return Coordinates{}, apperr.Parsef("geocode", "invalid coordinates %s", c)
	}
	if len(out.Results) > 1 {
		log.Info().Str("address", address).Int("matches", len(out.Results)).
			Str("picked", out.Results[0].FormattedAddress).Msg("ambiguous address, using first match")
	}
	if g.cache != nil {
		g.cache.Add(key, c)
	}
	return c, nil
}
