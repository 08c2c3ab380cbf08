package geo

import (
	"context"
	"net/http"
	"time"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/httpclient"
)

const DefaultIPLookupURL = "http://ip-api.com/json"

// IPLocator approximates the caller's position from its public IP.
type IPLocator struct {
	url  string
	http *http.Client
}

func NewIPLocator(timeout time.Duration) *IPLocator {
	return &IPLocator{url: DefaultIPLookupURL, http: httpclient.New(timeout)}
}

func (l *IPLocator) WithURL(u string) *IPLocator {
	l.url = u
	return l
}

func (l *IPLocator) Locate(ctx context.Context) (Coordinates, error) {
	req, err := http.NewRequest(http.MethodGet, l.url, nil)
	if err != nil {
		return Coordinates{}, apperr.New(apperr.Transport, "iplocate", err)
	}
	var out struct {
		Status  string  `json:"status"`
		Message string  `json:"message"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	}
	if err := httpclient.DoJSON(ctx, l.http, nil, "iplocate", req, &out); err != nil {
		return Coordinates{}, err
	}
	if out.Status != "success" {
		return Coordinates{}, apperr.Transportf("iplocate", "status %q: %s", out.Status, out.Message)
	}
	c := Coordinates{Lat: out.Lat, Lng: out.Lon}
	if !c.Valid() {
		return Coordinates{}, apperr.Parsef("iplocate", "invalid coordinates %s", c)
	}
	return c, nil
}
