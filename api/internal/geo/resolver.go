package geo

import (
	"context"
	"strings"

	"github.com/phuslu/log"
)

type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

type Locator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// Source says which input produced a resolved location.
type Source string

const (
	SourceLiteral  Source = "literal"
	SourceAddress  Source = "address"
	SourceOverride Source = "override"
	SourceIP       Source = "ip"
	SourceNone     Source = "none"
)

// Resolver tries, in order: a literal "lat,lng", address geocoding, the
// configured override and IP geolocation. Running out of sources is not an
// error; callers skip location-dependent lookups.
type Resolver struct {
	Geocoder Geocoder
	IP       Locator
	Override string
}

func (r *Resolver) Resolve(ctx context.Context, explicit string) (Coordinates, bool) {
	c, src := r.ResolveSource(ctx, explicit)
	return c, src != SourceNone
}

func (r *Resolver) ResolveSource(ctx context.Context, explicit string) (Coordinates, Source) {
	explicit = strings.TrimSpace(explicit)
	if explicit != "" {
		if c, err := ParseLatLng(explicit); err == nil {
			return c, SourceLiteral
		}
		if r.Geocoder != nil {
			c, err := r.Geocoder.Geocode(ctx, explicit)
			if err == nil {
				return c, SourceAddress
			}
			log.Warn().Err(err).Str("address", explicit).Msg("geocoding failed")
		}
		return Coordinates{}, SourceNone
	}

	if ov := strings.TrimSpace(r.Override); ov != "" {
		if c, err := ParseLatLng(ov); err == nil {
			return c, SourceOverride
		}
		log.Warn().Str("override", ov).Msg("ignoring malformed LOCATION_OVERRIDE")
	}
	if r.IP != nil {
		c, err := r.IP.Locate(ctx)
		if err == nil {
			return c, SourceIP
		}
		log.Warn().Err(err).Msg("ip geolocation failed")
	}
	return Coordinates{}, SourceNone
}
