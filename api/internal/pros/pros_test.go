package pros

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/geo"
)

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"leaky kitchen faucet":                     Plumber,
		"Toilet keeps running":                     Plumber,
		"Smoke detector chirps":                    Electrician,
		"breaker trips when the sink disposal runs": Electrician,
		"furnace makes a banging noise":            HVAC,
		"Air conditioner blows warm air":           HVAC,
		"missing shingles after the storm":         Roofer,
		"fridge is not cooling":                    ApplianceStore,
		"I need help with my garden":               GeneralContractor,
		"":                                         GeneralContractor,
		"cracked drywall\nnear the door":           GeneralContractor,
	}
	for text, want := range cases {
		assert.Equal(t, want, Classify(text), text)
		assert.Equal(t, Classify(text), Classify(text))
	}
}

func rating(v float64) *float64 { return &v }

func place(id string, r *float64, lat, lng float64) Place {
	p := Place{PlaceID: id, Name: "pro " + id, Vicinity: id + " Main St", Rating: r}
	p.Geometry.Location.Lat = lat
	p.Geometry.Location.Lng = lng
	return p
}

func TestRankMissingRatingLast(t *testing.T) {
	origin := geo.Coordinates{Lat: 34.0522, Lng: -118.2437}
	places := []Place{
		place("a", rating(4.2), 34.06, -118.25),
		place("b", nil, 34.07, -118.25),
		place("c", rating(4.8), 34.05, -118.24),
		place("d", rating(3.0), 34.04, -118.23),
	}

	got := Rank(places, origin, 5)
	require.Len(t, got, 4)
	assert.Equal(t, 4.8, *got[0].Rating)
	assert.Equal(t, 4.2, *got[1].Rating)
	assert.Equal(t, 3.0, *got[2].Rating)
	assert.Nil(t, got[3].Rating)

	for i, c := range got {
		assert.GreaterOrEqual(t, c.DistanceKm, 0.0, i)
		assert.Equal(t, "https://www.google.com/maps/place/?q=place_id:"+c.PlaceID, c.MapsURL)
	}
	assert.Equal(t, "c Main St", got[0].Address)
}

func TestRankZeroRatingBeatsMissing(t *testing.T) {
	got := Rank([]Place{place("x", nil, 0, 0), place("y", rating(0), 0, 0)}, geo.Coordinates{}, 5)
	assert.Equal(t, "y", got[0].PlaceID)
}

func TestRankTruncatesAndKeepsTieOrder(t *testing.T) {
	var places []Place
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		places = append(places, place(id, rating(4.0), 0, 0))
	}
	got := Rank(places, geo.Coordinates{}, 5)
	require.Len(t, got, 5)
	for i, c := range got {
		assert.Equal(t, places[i].PlaceID, c.PlaceID)
	}
}

func TestFindNearby(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "plumber", q.Get("type"))
		assert.Equal(t, "8000", q.Get("radius"))
		assert.Equal(t, "34.052200,-118.243700", q.Get("location"))
		assert.Equal(t, "maps-key", q.Get("key"))
		_, _ = w.Write([]byte(`{"status":"OK","results":[
			{"place_id":"p1","name":"Drip Doctors","vicinity":"1 Elm St","rating":4.1,"user_ratings_total":12,
			 "geometry":{"location":{"lat":34.06,"lng":-118.25}}},
			{"place_id":"p2","name":"Pipe Pros","vicinity":"2 Oak St",
			 "geometry":{"location":{"lat":34.05,"lng":-118.24}}},
			{"place_id":"p3","name":"Flow Masters","vicinity":"3 Ash St","rating":4.9,
			 "geometry":{"location":{"lat":34.0522,"lng":-118.2437}}}]}`))
	}))
	defer srv.Close()

	f := NewFinder("maps-key", time.Second, nil).WithBaseURL(srv.URL)
	got, err := f.FindNearby(context.Background(), Plumber, geo.Coordinates{Lat: 34.0522, Lng: -118.2437}, 8000, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Flow Masters", got[0].Name)
	assert.Equal(t, 0.0, got[0].DistanceKm)
	assert.Equal(t, "Drip Doctors", got[1].Name)
	assert.Equal(t, 12, got[1].ReviewsCount)
}

func TestFindNearbyStatuses(t *testing.T) {
	body := `{"status":"ZERO_RESULTS","results":[]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFinder("k", time.Second, nil).WithBaseURL(srv.URL)
	got, err := f.FindNearby(context.Background(), Roofer, geo.Coordinates{}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	body = `{"status":"OVER_QUERY_LIMIT","error_message":"quota"}`
	_, err = f.FindNearby(context.Background(), Roofer, geo.Coordinates{}, 0, 0)
	assert.True(t, apperr.Is(err, apperr.Transport))
	assert.Contains(t, err.Error(), "OVER_QUERY_LIMIT")
}
