package maps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocular/pkg/config"
	"ocular/pkg/geo"
	"ocular/pkg/request"
	"ocular/pkg/route"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Head <b>north</b> on <b>Main Rd</b>", "Head north on Main Road"},
		{`Turn <b>left</b><div style="font-size:0.9em">Destination will be on the right</div>`, "Turn left"},
		{"Walk past O&#39;Brien&amp;Sons", "Walk past O'Brien&Sons"},
		{"Take Rdx Lane", "Take Rdx Lane"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), tt.in)
	}
}

const directionsJSON = `{"status":"OK","routes":[{"legs":[{"steps":[
 {"html_instructions":"Head <b>north</b> on <b>OMR Rd</b>","start_location":{"lat":12.75,"lng":80.19},"end_location":{"lat":12.751,"lng":80.19}},
 {"html_instructions":"Turn <b>right</b>","start_location":{"lat":12.751,"lng":80.19},"end_location":{"lat":12.751,"lng":80.2}}
]}]}]}`

func newGoogle(t *testing.T, directions string) *Google {
	mux := http.NewServeMux()
	mux.HandleFunc("/geocode", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		if r.URL.Query().Get("address") == "nowhere" {
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"Campus","geometry":{"location":{"lat":12.8,"lng":80.2}}}]}`))
	})
	mux.HandleFunc("/directions", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "12.750000,80.190000", q.Get("origin"))
		assert.Equal(t, "12.800000,80.200000", q.Get("destination"))
		assert.Equal(t, "walking", q.Get("mode"))
		_, _ = w.Write([]byte(directions))
	})
	svr := httptest.NewServer(mux)
	t.Cleanup(svr.Close)

	client := request.New(config.RequestConfig{Retries: 1, Timeout: config.Duration(time.Second)}, nil, nil)
	g := NewGoogle(client, config.MapsConfig{Key: "k"})
	g.geocodeBase = svr.URL + "/geocode"
	g.directionsBase = svr.URL + "/directions"
	return g
}

func TestRoute(t *testing.T) {
	g := newGoogle(t, directionsJSON)

	steps, err := g.Route(context.Background(), geo.Point{Lat: 12.75, Lon: 80.19}, "campus")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "Head north on OMR Road", steps[0].Instruction)
	assert.Equal(t, geo.Point{Lat: 12.751, Lon: 80.19}, steps[0].End)
	assert.Equal(t, geo.Point{Lat: 12.751, Lon: 80.2}, steps[1].End)
}

func TestRoute_NoRoute(t *testing.T) {
	g := newGoogle(t, `{"status":"ZERO_RESULTS","routes":[]}`)

	_, err := g.Route(context.Background(), geo.Point{Lat: 12.75, Lon: 80.19}, "campus")
	assert.ErrorIs(t, err, route.ErrNoRoute)

	_, err = g.Route(context.Background(), geo.Point{Lat: 12.75, Lon: 80.19}, "nowhere")
	assert.ErrorIs(t, err, route.ErrNoRoute)
}
