// Package maps resolves spoken destinations and fetches walking directions
// from the Google Geocoding and Directions APIs.
package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"ocular/pkg/config"
	"ocular/pkg/geo"
	"ocular/pkg/request"
	"ocular/pkg/route"
)

const (
	geocodeBase    = "https://maps.googleapis.com/maps/api/geocode/json"
	directionsBase = "https://maps.googleapis.com/maps/api/directions/json"
)

var roadAbbrev = regexp.MustCompile(`\bRd\b\.?`)

// Google implements route.Provider.
type Google struct {
	client         *request.Client
	key            string
	mode           string
	geocodeBase    string
	directionsBase string
}

// NewGoogle returns a provider for cfg.
func NewGoogle(client *request.Client, cfg config.MapsConfig) *Google {
	mode := cfg.Mode
	if mode == "" {
		mode = "walking"
	}
	return &Google{
		client:         client,
		key:            cfg.Key,
		mode:           mode,
		geocodeBase:    geocodeBase,
		directionsBase: directionsBase,
	}
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l latLng) point() geo.Point { return geo.Point{Lat: l.Lat, Lon: l.Lng} }

// Geocode resolves a free-form place name.
func (g *Google) Geocode(ctx context.Context, place string) (geo.Point, error) {
	q := url.Values{}
	q.Set("address", place)
	q.Set("key", g.key)

	body, err := g.client.Get(ctx, g.geocodeBase+"?"+q.Encode(), "geocode:"+strings.ToLower(strings.TrimSpace(place)))
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocode: %w", err)
	}

	var resp struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress string `json:"formatted_address"`
			Geometry         struct {
				Location latLng `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return geo.Point{}, fmt.Errorf("geocode: decode: %w", err)
	}
	if len(resp.Results) == 0 {
		return geo.Point{}, fmt.Errorf("%w: %q not found (%s)", route.ErrNoRoute, place, resp.Status)
	}
	r := resp.Results[0]
	slog.Debug("Geocoded destination", "place", place, "address", r.FormattedAddress)
	return r.Geometry.Location.point(), nil
}

// Route implements route.Provider.
func (g *Google) Route(ctx context.Context, origin geo.Point, destination string) ([]route.Step, error) {
	dest, err := g.Geocode(ctx, destination)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("origin", fmt.Sprintf("%.6f,%.6f", origin.Lat, origin.Lon))
	q.Set("destination", fmt.Sprintf("%.6f,%.6f", dest.Lat, dest.Lon))
	q.Set("mode", g.mode)
	q.Set("key", g.key)

	// Directions depend on the live origin; never cached.
	body, err := g.client.Get(ctx, g.directionsBase+"?"+q.Encode(), "")
	if err != nil {
		return nil, fmt.Errorf("directions: %w", err)
	}

	var resp struct {
		Status string `json:"status"`
		Routes []struct {
			Legs []struct {
				Steps []struct {
					HTMLInstructions string `json:"html_instructions"`
					StartLocation    latLng `json:"start_location"`
					EndLocation      latLng `json:"end_location"`
				} `json:"steps"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("directions: decode: %w", err)
	}
	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 || len(resp.Routes[0].Legs[0].Steps) == 0 {
		return nil, fmt.Errorf("%w: %s", route.ErrNoRoute, resp.Status)
	}

	raw := resp.Routes[0].Legs[0].Steps
	steps := make([]route.Step, 0, len(raw))
	for _, s := range raw {
		steps = append(steps, route.Step{
			Instruction: Sanitize(s.HTMLInstructions),
			Start:       s.StartLocation.point(),
			End:         s.EndLocation.point(),
		})
	}
	slog.Info("Route fetched", "destination", destination, "steps", len(steps))
	return steps, nil
}

// Sanitize turns an html_instructions value into speakable text. Markup is
// dropped, <div> blocks are dropped with their content, entities are
// unescaped and "Rd" is expanded.
func Sanitize(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	divs := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				slog.Debug("Instruction markup truncated", "error", z.Err())
			}
			return finish(sb.String())
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "div" {
				divs++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "div" && divs > 0 {
				divs--
			}
		case html.TextToken:
			if divs == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

func finish(s string) string {
	s = roadAbbrev.ReplaceAllString(s, "Road")
	return strings.Join(strings.Fields(s), " ")
}
