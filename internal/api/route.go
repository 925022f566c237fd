package api

import (
	"net/http"

	"github.com/paulmach/orb/geojson"

	"ocular/pkg/device"
	"ocular/pkg/geo"
)

// RouteHandler serves the active route and the walked trail as GeoJSON.
type RouteHandler struct {
	state *device.State
	trail *geo.Trail
}

// NewRouteHandler creates a RouteHandler. trail may be nil.
func NewRouteHandler(state *device.State, trail *geo.Trail) *RouteHandler {
	return &RouteHandler{state: state, trail: trail}
}

// Handle handles GET /api/route
func (h *RouteHandler) Handle(w http.ResponseWriter, r *http.Request) {
	fc := h.collection(h.state.Snapshot())

	data, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, "failed to encode route", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}

func (h *RouteHandler) collection(snap device.Snapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if nav := snap.Navigation; nav != nil && len(nav.Waypoints) > 1 {
		f := geojson.NewFeature(geo.LineString(nav.Waypoints))
		f.Properties["kind"] = "route"
		f.Properties["destination"] = nav.Destination
		f.Properties["step"] = nav.Step
		f.Properties["steps"] = nav.Steps
		fc.Append(f)

		// Waypoint i is the end of step i-1.
		if nav.Step+1 < len(nav.Waypoints) {
			t := geojson.NewFeature(geo.ToOrb(nav.Waypoints[nav.Step+1]))
			t.Properties["kind"] = "target"
			fc.Append(t)
		}
	}

	if h.trail != nil {
		if pts := h.trail.Points(); len(pts) > 1 {
			f := geojson.NewFeature(geo.LineString(pts))
			f.Properties["kind"] = "trail"
			f.Properties["length_m"] = h.trail.Length()
			fc.Append(f)
		}
	}

	if snap.HasFix() {
		f := geojson.NewFeature(geo.ToOrb(snap.Position))
		f.Properties["kind"] = "position"
		if snap.HeadingValid {
			f.Properties["heading"] = snap.Heading
		}
		f.Properties["emergency"] = snap.Emergency.Active
		fc.Append(f)
	}

	return fc
}
