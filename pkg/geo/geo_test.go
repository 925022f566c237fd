package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		p1   Point
		p2   Point
		want float64
	}{
		{
			name: "Same Point",
			p1:   Point{Lat: 12.9716, Lon: 77.5946},
			p2:   Point{Lat: 12.9716, Lon: 77.5946},
			want: 0,
		},
		{
			name: "San Francisco to New York",
			p1:   Point{Lat: 37.7749, Lon: -122.4194},
			p2:   Point{Lat: 40.7128, Lon: -74.0060},
			want: 4130000, // Approx 4130km
		},
		{
			name: "Equator 1 degree",
			p1:   Point{Lat: 0, Lon: 0},
			p2:   Point{Lat: 0, Lon: 1},
			want: 111195, // Approx 111km
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			margin := tt.want * 0.01
			if tt.want == 0 {
				if got != 0 {
					t.Errorf("Distance() = %v, want 0", got)
				}
				return
			}
			if math.Abs(got-tt.want) > margin {
				t.Errorf("Distance() = %v, want %v (+/- %v)", got, tt.want, margin)
			}
		})
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pts := []Point{
		{Lat: 12.9716, Lon: 77.5946},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 51.5074, Lon: -0.1278},
		{Lat: 0.0001, Lon: -179.9999},
	}
	for _, a := range pts {
		if d := Distance(a, a); d != 0 {
			t.Errorf("Distance(%v,%v) = %v, want 0", a, a, d)
		}
		for _, b := range pts {
			if math.Abs(Distance(a, b)-Distance(b, a)) > 1e-6 {
				t.Errorf("Distance not symmetric for %v %v", a, b)
			}
		}
	}
}

func TestDistanceKm_ArrivalRadius(t *testing.T) {
	start := Point{Lat: 12.9716, Lon: 77.5946}
	near := DestinationPoint(start, 8, 90)
	far := DestinationPoint(start, 9, 90)

	if d := DistanceKm(start, near); d >= 0.0085 {
		t.Errorf("8m point should be inside 0.0085km, got %v", d)
	}
	if d := DistanceKm(start, far); d < 0.0085 {
		t.Errorf("9m point should be outside 0.0085km, got %v", d)
	}
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		p    Point
		want bool
	}{
		{Point{}, false},
		{NoFix, false},
		{Point{Lat: 0, Lon: 0.0001}, true},
		{Point{Lat: 12.97, Lon: 77.59}, true},
		{Point{Lat: 91, Lon: 10}, false},
		{Point{Lat: 10, Lon: -181}, false},
	}
	for _, tt := range tests {
		if got := tt.p.Valid(); got != tt.want {
			t.Errorf("%v.Valid() = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestBearing(t *testing.T) {
	origin := Point{Lat: 10, Lon: 10}
	tests := []struct {
		name string
		to   Point
		want float64
	}{
		{"North", Point{Lat: 11, Lon: 10}, 0},
		{"East", Point{Lat: 10, Lon: 11}, 90},
		{"South", Point{Lat: 9, Lon: 10}, 180},
		{"West", Point{Lat: 10, Lon: 9}, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, tt.to)
			if math.Abs(NormalizeAngle(got-tt.want)) > 1 {
				t.Errorf("Bearing() = %v, want ~%v", got, tt.want)
			}
		})
	}
}

func TestDestinationPoint_RoundTrip(t *testing.T) {
	start := Point{Lat: 48.8566, Lon: 2.3522}
	for _, brg := range []float64{0, 45, 135, 270} {
		dst := DestinationPoint(start, 1000, brg)
		if d := Distance(start, dst); math.Abs(d-1000) > 1 {
			t.Errorf("bearing %v: distance %v, want 1000", brg, d)
		}
	}
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{190, -170},
		{-190, 170},
		{540, 180},
		{-720, 0},
	}
	for _, tt := range tests {
		if got := NormalizeAngle(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
