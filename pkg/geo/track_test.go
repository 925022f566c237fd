package geo

import (
	"math"
	"testing"
)

func TestTrail(t *testing.T) {
	tests := []struct {
		name       string
		capacity   int
		points     []Point
		wantTracks []float64 // Expected course after EACH push
	}{
		{
			name:     "Standard 3-Sample Window",
			capacity: 3,
			points: []Point{
				{Lat: 10, Lon: 20}, // 1st: return fallback
				{Lat: 11, Lon: 20}, // 2nd: North (0)
				{Lat: 11, Lon: 21}, // 3rd: NE based on 10,20 -> 11,21 (approx 45)
				{Lat: 10, Lon: 21}, // 4th: SE based on 11,20 -> 10,21 (approx 135)
			},
			wantTracks: []float64{99, 0, 45, 135},
		},
		{
			name:     "No Fix Ignored",
			capacity: 3,
			points: []Point{
				{Lat: 10, Lon: 20},
				{},
				{Lat: 10, Lon: 21},
			},
			wantTracks: []float64{99, 99, 90},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTrail(tt.capacity, 0)
			for i, p := range tt.points {
				got := tr.Push(p, 99)
				if math.Abs(got-tt.wantTracks[i]) > 1.0 {
					t.Errorf("Step %d: Push() = %v, want approx %v", i, got, tt.wantTracks[i])
				}
			}
		})
	}
}

func TestTrail_JitterAndLength(t *testing.T) {
	start := Point{Lat: 12.9716, Lon: 77.5946}
	tr := NewTrail(10, 2)
	tr.Push(start, 0)
	tr.Push(DestinationPoint(start, 0.5, 90), 0) // jitter
	tr.Push(DestinationPoint(start, 10, 90), 0)

	if n := len(tr.Points()); n != 2 {
		t.Fatalf("expected 2 kept points, got %d", n)
	}
	if l := tr.Length(); math.Abs(l-10) > 0.01 {
		t.Errorf("Length() = %v, want 10", l)
	}

	ls := LineString(tr.Points())
	if len(ls) != 2 || ls[0][0] != start.Lon || ls[0][1] != start.Lat {
		t.Errorf("LineString() = %v", ls)
	}

	tr.Reset()
	if len(tr.Points()) != 0 {
		t.Error("expected empty trail after reset")
	}
}
