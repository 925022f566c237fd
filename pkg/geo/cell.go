package geo

import (
	"fmt"

	"github.com/uber/h3-go/v4"
)

// Cell returns the H3 index of p at the given resolution as a hex string.
// Companion apps use it to group nearby devices without exact coordinates.
func Cell(p Point, resolution int) (string, error) {
	if !p.Valid() {
		return "", fmt.Errorf("cell for invalid point %v", p)
	}
	c, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), resolution)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CellCenter returns the center of an H3 cell given as a hex string.
func CellCenter(cell string) (Point, error) {
	c := h3.Cell(h3.IndexFromString(cell))
	if !c.IsValid() {
		return NoFix, fmt.Errorf("invalid h3 cell %q", cell)
	}
	ll, err := c.LatLng()
	if err != nil {
		return NoFix, fmt.Errorf("h3 cell center: %w", err)
	}
	return Point{Lat: ll.Lat, Lon: ll.Lng}, nil
}
