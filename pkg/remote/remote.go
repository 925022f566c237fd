// Package remote reads and writes the device document shared with the
// companion app.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"

	"ocular/pkg/model"
)

// ErrFieldMissing is returned by Get for a field the document lacks.
var ErrFieldMissing = errors.New("remote field missing")

// Document field names.
const (
	FieldEmergency        = "emergency"
	FieldThreshold        = "emergency_threshold"
	FieldLatitude         = "latitude"
	FieldLongitude        = "longitude"
	FieldCell             = "h3_cell"
	FieldLocationUpdated  = "location_updated_at"
	FieldHelpComing       = "isHelpComing"
	FieldHelper           = "helper"
	FieldContacts         = "contacts"
	FieldOwnerName        = "ownerName"
	FieldLanguage         = "lang"
	FieldIncidentID       = "incident_id"
	FieldEmergencyStarted = "emergency_started_at"
)

// Store is the remote key/value document. Values are bool, int64, float64,
// string, []any, map[string]any or nil.
type Store interface {
	Get(ctx context.Context, field string) (any, error)
	Set(ctx context.Context, fields map[string]any) error
}

// DocumentReader is implemented by stores that can fetch every field in one
// round trip.
type DocumentReader interface {
	Document(ctx context.Context) (map[string]any, error)
}

// Fields reads several fields, using one document fetch when supported.
// Missing fields are absent from the result.
func Fields(ctx context.Context, s Store, names ...string) (map[string]any, error) {
	if dr, ok := s.(DocumentReader); ok {
		doc, err := dr.Document(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(names))
		for _, n := range names {
			if v, ok := doc[n]; ok {
				out[n] = v
			}
		}
		return out, nil
	}

	out := make(map[string]any, len(names))
	for _, n := range names {
		v, err := s.Get(ctx, n)
		if errors.Is(err, ErrFieldMissing) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[n] = v
	}
	return out, nil
}

// Bool interprets a field value as a boolean.
func Bool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(x)
		return b, err == nil
	}
	return false, false
}

// Int interprets a field value as an integer.
func Int(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(math.Round(x)), true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Float interprets a field value as a float.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

// String interprets a field value as a string.
func String(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// Contacts decodes the contacts array.
func Contacts(v any) []model.Contact {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out []model.Contact
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	valid := out[:0]
	for _, c := range out {
		if c.Phone != "" {
			valid = append(valid, c)
		}
	}
	return valid
}
