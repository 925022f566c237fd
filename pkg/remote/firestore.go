package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"

	"ocular/pkg/config"
	"ocular/pkg/request"
	"ocular/pkg/tracker"
)

const (
	firestoreBase  = "https://firestore.googleapis.com/v1"
	datastoreScope = "https://www.googleapis.com/auth/datastore"
)

// Firestore talks to the device document over the Firestore REST API.
type Firestore struct {
	client *request.Client
	docURL string
}

// NewFirestore authenticates with the service account file and returns a
// store bound to collection/deviceID.
func NewFirestore(ctx context.Context, cfg config.RemoteConfig, reqCfg config.RequestConfig, t *tracker.Tracker) (*Firestore, error) {
	if cfg.ProjectID == "" || cfg.DeviceID == "" {
		return nil, fmt.Errorf("firestore: project id and device id are required")
	}
	hc, _, err := htransport.NewClient(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(datastoreScope),
	)
	if err != nil {
		return nil, fmt.Errorf("firestore: credentials: %w", err)
	}
	client := request.New(reqCfg, nil, t, request.WithHTTPClient(hc))
	return NewFirestoreWithClient(client, firestoreBase, cfg.ProjectID, cfg.Collection, cfg.DeviceID), nil
}

// NewFirestoreWithClient builds a store on an existing client and base URL.
func NewFirestoreWithClient(client *request.Client, base, project, collection, deviceID string) *Firestore {
	if collection == "" {
		collection = "devices"
	}
	docURL := fmt.Sprintf("%s/projects/%s/databases/(default)/documents/%s/%s",
		base, url.PathEscape(project), url.PathEscape(collection), url.PathEscape(deviceID))
	return &Firestore{client: client, docURL: docURL}
}

type fsDocument struct {
	Name   string                     `json:"name,omitempty"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// Document fetches every field of the device document.
func (f *Firestore) Document(ctx context.Context) (map[string]any, error) {
	body, err := f.client.Get(ctx, f.docURL, "")
	if err != nil {
		return nil, fmt.Errorf("firestore get: %w", err)
	}
	var doc fsDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("firestore decode: %w", err)
	}
	out := make(map[string]any, len(doc.Fields))
	for k, raw := range doc.Fields {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("firestore field %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Get implements Store.
func (f *Firestore) Get(ctx context.Context, field string) (any, error) {
	doc, err := f.Document(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := doc[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldMissing, field)
	}
	return v, nil
}

// Set updates only the given fields.
func (f *Firestore) Set(ctx context.Context, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	enc := make(map[string]any, len(fields))
	for k, v := range fields {
		keys = append(keys, k)
		enc[k] = encodeValue(v)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		q.Add("updateMask.fieldPaths", k)
	}
	body, err := json.Marshal(map[string]any{"fields": enc})
	if err != nil {
		return err
	}
	_, err = f.client.Do(ctx, http.MethodPatch, f.docURL+"?"+q.Encode(), body,
		map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return fmt.Errorf("firestore update: %w", err)
	}
	return nil
}

// encodeValue converts a Go value into a Firestore Value object.
func encodeValue(v any) map[string]any {
	switch x := v.(type) {
	case nil:
		return map[string]any{"nullValue": nil}
	case bool:
		return map[string]any{"booleanValue": x}
	case int:
		return map[string]any{"integerValue": strconv.Itoa(x)}
	case int64:
		return map[string]any{"integerValue": strconv.FormatInt(x, 10)}
	case float64:
		return map[string]any{"doubleValue": x}
	case string:
		return map[string]any{"stringValue": x}
	case time.Time:
		return map[string]any{"timestampValue": x.UTC().Format(time.RFC3339Nano)}
	case []any:
		vals := make([]any, 0, len(x))
		for _, e := range x {
			vals = append(vals, encodeValue(e))
		}
		return map[string]any{"arrayValue": map[string]any{"values": vals}}
	case map[string]any:
		fields := make(map[string]any, len(x))
		for k, e := range x {
			fields[k] = encodeValue(e)
		}
		return map[string]any{"mapValue": map[string]any{"fields": fields}}
	default:
		return map[string]any{"stringValue": fmt.Sprint(x)}
	}
}

type fsLatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type fsArray struct {
	Values []json.RawMessage `json:"values"`
}

type fsMap struct {
	Fields map[string]json.RawMessage `json:"fields"`
}

type fsValue struct {
	BooleanValue   *bool     `json:"booleanValue"`
	IntegerValue   *string   `json:"integerValue"`
	DoubleValue    *float64  `json:"doubleValue"`
	StringValue    *string   `json:"stringValue"`
	TimestampValue *string   `json:"timestampValue"`
	BytesValue     *string   `json:"bytesValue"`
	ReferenceValue *string   `json:"referenceValue"`
	GeoPointValue  *fsLatLng `json:"geoPointValue"`
	ArrayValue     *fsArray  `json:"arrayValue"`
	MapValue       *fsMap    `json:"mapValue"`
}

// decodeValue converts a Firestore Value object into a Go value.
func decodeValue(raw json.RawMessage) (any, error) {
	var v fsValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch {
	case v.BooleanValue != nil:
		return *v.BooleanValue, nil
	case v.IntegerValue != nil:
		return strconv.ParseInt(*v.IntegerValue, 10, 64)
	case v.DoubleValue != nil:
		return *v.DoubleValue, nil
	case v.StringValue != nil:
		return *v.StringValue, nil
	case v.TimestampValue != nil:
		return *v.TimestampValue, nil
	case v.ReferenceValue != nil:
		return *v.ReferenceValue, nil
	case v.BytesValue != nil:
		return base64.StdEncoding.DecodeString(*v.BytesValue)
	case v.GeoPointValue != nil:
		return map[string]any{"latitude": v.GeoPointValue.Latitude, "longitude": v.GeoPointValue.Longitude}, nil
	case v.ArrayValue != nil:
		out := make([]any, 0, len(v.ArrayValue.Values))
		for _, e := range v.ArrayValue.Values {
			d, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	case v.MapValue != nil:
		out := make(map[string]any, len(v.MapValue.Fields))
		for k, e := range v.MapValue.Fields {
			d, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	}
	return nil, nil
}
