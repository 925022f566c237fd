package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"ocular/pkg/store"
)

// Cached keeps the last value of every field in the local database. When the
// remote is unreachable, reads fall back to the last known value.
type Cached struct {
	remote Store
	local  store.RemoteFieldStore
}

// NewCached wraps remote with the local field store.
func NewCached(remote Store, local store.RemoteFieldStore) *Cached {
	return &Cached{remote: remote, local: local}
}

// Get implements Store.
func (c *Cached) Get(ctx context.Context, field string) (any, error) {
	v, err := c.remote.Get(ctx, field)
	if err == nil {
		c.remember(ctx, map[string]any{field: v})
		return v, nil
	}
	if errors.Is(err, ErrFieldMissing) || ctx.Err() != nil {
		return nil, err
	}
	if cached, ok := c.lookup(ctx, field); ok {
		slog.Warn("Remote unreachable, using last known value", "field", field, "error", err)
		return cached, nil
	}
	return nil, err
}

// Document implements DocumentReader.
func (c *Cached) Document(ctx context.Context) (map[string]any, error) {
	dr, ok := c.remote.(DocumentReader)
	if !ok {
		return nil, errors.New("remote store cannot read documents")
	}
	doc, err := dr.Document(ctx)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, doc)
	return doc, nil
}

// Set writes through to the remote and records the values locally only
// after the remote accepted them.
func (c *Cached) Set(ctx context.Context, fields map[string]any) error {
	if err := c.remote.Set(ctx, fields); err != nil {
		return err
	}
	c.remember(ctx, fields)
	return nil
}

// Last returns the last known value of field without contacting the remote.
func (c *Cached) Last(ctx context.Context, field string) (any, bool) {
	return c.lookup(ctx, field)
}

func (c *Cached) remember(ctx context.Context, fields map[string]any) {
	enc := make(map[string][]byte, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		enc[k] = b
	}
	if err := c.local.SetRemoteFields(ctx, enc); err != nil {
		slog.Warn("Failed to cache remote fields", "error", err)
	}
}

func (c *Cached) lookup(ctx context.Context, field string) (any, bool) {
	b, ok := c.local.GetRemoteField(ctx, field)
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	// JSON numbers decode as float64; integral values go back to int64.
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f), true
	}
	return v, true
}
