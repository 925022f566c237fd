package remote

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// Local is an in-process document, used when no cloud project is configured
// and as the companion-app stand-in of the dev API.
type Local struct {
	mu     sync.RWMutex
	fields map[string]any
}

// NewLocal returns a document seeded with initial.
func NewLocal(initial map[string]any) *Local {
	f := make(map[string]any, len(initial))
	maps.Copy(f, initial)
	return &Local{fields: f}
}

// Get implements Store.
func (l *Local) Get(ctx context.Context, field string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.fields[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldMissing, field)
	}
	return v, nil
}

// Set implements Store.
func (l *Local) Set(ctx context.Context, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	maps.Copy(l.fields, fields)
	return nil
}

// Document implements DocumentReader.
func (l *Local) Document(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.fields), nil
}
