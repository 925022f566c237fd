package store

import (
	"context"
	"time"

	"ocular/pkg/model"
)

// CacheStore handles generic key-value caching.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// RemoteFieldStore keeps the last known value of every remote document field.
// Values are stored JSON-encoded.
type RemoteFieldStore interface {
	GetRemoteField(ctx context.Context, field string) ([]byte, bool)
	SetRemoteFields(ctx context.Context, fields map[string][]byte) error
}

// IncidentStore handles the local emergency incident log.
type IncidentStore interface {
	SaveIncident(ctx context.Context, inc *model.Incident) error
	GetIncident(ctx context.Context, id string) (*model.Incident, error)
	ListIncidents(ctx context.Context, since time.Time) ([]*model.Incident, error)
	OpenIncident(ctx context.Context) (*model.Incident, error)
}

// TripStore handles the navigation history.
type TripStore interface {
	SaveTrip(ctx context.Context, trip *model.Trip) error
	ListTrips(ctx context.Context, limit int) ([]*model.Trip, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
