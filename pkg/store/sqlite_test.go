package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocular/pkg/db"
	"ocular/pkg/model"
)

// setupTestStore creates a test database and store for each test.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewSQLiteStore(d)
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	if err := store.SetCache(ctx, "tts:en:hello", []byte("RIFF....")); err != nil {
		t.Errorf("SetCache failed: %v", err)
	}
	val, hit := store.GetCache(ctx, "tts:en:hello")
	if !hit {
		t.Error("Expected cache hit")
	}
	if string(val) != "RIFF...." {
		t.Errorf("Expected 'RIFF....', got '%s'", string(val))
	}
}

func TestState(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	if err := store.SetState(ctx, "lang", "hi"); err != nil {
		t.Errorf("SetState failed: %v", err)
	}
	sVal, sHit := store.GetState(ctx, "lang")
	if !sHit {
		t.Error("Expected state hit")
	}
	if sVal != "hi" {
		t.Errorf("Expected 'hi', got '%s'", sVal)
	}

	require.NoError(t, store.DeleteState(ctx, "lang"))
	_, sHit = store.GetState(ctx, "lang")
	assert.False(t, sHit)
}

func TestRemoteFields(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, ok := store.GetRemoteField(ctx, "emergency")
	assert.False(t, ok)

	err := store.SetRemoteFields(ctx, map[string][]byte{
		"emergency":           []byte("true"),
		"emergency_threshold": []byte("300"),
	})
	require.NoError(t, err)

	v, ok := store.GetRemoteField(ctx, "emergency_threshold")
	require.True(t, ok)
	assert.Equal(t, "300", string(v))

	require.NoError(t, store.SetRemoteFields(ctx, map[string][]byte{"emergency": []byte("false")}))
	v, _ = store.GetRemoteField(ctx, "emergency")
	assert.Equal(t, "false", string(v))
}

func TestIncidents(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	start := time.Now().Add(-time.Hour).Truncate(time.Second)

	open, err := store.OpenIncident(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)

	inc := &model.Incident{ID: "inc-1", Reason: "button", Lat: 12.97, Lon: 77.59, StartedAt: start}
	require.NoError(t, store.SaveIncident(ctx, inc))

	open, err = store.OpenIncident(ctx)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "inc-1", open.ID)
	assert.True(t, open.Open())

	inc.EndedAt = start.Add(10 * time.Minute)
	inc.EndReason = "button"
	inc.MaxThreshold = 2500
	inc.Escalated = true
	inc.Helper = "Ravi"
	require.NoError(t, store.SaveIncident(ctx, inc))

	got, err := store.GetIncident(ctx, "inc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Open())
	assert.Equal(t, 2500, got.MaxThreshold)
	assert.True(t, got.Escalated)
	assert.Equal(t, "Ravi", got.Helper)

	open, err = store.OpenIncident(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)

	missing, err := store.GetIncident(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := store.ListIncidents(ctx, start.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTrips(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	now := time.Now().Truncate(time.Second)

	for i, dest := range []string{"library", "park", "station"} {
		tr := &model.Trip{
			ID:          dest,
			Destination: dest,
			Steps:       3,
			Completed:   i,
			Outcome:     "arrived",
			StartedAt:   now.Add(time.Duration(i) * time.Minute),
			EndedAt:     now.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		require.NoError(t, store.SaveTrip(ctx, tr))
	}

	trips, err := store.ListTrips(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, "station", trips[0].Destination)
	assert.Equal(t, "park", trips[1].Destination)
}
