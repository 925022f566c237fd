package tracker

import (
	"sync"
	"testing"
)

func TestTracker_Counts(t *testing.T) {
	tr := New()
	tr.TrackCacheHit("maps")
	tr.TrackCacheMiss("maps")
	tr.TrackSuccess("maps")
	tr.TrackRetry("twilio")
	tr.TrackFailure("twilio")

	snap := tr.Snapshot()
	m := snap["maps"]
	if m.CacheHits != 1 || m.CacheMisses != 1 || m.Success != 1 {
		t.Errorf("unexpected maps stats: %+v", m)
	}
	tw := snap["twilio"]
	if tw.Retries != 1 || tw.Failures != 1 {
		t.Errorf("unexpected twilio stats: %+v", tw)
	}
	if tw.LastFailure.IsZero() {
		t.Error("expected LastFailure to be set")
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.TrackSuccess("firestore")
		}()
	}
	wg.Wait()
	if got := tr.Snapshot()["firestore"].Success; got != 50 {
		t.Errorf("Success = %d, want 50", got)
	}
}

func TestTracker_Nil(t *testing.T) {
	var tr *Tracker
	tr.TrackSuccess("x")
	tr.TrackFailure("x")
	if len(tr.Snapshot()) != 0 {
		t.Error("nil tracker should report no stats")
	}
}
