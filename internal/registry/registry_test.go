package registry

import (
	"sync"
	"testing"
	"time"
)

// newTestRegistry returns a registry with a controllable clock.
func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := New(10*time.Minute, time.Hour)
	r.nowFunc = func() time.Time { return now }
	t.Cleanup(r.Close)

	return r, &now
}

func TestStore_AssignsIDAndExpiry(t *testing.T) {
	r, now := newTestRegistry(t)

	id, err := r.Store("482913", "vinsolutions", "noreply@vinsolutions.com", "2FA", 0.95, nil)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if id == "" {
		t.Fatal("Store() returned empty id")
	}

	c, err := r.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if c.Code != "482913" {
		t.Errorf("code = %q, want 482913", c.Code)
	}
	if !c.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Errorf("expiresAt = %v, want %v", c.ExpiresAt, now.Add(10*time.Minute))
	}
	if !c.ExpiresAt.After(c.ExtractedAt) {
		t.Error("expiresAt must be after extractedAt")
	}
	if c.Used {
		t.Error("new record must be unused")
	}
}

func TestStore_RejectsInvalidCode(t *testing.T) {
	r, _ := newTestRegistry(t)

	tests := []string{"", "123", "123456789", "48a913", "code"}
	for _, code := range tests {
		if _, err := r.Store(code, "p", "s", "subj", 0.9, nil); err == nil {
			t.Errorf("Store(%q) should reject a non 4-8 digit code", code)
		}
	}
}

func TestStore_RejectsConfidenceOutOfRange(t *testing.T) {
	r, _ := newTestRegistry(t)

	for _, conf := range []float64{-0.1, 1.01, 2} {
		if _, err := r.Store("482913", "p", "s", "subj", conf, nil); err == nil {
			t.Errorf("Store() should reject confidence %v", conf)
		}
	}

	// Boundaries are valid.
	for _, conf := range []float64{0, 1} {
		if _, err := r.Store("482913", "p", "s", "subj", conf, nil); err != nil {
			t.Errorf("Store() rejected valid confidence %v: %v", conf, err)
		}
	}
}

func TestStore_NoDeduplication(t *testing.T) {
	r, _ := newTestRegistry(t)

	id1, _ := r.Store("482913", "p", "s", "subj", 0.9, nil)
	id2, _ := r.Store("482913", "p", "s", "subj", 0.9, nil)

	if id1 == id2 {
		t.Error("repeated code values must yield independent records")
	}
	if got := len(r.ListAll()); got != 2 {
		t.Errorf("len(ListAll()) = %d, want 2", got)
	}
}

func TestGetLatest_ConsumesOnce(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Store("482913", "vinsolutions", "s", "subj", 0.9, nil)

	c, err := r.GetLatest(Filter{Platform: "vinsolutions", MinConfidence: 0.5})
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if c.Code != "482913" {
		t.Errorf("code = %q, want 482913", c.Code)
	}

	// Second identical query must miss.
	if _, err := r.GetLatest(Filter{Platform: "vinsolutions", MinConfidence: 0.5}); err != ErrNoMatch {
		t.Errorf("second GetLatest() error = %v, want ErrNoMatch", err)
	}
}

func TestGetLatest_AtMostOnceUnderConcurrency(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Store("482913", "p", "s", "subj", 0.9, nil)

	const pollers = 50
	var wg sync.WaitGroup
	successes := make(chan string, pollers)

	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c, err := r.GetLatest(Filter{MinConfidence: 0.5}); err == nil {
				successes <- c.ID
			}
		}()
	}
	wg.Wait()
	close(successes)

	var ids []string
	for id := range successes {
		ids = append(ids, id)
	}
	if len(ids) != 1 {
		t.Errorf("%d pollers received the record, want exactly 1", len(ids))
	}
}

func TestGetLatest_PicksMostRecent(t *testing.T) {
	r, now := newTestRegistry(t)

	r.Store("111111", "p", "s", "subj", 0.9, nil)
	*now = now.Add(10 * time.Second)
	r.Store("222222", "p", "s", "subj", 0.9, nil)

	c, err := r.GetLatest(Filter{MinConfidence: 0.5})
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if c.Code != "222222" {
		t.Errorf("code = %q, want the most recent 222222", c.Code)
	}
}

func TestGetLatest_ConfidenceBoundaryInclusive(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Store("482913", "p", "s", "subj", 0.4, nil)

	if _, err := r.GetLatest(Filter{MinConfidence: 0.5}); err != ErrNoMatch {
		t.Errorf("confidence 0.4 should be excluded by minConfidence 0.5, got %v", err)
	}
	if _, err := r.GetLatest(Filter{MinConfidence: 0.4}); err != nil {
		t.Errorf("confidence 0.4 should be included by minConfidence 0.4 (inclusive), got %v", err)
	}
}

func TestGetLatest_PlatformIsolation(t *testing.T) {
	r, now := newTestRegistry(t)

	r.Store("111111", "salesforce", "s", "subj", 0.9, nil)
	*now = now.Add(10 * time.Second)
	// The vinsolutions record is more recent.
	r.Store("222222", "vinsolutions", "s", "subj", 0.9, nil)

	c, err := r.GetLatest(Filter{Platform: "salesforce", MinConfidence: 0.5})
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if c.Code != "111111" {
		t.Errorf("code = %q, want the salesforce record 111111", c.Code)
	}
}

func TestGetLatest_RecencyFilter(t *testing.T) {
	r, now := newTestRegistry(t)

	r.Store("482913", "p", "s", "subj", 0.9, nil)

	// Older than maxAge but still unexpired (TTL is 10m).
	*now = now.Add(6 * time.Minute)

	if _, err := r.GetLatest(Filter{MaxAge: 300 * time.Second, MinConfidence: 0.5}); err != ErrNoMatch {
		t.Errorf("record older than maxAge should be excluded, got %v", err)
	}

	// A wider window still admits it.
	if _, err := r.GetLatest(Filter{MaxAge: 7 * time.Minute, MinConfidence: 0.5}); err != nil {
		t.Errorf("record within a wider maxAge should match, got %v", err)
	}
}

func TestGetLatest_TTLMonotonicity(t *testing.T) {
	r, now := newTestRegistry(t)

	r.Store("482913", "p", "s", "subj", 0.9, nil)

	// Strictly before expiry: retrievable (wide maxAge).
	*now = now.Add(10*time.Minute - time.Second)
	if _, err := r.GetLatest(Filter{MaxAge: time.Hour, MinConfidence: 0.5}); err != nil {
		t.Fatalf("record before expiresAt should be retrievable, got %v", err)
	}

	// Fresh record, then advance strictly past expiry.
	r.Store("775511", "p", "s", "subj", 0.9, nil)
	*now = now.Add(11 * time.Minute)
	if _, err := r.GetLatest(Filter{MaxAge: time.Hour, MinConfidence: 0.5}); err != ErrNoMatch {
		t.Errorf("record past expiresAt must never be retrievable, got %v", err)
	}
}

func TestGetLatest_MissLeavesStateUntouched(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Store("482913", "p", "s", "subj", 0.9, nil)

	// Filter misses on platform; the record must stay consumable.
	if _, err := r.GetLatest(Filter{Platform: "other", MinConfidence: 0.5}); err != ErrNoMatch {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	if _, err := r.GetLatest(Filter{MinConfidence: 0.5}); err != nil {
		t.Errorf("record should still be consumable after a miss, got %v", err)
	}
}

func TestMarkUsed(t *testing.T) {
	r, _ := newTestRegistry(t)

	id, _ := r.Store("482913", "p", "s", "subj", 0.9, nil)

	if !r.MarkUsed(id) {
		t.Error("MarkUsed() = false for a known id")
	}
	if r.MarkUsed("nonexistent-id") {
		t.Error("MarkUsed() = true for an unknown id")
	}

	// Used records are excluded from selection but still listed.
	if _, err := r.GetLatest(Filter{MinConfidence: 0.5}); err != ErrNoMatch {
		t.Errorf("used record should be excluded from GetLatest, got %v", err)
	}
	if got := len(r.ListAll()); got != 1 {
		t.Errorf("used record should linger until swept, len(ListAll()) = %d", got)
	}
}

func TestGetByID_Unknown(t *testing.T) {
	r, _ := newTestRegistry(t)

	if _, err := r.GetByID("nope"); err != ErrNotFound {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestSweep_RemovesExpired(t *testing.T) {
	r, now := newTestRegistry(t)

	r.Store("111111", "p", "s", "subj", 0.9, nil)
	id, _ := r.Store("222222", "p", "s", "subj", 0.9, nil)
	r.MarkUsed(id)

	*now = now.Add(11 * time.Minute)
	removed := r.sweep()

	if removed != 2 {
		t.Errorf("sweep() removed %d, want 2 (expiry ignores the used flag)", removed)
	}
	if got := len(r.ListAll()); got != 0 {
		t.Errorf("len(ListAll()) after sweep = %d, want 0", got)
	}
}

func TestSweep_KeepsUnexpired(t *testing.T) {
	r, now := newTestRegistry(t)

	r.Store("111111", "p", "s", "subj", 0.9, nil)
	*now = now.Add(5 * time.Minute)
	r.Store("222222", "p", "s", "subj", 0.9, nil)

	*now = now.Add(6 * time.Minute) // first is 11m old, second 6m
	if removed := r.sweep(); removed != 1 {
		t.Errorf("sweep() removed %d, want 1", removed)
	}

	all := r.ListAll()
	if len(all) != 1 || all[0].Code != "222222" {
		t.Errorf("sweep should keep the unexpired record, got %v", all)
	}
}

func TestDelete(t *testing.T) {
	r, _ := newTestRegistry(t)

	id, _ := r.Store("482913", "p", "s", "subj", 0.9, nil)

	if !r.Delete(id) {
		t.Error("Delete() = false for a known id")
	}
	if r.Delete(id) {
		t.Error("Delete() = true for an already-deleted id")
	}
}

func TestStats(t *testing.T) {
	r, now := newTestRegistry(t)

	r.Store("111111", "vinsolutions", "s", "subj", 0.9, nil)
	id, _ := r.Store("222222", "salesforce", "s", "subj", 0.7, nil)
	r.MarkUsed(id)
	r.Store("333333", "salesforce", "s", "subj", 0.8, nil)

	// Let the last one expire.
	*now = now.Add(11 * time.Minute)
	r.Store("444444", "cdk", "s", "subj", 0.6, nil)

	stats := r.Stats()
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.Active != 1 {
		t.Errorf("Active = %d, want 1", stats.Active)
	}
	if stats.Used != 1 {
		t.Errorf("Used = %d, want 1", stats.Used)
	}
	if stats.Expired != 2 {
		t.Errorf("Expired = %d, want 2", stats.Expired)
	}
	if len(stats.Platforms) != 3 {
		t.Errorf("Platforms = %v, want 3 distinct", stats.Platforms)
	}
	want := (0.9 + 0.7 + 0.8 + 0.6) / 4
	if diff := stats.MeanConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("MeanConfidence = %v, want %v", stats.MeanConfidence, want)
	}
}

func TestListAll_MostRecentFirst(t *testing.T) {
	r, now := newTestRegistry(t)

	r.Store("111111", "p", "s", "subj", 0.9, nil)
	*now = now.Add(time.Second)
	r.Store("222222", "p", "s", "subj", 0.9, nil)

	all := r.ListAll()
	if len(all) != 2 {
		t.Fatalf("len(ListAll()) = %d, want 2", len(all))
	}
	if all[0].Code != "222222" {
		t.Errorf("ListAll()[0].Code = %q, want the most recent 222222", all[0].Code)
	}
}

func TestListAll_ReturnsCopies(t *testing.T) {
	r, _ := newTestRegistry(t)

	id, _ := r.Store("482913", "p", "s", "subj", 0.9, nil)

	all := r.ListAll()
	all[0].Used = true

	c, _ := r.GetByID(id)
	if c.Used {
		t.Error("mutating a listed record must not affect registry state")
	}
}

func TestConcurrentStoreAndConsume(t *testing.T) {
	r := New(10*time.Minute, time.Hour)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Store("482913", "p", "s", "subj", 0.9, nil)
				r.GetLatest(Filter{MinConfidence: 0.5})
				r.Stats()
			}
		}()
	}
	wg.Wait()
}

func TestClose_StopsSweepLoop(t *testing.T) {
	r := New(time.Minute, 10*time.Millisecond)
	r.Close()

	// Close waits for the loop; a second sweep tick must not fire after.
	select {
	case <-r.stoppedCh:
	default:
		t.Error("sweep loop should have exited after Close()")
	}
}
