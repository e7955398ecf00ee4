// Package registry is the authoritative in-memory store of extracted
// verification codes. It owns the full record lifecycle: creation with a
// TTL horizon, single consumption, periodic sweep of expired records,
// and aggregate statistics. All state is volatile by design; nothing
// survives a restart.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/otp-relay/internal/metrics"
	"github.com/inboxpilot/otp-relay/internal/models"
)

const (
	// DefaultTTL is the expiry horizon for stored codes.
	DefaultTTL = 10 * time.Minute
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 60 * time.Second
	// DefaultMaxAge is the recency filter applied when a lookup does not
	// specify one.
	DefaultMaxAge = 300 * time.Second
	// DefaultMinConfidence is the confidence floor applied when a lookup
	// does not specify one.
	DefaultMinConfidence = 0.5
)

var (
	// ErrNoMatch is returned by GetLatest when no record survives the
	// filter. Pollers treat it as retry-later, not as a failure.
	ErrNoMatch = errors.New("no matching codes")
	// ErrNotFound is returned by GetByID for an unknown id.
	ErrNotFound = errors.New("code not found")
)

// codePattern enforces the stored-code invariant: 4-8 digits.
var codePattern = regexp.MustCompile(`^\d{4,8}$`)

// Filter selects candidate records for GetLatest. Zero-valued fields
// fall back to the package defaults; an empty Platform matches all.
type Filter struct {
	Platform      string
	MaxAge        time.Duration
	MinConfidence float64
}

// Registry holds verification codes behind a single mutex. The
// select-then-mark sequence in GetLatest runs under the write lock in
// its entirety; that critical section is what guarantees at-most-once
// consumption under concurrent pollers.
type Registry struct {
	mu    sync.RWMutex
	codes map[string]*models.VerificationCode

	ttl           time.Duration
	sweepInterval time.Duration
	stopCh        chan struct{}
	stoppedCh     chan struct{}

	// nowFunc is replaceable in tests.
	nowFunc func() time.Time
}

// New creates a Registry and starts its background sweep. Zero durations
// fall back to DefaultTTL and DefaultSweepInterval. Call Close to stop
// the sweep goroutine.
func New(ttl, sweepInterval time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	r := &Registry{
		codes:         make(map[string]*models.VerificationCode),
		ttl:           ttl,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
		nowFunc:       time.Now,
	}

	go r.sweepLoop()

	return r
}

// Store creates a new unused record and returns its id. Each successful
// extraction yields an independent record; repeated code values are not
// deduplicated.
func (r *Registry) Store(code, platform, sender, subject string, confidence float64, rawEnvelope json.RawMessage) (string, error) {
	if !codePattern.MatchString(code) {
		return "", fmt.Errorf("code must be 4-8 digits")
	}
	if confidence < 0 || confidence > 1 {
		return "", fmt.Errorf("confidence %v outside [0,1]", confidence)
	}
	if platform == "" {
		platform = models.PlatformUnknown
	}

	now := r.nowFunc()
	record := &models.VerificationCode{
		ID:          uuid.New().String(),
		Code:        code,
		Platform:    platform,
		Sender:      sender,
		Subject:     subject,
		ExtractedAt: now,
		ExpiresAt:   now.Add(r.ttl),
		Confidence:  confidence,
		RawEnvelope: rawEnvelope,
	}

	r.mu.Lock()
	r.codes[record.ID] = record
	r.updateActiveGauge()
	r.mu.Unlock()

	metrics.CodesStored.WithLabelValues(platform).Inc()

	return record.ID, nil
}

// GetLatest selects the most recent record matching the filter, marks it
// used, and returns a copy. The whole scan-filter-select-mark sequence
// holds the write lock so two concurrent pollers can never both receive
// the same record.
func (r *Registry) GetLatest(filter Filter) (*models.VerificationCode, error) {
	maxAge := filter.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	now := r.nowFunc()

	r.mu.Lock()
	defer r.mu.Unlock()

	var best *models.VerificationCode
	for _, c := range r.codes {
		if c.Used || c.Expired(now) {
			continue
		}
		if now.Sub(c.ExtractedAt) > maxAge {
			continue
		}
		if c.Confidence < filter.MinConfidence {
			continue
		}
		if filter.Platform != "" && c.Platform != filter.Platform {
			continue
		}
		if best == nil || c.ExtractedAt.After(best.ExtractedAt) {
			best = c
		}
	}

	if best == nil {
		metrics.LookupMisses.Inc()
		return nil, ErrNoMatch
	}

	best.Used = true
	r.updateActiveGauge()
	metrics.CodesConsumed.WithLabelValues(best.Platform).Inc()

	copied := *best
	return &copied, nil
}

// GetByID returns a copy of the record with the given id.
func (r *Registry) GetByID(id string) (*models.VerificationCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.codes[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

// ListAll returns copies of every record, most recent first.
func (r *Registry) ListAll() []*models.VerificationCode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.VerificationCode, 0, len(r.codes))
	for _, c := range r.codes {
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExtractedAt.After(out[j].ExtractedAt)
	})
	return out
}

// MarkUsed marks the record with the given id as used. Returns false for
// an unknown id; never panics.
func (r *Registry) MarkUsed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[id]
	if !ok {
		return false
	}
	if !c.Used {
		c.Used = true
		metrics.CodesConsumed.WithLabelValues(c.Platform).Inc()
	}
	r.updateActiveGauge()
	return true
}

// Stats aggregates registry state for monitoring.
func (r *Registry) Stats() models.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.nowFunc()
	stats := models.RegistryStats{Total: len(r.codes)}

	platforms := make(map[string]struct{})
	var confidenceSum float64
	for _, c := range r.codes {
		platforms[c.Platform] = struct{}{}
		confidenceSum += c.Confidence

		switch {
		case c.Used:
			stats.Used++
		case c.Expired(now):
			stats.Expired++
		default:
			stats.Active++
		}
	}

	stats.Platforms = make([]string, 0, len(platforms))
	for p := range platforms {
		stats.Platforms = append(stats.Platforms, p)
	}
	sort.Strings(stats.Platforms)

	if stats.Total > 0 {
		stats.MeanConfidence = confidenceSum / float64(stats.Total)
	}

	return stats
}

// Delete removes a record by id, for administrative use. Returns false
// for an unknown id.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[id]; !ok {
		return false
	}
	delete(r.codes, id)
	r.updateActiveGauge()
	return true
}

// Close stops the background sweep and waits for it to exit.
func (r *Registry) Close() {
	close(r.stopCh)
	<-r.stoppedCh
}

// sweepLoop periodically removes expired records.
func (r *Registry) sweepLoop() {
	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

// sweep removes every record past its expiry, used or not. It only
// deletes entries; survivors are never mutated, so it is safe to run
// alongside readers that hold copies.
func (r *Registry) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	removed := 0
	for id, c := range r.codes {
		if c.Expired(now) {
			delete(r.codes, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.CodesSwept.Add(float64(removed))
		r.updateActiveGauge()
	}
	return removed
}

// updateActiveGauge recounts active records. Caller must hold mu.
func (r *Registry) updateActiveGauge() {
	now := r.nowFunc()
	active := 0
	for _, c := range r.codes {
		if !c.Used && !c.Expired(now) {
			active++
		}
	}
	metrics.CodesActive.Set(float64(active))
}
