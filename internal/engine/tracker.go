package engine

import (
	"sync"
	"time"
)

// Duration alerts require the condition to hold continuously. The tracker
// keeps one accumulation cycle per alert:
//
//	Idle -> Accumulating(since)   condition becomes satisfied
//	Accumulating -> Idle          condition breaks (no partial credit)
//	Accumulating -> fire          satisfied and now-since >= duration
//
// Firing is reported to the caller; the cycle is reset separately once the
// trigger has been durably recorded, so a failed fire leaves the streak
// intact and the next sample retries.
//
// Cycles are kept after a reset so a known-idle alert stays distinguishable
// from one this process has never observed. Seeding from persisted state
// applies only to the latter; the in-memory cycle is the source of truth
// once an alert has been seen, even when a tracking write to the store
// failed and left a stale row behind.
type DurationTracker struct {
	mu     sync.Mutex
	cycles map[int]cycle
}

type cycle struct {
	since        time.Time
	accumulating bool
}

// NewDurationTracker creates an empty tracker
func NewDurationTracker() *DurationTracker {
	return &DurationTracker{cycles: make(map[int]cycle)}
}

// Observation describes the tracker state after observing one sample
type Observation struct {
	// ShouldFire is true when the condition has held for the full duration
	ShouldFire bool
	// Changed is true when the accumulation state transitioned, so the
	// persisted tracking fields need updating
	Changed bool
	// Since is the start of the current streak, nil when Idle
	Since *time.Time
	// Accumulating is true while a streak is running
	Accumulating bool
}

// Observe advances the cycle for one alert given the evaluation outcome at
// the sample's timestamp. The caller must hold single-writer discipline per
// alert (the engine's per-stock worker guarantees this).
func (t *DurationTracker) Observe(alertID int, satisfied bool, now time.Time, duration time.Duration) Observation {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, seen := t.cycles[alertID]

	if !satisfied {
		if c.accumulating {
			t.cycles[alertID] = cycle{}
			return Observation{Changed: true}
		}
		if !seen {
			t.cycles[alertID] = cycle{}
		}
		return Observation{}
	}

	if !c.accumulating {
		t.cycles[alertID] = cycle{since: now, accumulating: true}
		return Observation{Changed: true, Since: &now, Accumulating: true}
	}

	since := c.since
	if now.Sub(since) >= duration {
		return Observation{ShouldFire: true, Since: &since, Accumulating: true}
	}
	return Observation{Since: &since, Accumulating: true}
}

// Seed restores a streak from persisted tracking state, used when the
// engine encounters an alert after a restart. Alerts already observed in
// this process are never reseeded: their in-memory cycle wins.
func (t *DurationTracker) Seed(alertID int, since time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.cycles[alertID]; !seen {
		t.cycles[alertID] = cycle{since: since, accumulating: true}
	}
}

// Seen reports whether this process has observed the alert
func (t *DurationTracker) Seen(alertID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, seen := t.cycles[alertID]
	return seen
}

// Tracking reports whether a streak is currently accumulating for the alert
func (t *DurationTracker) Tracking(alertID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cycles[alertID].accumulating
}

// Reset returns the cycle to Idle while keeping the alert marked as seen.
// Called after a successful fire and when an alert is re-activated.
func (t *DurationTracker) Reset(alertID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cycles[alertID] = cycle{}
}
