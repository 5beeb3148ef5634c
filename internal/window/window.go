// Package window implements the sliding-window call history used for
// per-endpoint admission control. It centralizes the prune-then-count
// logic so the gate itself only deals with locking and policy lookup.
package window

import (
	"time"
)

// Window records the timestamps of recently admitted calls. It is not
// safe for concurrent use; callers must hold the owning endpoint's gate.
type Window struct {
	entries []time.Time
}

// New returns an empty call-history window.
func New() *Window {
	return &Window{}
}

// Prune drops every entry whose age at now is interval or older.
func (w *Window) Prune(now time.Time, interval time.Duration) {
	cut := 0
	for cut < len(w.entries) && now.Sub(w.entries[cut]) >= interval {
		cut++
	}
	if cut > 0 {
		w.entries = append(w.entries[:0], w.entries[cut:]...)
	}
}

// Len reports the number of admitted calls still inside the window.
func (w *Window) Len() int {
	return len(w.entries)
}

// Record appends an admitted call at now. Entries are appended in
// admission order, so the slice stays sorted and Prune can cut a prefix.
func (w *Window) Record(now time.Time) {
	w.entries = append(w.entries, now)
}

// Admit runs one admission evaluation: prune entries older than
// interval, then admit and record iff fewer than limit remain. A
// rejected evaluation leaves the history untouched.
func (w *Window) Admit(now time.Time, limit int, interval time.Duration) bool {
	w.Prune(now, interval)
	if len(w.entries) >= limit {
		return false
	}
	w.Record(now)
	return true
}

// Reset clears the recorded history.
func (w *Window) Reset() {
	w.entries = w.entries[:0]
}
