package dmail

import "strings"

// normalizeID is the single canonical form for peer identifiers. Every
// comparison and every ledger key goes through it.
func normalizeID(id string) string {
	return strings.TrimSpace(id)
}

// Ledger counts unread messages per peer. It is the only place counts change.
// A Ledger is not safe for concurrent use; Store serializes access.
type Ledger struct {
	counts map[string]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{counts: make(map[string]int)}
}

// Count returns the unread count for peerID; absent entries read as 0.
func (l *Ledger) Count(peerID string) int {
	return l.counts[normalizeID(peerID)]
}

// Increment adds one unread message for peerID and returns the new count.
func (l *Ledger) Increment(peerID string) int {
	peerID = normalizeID(peerID)
	if peerID == "" {
		return 0
	}
	l.counts[peerID]++
	return l.counts[peerID]
}

// Zero resets peerID to 0, creating the entry if needed. Idempotent.
func (l *Ledger) Zero(peerID string) {
	peerID = normalizeID(peerID)
	if peerID == "" {
		return
	}
	l.counts[peerID] = 0
}

// Ensure creates a zero entry for peerID unless one already exists.
// Existing counts are never touched.
func (l *Ledger) Ensure(peerID string) {
	peerID = normalizeID(peerID)
	if peerID == "" {
		return
	}
	if _, ok := l.counts[peerID]; !ok {
		l.counts[peerID] = 0
	}
}

// Prune removes every entry whose peer is not in keep and returns how many
// entries were dropped.
func (l *Ledger) Prune(keep map[string]struct{}) int {
	removed := 0
	for id := range l.counts {
		if _, ok := keep[id]; ok {
			continue
		}
		delete(l.counts, id)
		removed++
	}
	return removed
}

// Total sums all counts.
func (l *Ledger) Total() int {
	total := 0
	for _, n := range l.counts {
		total += n
	}
	return total
}

// Snapshot copies the current counts.
func (l *Ledger) Snapshot() map[string]int {
	out := make(map[string]int, len(l.counts))
	for id, n := range l.counts {
		out[id] = n
	}
	return out
}
