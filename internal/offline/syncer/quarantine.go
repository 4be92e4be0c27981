package syncer

import (
	"encoding/json"
	"hash/fnv"
	"sort"
	"sync"

	"example.com/fittrack/internal/offline/queue"
)

// Quarantined is a queued record the server refused as invalid.
type Quarantined struct {
	Record queue.PendingRecord
	Reason string
}

type quarantineEntry struct {
	fingerprint uint64
	Quarantined
}

// quarantine remembers validation failures in memory so an unchanged payload
// is not resent on every pass. Editing the payload changes the fingerprint and
// releases the record.
type quarantine struct {
	mu      sync.Mutex
	entries map[string]quarantineEntry
}

func newQuarantine() *quarantine {
	return &quarantine{entries: make(map[string]quarantineEntry)}
}

func fingerprint(rec queue.PendingRecord) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(rec.Kind))
	_, _ = h.Write([]byte{0})
	payload, _ := json.Marshal(rec.Payload)
	_, _ = h.Write(payload)
	return h.Sum64()
}

func (q *quarantine) hold(rec queue.PendingRecord, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[rec.LocalID] = quarantineEntry{
		fingerprint: fingerprint(rec),
		Quarantined: Quarantined{Record: rec, Reason: reason},
	}
}

// filter drops held records from pending and forgets entries whose record
// left the queue or changed since it was refused.
func (q *quarantine) filter(pending []queue.PendingRecord) []queue.PendingRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	present := make(map[string]struct{}, len(pending))
	out := make([]queue.PendingRecord, 0, len(pending))
	for _, rec := range pending {
		present[rec.LocalID] = struct{}{}
		entry, held := q.entries[rec.LocalID]
		if held && entry.fingerprint == fingerprint(rec) {
			continue
		}
		delete(q.entries, rec.LocalID)
		out = append(out, rec)
	}
	for id := range q.entries {
		if _, ok := present[id]; !ok {
			delete(q.entries, id)
		}
	}
	return out
}

func (q *quarantine) list() []Quarantined {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Quarantined, 0, len(q.entries))
	for _, entry := range q.entries {
		out = append(out, entry.Quarantined)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.LocalID < out[j].Record.LocalID })
	return out
}
