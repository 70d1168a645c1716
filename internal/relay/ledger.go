package relay

import (
	"strconv"
	"strings"
	"time"
)

// MessageID derives the id of a chat message from its submission instant,
// author and room: <unix millis><identity><room>. Two messages from the same
// author in the same room within one millisecond collide, which is what makes
// retried submissions idempotent.
func MessageID(at time.Time, identity, room string) string {
	return strconv.FormatInt(at.UnixMilli(), 10) + identity + room
}

type ledgerEntry struct {
	id  string
	seq uint64
}

// Ledger records the ids of messages that have been broadcast. It guards
// against duplicate delivery and doubles as the (weak) authorization check for
// deletes: an id may be removed by anyone presenting the identity and room it
// ends with.
//
// With a positive capacity the oldest ids are evicted first once the ledger is
// full. Ledger is not safe for concurrent use; the Hub serializes all access.
type Ledger struct {
	capacity int
	ids      map[string]uint64
	order    []ledgerEntry
	seq      uint64
}

// NewLedger returns a ledger holding at most capacity ids. Zero or a negative
// capacity means unbounded.
func NewLedger(capacity int) *Ledger {
	return &Ledger{
		capacity: capacity,
		ids:      make(map[string]uint64),
	}
}

func (l *Ledger) Contains(id string) bool {
	_, ok := l.ids[id]
	return ok
}

// Record inserts id and reports whether it was new.
func (l *Ledger) Record(id string) bool {
	if l.Contains(id) {
		return false
	}
	l.seq++
	l.ids[id] = l.seq
	if l.capacity > 0 {
		l.order = append(l.order, ledgerEntry{id: id, seq: l.seq})
		l.evict()
	}
	return true
}

// Removable reports whether Remove would succeed, without changing anything.
func (l *Ledger) Removable(id, room, identity string) bool {
	return l.Contains(id) && strings.HasSuffix(id, identity+room)
}

// Remove deletes id if it is recorded and ends with identity+room.
func (l *Ledger) Remove(id, room, identity string) bool {
	if !l.Removable(id, room, identity) {
		return false
	}
	delete(l.ids, id)
	return true
}

func (l *Ledger) Len() int {
	return len(l.ids)
}

// evict drops the oldest live ids until the ledger fits its capacity. Entries
// in order whose id has since been removed (or re-recorded) are skipped.
func (l *Ledger) evict() {
	for len(l.ids) > l.capacity && len(l.order) > 0 {
		e := l.order[0]
		l.order = l.order[1:]
		if seq, ok := l.ids[e.id]; ok && seq == e.seq {
			delete(l.ids, e.id)
		}
	}
	// Removed ids leave dead entries behind; rebuild once they dominate.
	if len(l.order) > 2*l.capacity {
		live := make([]ledgerEntry, 0, len(l.ids))
		for _, e := range l.order {
			if seq, ok := l.ids[e.id]; ok && seq == e.seq {
				live = append(live, e)
			}
		}
		l.order = live
	}
}
