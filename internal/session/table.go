// Package session implements the in-memory session table: a hash-chained
// map from session id to {user id, last accessed} under one mutex, exactly
// as session_manager.h specifies (session_create/session_get_user/
// session_remove/session_system_cleanup).
package session

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"
)

// DefaultBuckets is the fixed bucket-vector size (spec.md §3: "default
// 1024").
const DefaultBuckets = 1024

// DefaultTTL is the sliding-window expiry (spec.md §4.C: "TTL default
// 1800s").
const DefaultTTL = 1800 * time.Second

const idLength = 32
const idCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

type entry struct {
	sessionID    string
	userID       int
	lastAccessed time.Time
	next         *entry
}

// Table is a hash-chained session map guarded by a single mutex, acceptable
// for the expected session counts per spec.md §3.
type Table struct {
	mu      sync.Mutex
	buckets []*entry
	ttl     time.Duration
	now     func() time.Time
}

// New creates a session table with the given bucket count and TTL. A
// bucketCount of 0 uses DefaultBuckets, a ttl of 0 uses DefaultTTL.
func New(bucketCount int, ttl time.Duration) *Table {
	if bucketCount <= 0 {
		bucketCount = DefaultBuckets
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Table{
		buckets: make([]*entry, bucketCount),
		ttl:     ttl,
		now:     time.Now,
	}
}

// djb2 hashes the session id bytes per spec.md §4.C.
func djb2(s string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint64(s[i])
	}
	return h
}

func (t *Table) bucketIndex(id string) int {
	return int(djb2(id) % uint64(len(t.buckets)))
}

// generateID produces a 32-character printable id from a 62-alphanumeric
// charset. crypto/rand is used instead of a reseeded PRNG: it needs no
// explicit reseed step and gives the same "uniqueness under birthday
// collision is acceptable" guarantee spec.md §4.C asks for.
func generateID() (string, error) {
	buf := make([]byte, idLength)
	max := big.NewInt(int64(len(idCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = idCharset[n.Int64()]
	}
	return string(buf), nil
}

// Create generates a new session id for userID, inserts it, and returns it.
func (t *Table) Create(userID int) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(id)
	t.buckets[idx] = &entry{
		sessionID:    id,
		userID:       userID,
		lastAccessed: t.now(),
		next:         t.buckets[idx],
	}
	return id, nil
}

// Lookup returns the user id bound to sessionID, refreshing its
// last-accessed time (sliding TTL). If the entry is absent or expired it is
// unlinked and ok is false.
func (t *Table) Lookup(sessionID string) (userID int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(sessionID)
	var prev *entry
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.sessionID != sessionID {
			prev = e
			continue
		}
		if t.now().Sub(e.lastAccessed) > t.ttl {
			t.unlink(idx, prev, e)
			return 0, false
		}
		e.lastAccessed = t.now()
		return e.userID, true
	}
	return 0, false
}

// Remove deletes sessionID if present. Idempotent.
func (t *Table) Remove(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(sessionID)
	var prev *entry
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.sessionID == sessionID {
			t.unlink(idx, prev, e)
			return
		}
		prev = e
	}
}

// Shutdown frees all chains. The bucket vector itself is reclaimed by the
// garbage collector once Table is dropped.
func (t *Table) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.buckets {
		t.buckets[i] = nil
	}
}

func (t *Table) unlink(idx int, prev, target *entry) {
	if prev == nil {
		t.buckets[idx] = target.next
		return
	}
	prev.next = target.next
}
