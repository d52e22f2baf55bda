package memory

import (
	"time"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/pkg/cmap"
)

// record is the per-key slot. A record may carry a deadline without an
// entry when a snapshot restored an expiration for a key it did not hold.
type record struct {
	entry    *domain.Entry
	deadline int64 // epoch ms, 0 means no TTL
}

// Store is the sharded keyspace.
type Store struct {
	items    *cmap.Map[*record]
	now      func() time.Time
	onExpire func(key string)
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source used for expiration.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithExpireHook registers fn to be called for every key removed by lazy
// expiration. fn runs with the key's shard locked.
func WithExpireHook(fn func(key string)) Option {
	return func(s *Store) {
		s.onExpire = fn
	}
}

// WithShards sets the shard count. It must be a power of 2.
func WithShards(n int) Option {
	return func(s *Store) {
		s.items = cmap.NewWithShards[*record](n)
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		items: cmap.New[*record](),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NowMillis returns the store clock in epoch milliseconds.
func (s *Store) NowMillis() int64 {
	return s.now().UnixMilli()
}

// Do resolves key and runs fn with the key's shard locked. An expired key is
// purged before fn sees it.
func (s *Store) Do(key string, fn func(tx *Txn)) {
	s.items.Do(key, func(items map[string]*record) {
		tx := &Txn{items: items, key: key, now: s.NowMillis()}
		if rec, ok := items[key]; ok && expired(rec, tx.now) {
			delete(items, key)
			tx.purged = rec.entry != nil
			if s.onExpire != nil {
				s.onExpire(key)
			}
		}
		fn(tx)
	})
}

// Count returns the number of keys holding an entry.
func (s *Store) Count() int {
	n := 0
	s.items.Range(func(_ string, rec *record) bool {
		if rec.entry != nil {
			n++
		}
		return true
	})
	return n
}

// ShardIndex returns the shard owning key.
func (s *Store) ShardIndex(key string) int {
	return s.items.ShardIndex(key)
}

// Flush removes every key.
func (s *Store) Flush() {
	s.items.Clear()
}

func expired(rec *record, now int64) bool {
	return rec.deadline != 0 && rec.deadline < now
}

// Txn is the view of a single key handed to Store.Do. It is only valid
// inside the callback.
type Txn struct {
	items  map[string]*record
	key    string
	now    int64
	purged bool
}

// Key returns the key the transaction was opened for.
func (tx *Txn) Key() string { return tx.key }

// NowMillis returns the time the key was resolved at.
func (tx *Txn) NowMillis() int64 { return tx.now }

// Purged reports whether resolving the key removed an expired entry.
func (tx *Txn) Purged() bool { return tx.purged }

// Entry returns the live entry, or nil if the key is absent.
func (tx *Txn) Entry() *domain.Entry {
	if rec, ok := tx.items[tx.key]; ok {
		return rec.entry
	}
	return nil
}

// Put stores e under the key. An existing deadline is kept.
func (tx *Txn) Put(e *domain.Entry) {
	if rec, ok := tx.items[tx.key]; ok {
		rec.entry = e
		return
	}
	tx.items[tx.key] = &record{entry: e}
}

// Delete removes the entry and its deadline. It reports whether an entry
// was present.
func (tx *Txn) Delete() bool {
	rec, ok := tx.items[tx.key]
	if !ok || rec.entry == nil {
		return false
	}
	delete(tx.items, tx.key)
	return true
}

// Deadline returns the key's deadline in epoch milliseconds.
func (tx *Txn) Deadline() (int64, bool) {
	rec, ok := tx.items[tx.key]
	if !ok || rec.deadline == 0 {
		return 0, false
	}
	return rec.deadline, true
}

// SetDeadline sets an absolute deadline. It is a no-op for an absent key.
func (tx *Txn) SetDeadline(ms int64) {
	if rec, ok := tx.items[tx.key]; ok && rec.entry != nil {
		rec.deadline = ms
	}
}

// ClearDeadline removes the key's TTL.
func (tx *Txn) ClearDeadline() {
	rec, ok := tx.items[tx.key]
	if !ok {
		return
	}
	if rec.entry == nil {
		delete(tx.items, tx.key)
		return
	}
	rec.deadline = 0
}
