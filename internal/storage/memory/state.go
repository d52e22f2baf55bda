package memory

import (
	"github.com/yndnr/memkv/internal/core/domain"
)

// State is a full copy of the keyspace. Its JSON form is the snapshot
// payload.
type State struct {
	Store           map[string]*domain.Entry `json:"store"`
	ExpirationTimes map[string]int64         `json:"expirationTimes"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Store:           make(map[string]*domain.Entry),
		ExpirationTimes: make(map[string]int64),
	}
}

// Equal reports whether two states hold the same entries and deadlines.
func (st *State) Equal(o *State) bool {
	if len(st.Store) != len(o.Store) || len(st.ExpirationTimes) != len(o.ExpirationTimes) {
		return false
	}
	for k, e := range st.Store {
		if !e.Equal(o.Store[k]) {
			return false
		}
	}
	for k, d := range st.ExpirationTimes {
		if od, ok := o.ExpirationTimes[k]; !ok || od != d {
			return false
		}
	}
	return true
}

// Export copies the whole keyspace with every shard locked. If capture is
// non-nil it runs inside the same critical section, after the copy is
// taken; persistence uses it to read the log offset that matches the copy.
func (s *Store) Export(capture func()) *State {
	st := NewState()
	s.items.Freeze(func(shards []map[string]*record) {
		for _, items := range shards {
			for key, rec := range items {
				if rec.entry != nil {
					st.Store[key] = rec.entry.Clone()
				}
				if rec.deadline != 0 {
					st.ExpirationTimes[key] = rec.deadline
				}
			}
		}
		if capture != nil {
			capture()
		}
	})
	return st
}

// Import merges st into the keyspace. Entries and deadlines present in st
// overwrite the current ones; everything else is left untouched.
func (s *Store) Import(st *State) {
	if st == nil {
		return
	}
	s.items.Freeze(func(shards []map[string]*record) {
		slot := func(key string) *record {
			items := shards[s.items.ShardIndex(key)]
			rec, ok := items[key]
			if !ok {
				rec = &record{}
				items[key] = rec
			}
			return rec
		}
		for key, e := range st.Store {
			if e == nil {
				continue
			}
			slot(key).entry = e.Clone()
		}
		for key, ms := range st.ExpirationTimes {
			if ms == 0 {
				continue
			}
			slot(key).deadline = ms
		}
	})
}
