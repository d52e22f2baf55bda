package snapshot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/storage/memory"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

var (
	generationRoot = []byte("g/")
	entryTag       = []byte("e/")
	deadlineTag    = []byte("x/")
	metaKey        = []byte("m/meta")
)

const (
	badgerIndexCacheSize = 16 << 20
	badgerGCDiscardRatio = 0.5
)

// BadgerBackend stores the snapshot in an embedded badger database.
type BadgerBackend struct {
	db     *badger.DB
	dir    string
	logger logger.Logger
}

// NewBadgerBackend opens (or creates) the database at dir. A non-empty key
// turns on badger's encryption at rest.
func NewBadgerBackend(dir string, key []byte, log logger.Logger) (*BadgerBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot: badger dir is required")
	}
	if log == nil {
		log = logger.Default()
	}
	log = logger.Named(log, "badger")

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(&badgerLogger{logger: log}).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1)
	if len(key) > 0 {
		opts = opts.WithEncryptionKey(key).WithIndexCacheSize(badgerIndexCacheSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open badger: %w", err)
	}
	return &BadgerBackend{db: db, dir: dir, logger: log}, nil
}

// Save writes st under a fresh generation and then points the meta record
// at it in a single transaction. Until that commit, Load keeps returning
// the previous generation; afterwards the previous one is dropped.
func (b *BadgerBackend) Save(ctx context.Context, st *memory.State, aofOffset int64) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cur, err := b.generation()
	if err != nil {
		return nil, err
	}
	next := cur + 1
	// Clears whatever an earlier interrupted save staged.
	if err := b.dropGenerations(cur); err != nil {
		return nil, err
	}

	hdr := header{
		Version:    headerVersion,
		CreatedAt:  time.Now().UnixMilli(),
		Keys:       len(st.Store),
		AOFOffset:  aofOffset,
		Encrypted:  b.encrypted(),
		Generation: next,
	}
	meta, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}

	stage := generationPrefix(next)
	entries := prefixed(stage, string(entryTag))
	deadlines := prefixed(stage, string(deadlineTag))

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for key, e := range st.Store {
		if e == nil {
			continue
		}
		value, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("snapshot: marshal entry: %w", err)
		}
		if err := wb.Set(prefixed(entries, key), value); err != nil {
			return nil, fmt.Errorf("snapshot: batch set: %w", err)
		}
	}
	for key, ms := range st.ExpirationTimes {
		var value [8]byte
		binary.BigEndian.PutUint64(value[:], uint64(ms))
		if err := wb.Set(prefixed(deadlines, key), value[:]); err != nil {
			return nil, fmt.Errorf("snapshot: batch set: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, fmt.Errorf("snapshot: flush batch: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey, meta)
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: commit meta: %w", err)
	}

	// The new generation is live; a failure here only leaves garbage for
	// the next save to drop.
	if err := b.dropGenerations(next); err != nil {
		b.logger.Warn("drop old generation failed", "generation", cur, "error", err)
	}
	if reclaimed := b.gc(); reclaimed > 0 {
		b.logger.Debug("value log gc", "rewrites", reclaimed)
	}

	lsm, vlog := b.db.Size()
	return &Info{
		Backend:   BackendBadger,
		Path:      b.dir,
		Keys:      hdr.Keys,
		AOFOffset: aofOffset,
		CreatedAt: hdr.CreatedAt,
		Size:      lsm + vlog,
		Encrypted: hdr.Encrypted,
	}, nil
}

// Load reads the generation the meta record points at.
func (b *BadgerBackend) Load(ctx context.Context) (*memory.State, *Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	st := memory.NewState()
	var hdr header

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSnapshot
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &hdr) }); err != nil {
			return fmt.Errorf("snapshot: unmarshal header: %w", err)
		}

		gen := generationPrefix(hdr.Generation)
		if err := scan(txn, prefixed(gen, string(entryTag)), func(key string, v []byte) error {
			e := new(domain.Entry)
			if err := json.Unmarshal(v, e); err != nil {
				return fmt.Errorf("snapshot: entry %q: %w", key, err)
			}
			st.Store[key] = e
			return nil
		}); err != nil {
			return err
		}
		return scan(txn, prefixed(gen, string(deadlineTag)), func(key string, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("snapshot: deadline %q: invalid length %d", key, len(v))
			}
			st.ExpirationTimes[key] = int64(binary.BigEndian.Uint64(v))
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	lsm, vlog := b.db.Size()
	return st, &Info{
		Backend:   BackendBadger,
		Path:      b.dir,
		Keys:      hdr.Keys,
		AOFOffset: hdr.AOFOffset,
		CreatedAt: hdr.CreatedAt,
		Size:      lsm + vlog,
		Encrypted: hdr.Encrypted,
	}, nil
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("snapshot: close badger: %w", err)
	}
	return nil
}

func (b *BadgerBackend) encrypted() bool {
	return len(b.db.Opts().EncryptionKey) > 0
}

// generation returns the committed generation, 0 when nothing is stored.
func (b *BadgerBackend) generation() (uint64, error) {
	var hdr header
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &hdr) })
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("snapshot: read meta: %w", err)
	}
	return hdr.Generation, nil
}

// dropGenerations deletes every stored generation except keep.
func (b *BadgerBackend) dropGenerations(keep uint64) error {
	var stale [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = generationRoot
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); {
			gen, ok := parseGeneration(it.Item().Key())
			if !ok {
				it.Next()
				continue
			}
			if gen != keep {
				stale = append(stale, generationPrefix(gen))
			}
			if gen == math.MaxUint64 {
				break
			}
			it.Seek(generationPrefix(gen + 1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("snapshot: scan generations: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	if err := b.db.DropPrefix(stale...); err != nil {
		return fmt.Errorf("snapshot: drop generations: %w", err)
	}
	return nil
}

// gc runs value log GC until there is nothing left to rewrite.
func (b *BadgerBackend) gc() int {
	n := 0
	for {
		err := b.db.RunValueLogGC(badgerGCDiscardRatio)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
				b.logger.Warn("value log gc failed", "error", err)
			}
			return n
		}
		n++
	}
}

func scan(txn *badger.Txn, prefix []byte, fn func(key string, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := string(item.Key()[len(prefix):])
		if err := item.Value(func(v []byte) error { return fn(key, v) }); err != nil {
			return err
		}
	}
	return nil
}

// generationPrefix is "g/<gen as 16 hex digits>/", so byte order matches
// numeric order.
func generationPrefix(gen uint64) []byte {
	return []byte(fmt.Sprintf("g/%016x/", gen))
}

func parseGeneration(key []byte) (uint64, bool) {
	const width = 16
	if len(key) < len(generationRoot)+width+1 || key[len(generationRoot)+width] != '/' {
		return 0, false
	}
	gen, err := strconv.ParseUint(string(key[len(generationRoot):len(generationRoot)+width]), 16, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

func prefixed(prefix []byte, key string) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

// badgerLogger adapts logger.Logger to badger's Logger interface.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
