// Package pebblestore is the durable Store backed by cockroachdb/pebble.
package pebblestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/store/codec"
	"github.com/karthiknish/aroosi-sub016/pkg/store/keys"
	"github.com/karthiknish/aroosi-sub016/pkg/store/locks"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
)

const schemaVersion = "1"

type Options struct {
	// SyncWrites fsyncs the WAL on every commit.
	SyncWrites bool
	ReadOnly   bool
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS vfs.FS
}

type Store struct {
	db    *pebble.DB
	path  string
	write *pebble.WriteOptions
	ro    bool

	locks locks.Keyed
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	popts := &pebble.Options{ReadOnly: opts.ReadOnly}
	if opts.FS != nil {
		popts.FS = opts.FS
	}
	db, err := pebble.Open(path, popts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	s := &Store{db: db, path: path, write: pebble.NoSync, ro: opts.ReadOnly}
	if opts.SyncWrites {
		s.write = pebble.Sync
	} else {
		logger.Warn("durability_relaxed", "path", path, "sync_writes", false)
	}
	if !opts.ReadOnly {
		if err := s.db.Set([]byte(keys.SystemVersionKey), []byte(schemaVersion), pebble.Sync); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for inspection tooling.
func (s *Store) DB() *pebble.DB { return s.db }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return store.Unavailable("ping", errors.New("pebble not opened"))
	}
	_, closer, err := s.db.Get([]byte(keys.SystemVersionKey))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) && s.ro {
			return nil
		}
		return store.Unavailable("ping", err)
	}
	closer.Close()
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// get decodes the value at key into v. found is false when the key is
// absent.
func (s *Store) get(op, key string, v any) (bool, error) {
	if s.db == nil {
		return false, store.Unavailable(op, errors.New("pebble not opened"))
	}
	raw, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		logger.Error("get_key_failed", "key", key, "error", err)
		return false, store.Unavailable(op, err)
	}
	defer closer.Close()
	if err := codec.Unmarshal(raw, v); err != nil {
		return false, store.Unavailable(op, fmt.Errorf("decode %s: %w", key, err))
	}
	return true, nil
}

func (s *Store) has(op, key string) (bool, error) {
	if s.db == nil {
		return false, store.Unavailable(op, errors.New("pebble not opened"))
	}
	_, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, store.Unavailable(op, err)
	}
	closer.Close()
	return true, nil
}

// batch collects encoded writes and commits them atomically.
type batch struct {
	b   *pebble.Batch
	err error
}

func (s *Store) newBatch() *batch {
	return &batch{b: s.db.NewBatch()}
}

func (b *batch) put(key string, v any) {
	if b.err != nil {
		return
	}
	data, err := codec.Marshal(v)
	if err != nil {
		b.err = fmt.Errorf("encode %s: %w", key, err)
		return
	}
	b.err = b.b.Set([]byte(key), data, nil)
}

func (b *batch) del(key string) {
	if b.err != nil {
		return
	}
	b.err = b.b.Delete([]byte(key), nil)
}

func (s *Store) commit(op string, b *batch) error {
	defer b.b.Close()
	if b.err != nil {
		return store.Unavailable(op, b.err)
	}
	if err := b.b.Commit(s.write); err != nil {
		logger.Error("batch_commit_failed", "op", op, "error", err)
		return store.Unavailable(op, err)
	}
	return nil
}

// scan visits keys with prefix in order (or reverse) until fn returns false.
func (s *Store) scan(op, prefix string, reverse bool, fn func(key, value []byte) (bool, error)) error {
	if s.db == nil {
		return store.Unavailable(op, errors.New("pebble not opened"))
	}
	tr := telemetry.Track("db." + op)
	defer tr.Finish()

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keys.PrefixEnd(prefix),
	})
	if err != nil {
		return store.Unavailable(op, err)
	}
	defer iter.Close()

	valid := iter.First()
	step := iter.Next
	if reverse {
		valid = iter.Last()
		step = iter.Prev
	}
	for ; valid; valid = step() {
		if !bytes.HasPrefix(iter.Key(), []byte(prefix)) {
			break
		}
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return store.Unavailable(op, err)
	}
	return nil
}

// ListKeys returns every key with prefix, for inspection tooling.
func (s *Store) ListKeys(prefix string) ([]string, error) {
	var out []string
	if prefix == "" {
		iter, err := s.db.NewIter(&pebble.IterOptions{})
		if err != nil {
			return nil, err
		}
		defer iter.Close()
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(iter.Key()))
		}
		return out, iter.Error()
	}
	err := s.scan("list_keys", prefix, false, func(k, _ []byte) (bool, error) {
		out = append(out, string(k))
		return true, nil
	})
	return out, err
}

// GetRaw returns the raw stored bytes at key.
func (s *Store) GetRaw(key string) ([]byte, error) {
	raw, closer, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), raw...), nil
}
