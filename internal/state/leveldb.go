package state

import (
	"bytes"
	"encoding/gob"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const entryPrefix = "s:"

// LevelDBStore persists entries in a LevelDB database, gob-encoded, under
// an "s:" key prefix.
type LevelDBStore struct {
	mu     sync.RWMutex
	db     *leveldb.DB
	closed bool
}

func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, &StoreError{Message: path, Cause: ErrCauseOpen, Err: err}
	}
	return &LevelDBStore{db: db}, nil
}

func (l *LevelDBStore) Get(key string) (Entry, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return Entry{}, false, &StoreError{Message: key, Cause: ErrCauseClosed}
	}

	raw, err := l.db.Get([]byte(entryPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, &StoreError{Message: key, Cause: ErrCauseRead, Err: err}
	}

	var entry Entry
	if err := decodeGob(raw, &entry); err != nil {
		return Entry{}, false, &StoreError{Message: key, Cause: ErrCauseDecode, Err: err}
	}
	return entry, true, nil
}

func (l *LevelDBStore) Put(key string, entry Entry) error {
	raw, err := encodeGob(entry)
	if err != nil {
		return &StoreError{Message: key, Cause: ErrCauseWrite, Err: err}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return &StoreError{Message: key, Cause: ErrCauseClosed}
	}
	if err := l.db.Put([]byte(entryPrefix+key), raw, nil); err != nil {
		return &StoreError{Message: key, Cause: ErrCauseWrite, Err: err}
	}
	return nil
}

func (l *LevelDBStore) Delete(key string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return &StoreError{Message: key, Cause: ErrCauseClosed}
	}

	batch := new(leveldb.Batch)
	batch.Delete([]byte(entryPrefix + key))
	if err := l.db.Write(batch, nil); err != nil {
		return &StoreError{Message: key, Cause: ErrCauseWrite, Err: err}
	}
	return nil
}

// Keys returns the keys in LevelDB order, which is lexical.
func (l *LevelDBStore) Keys() ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, &StoreError{Cause: ErrCauseClosed}
	}

	it := l.db.NewIterator(util.BytesPrefix([]byte(entryPrefix)), nil)
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(bytes.TrimPrefix(it.Key(), []byte(entryPrefix))))
	}
	if err := it.Error(); err != nil {
		return nil, &StoreError{Cause: ErrCauseRead, Err: err}
	}
	return keys, nil
}

// Close is idempotent.
func (l *LevelDBStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
