package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	messageBucket = "relayed_messages"
	expiryBytes   = 8
)

var errBucketMissing = errors.New("relayed_messages bucket missing")

// boltStore implements a Store backed by BoltDB. Each key is a delivery id and
// each value its big-endian unix expiry.
type boltStore struct {
	db              *bolt.DB
	messageTTL      time.Duration
	cleanupInterval time.Duration

	sweepMu   sync.Mutex
	lastSweep atomic.Int64
	now       func() time.Time
}

// openBolt initializes a BoltDB-backed Store, creating parent directories.
func openBolt(path string, opts Options) (Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(messageBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		messageTTL:      opts.MessageTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastSweep.Store(store.now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// SeenMessage reports whether a delivery with the given ID was already
// forwarded and has not expired. Expired entries are dropped on read.
func (b *boltStore) SeenMessage(id string) (bool, error) {
	if b == nil || b.db == nil {
		return false, nil
	}
	now := b.now()
	if err := b.sweep(now); err != nil {
		return false, err
	}

	var seen bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(messageBucket))
		if bucket == nil {
			return errBucketMissing
		}
		key := []byte(id)
		raw := bucket.Get(key)
		if raw == nil {
			return nil
		}
		if expired(raw, now) {
			return bucket.Delete(key)
		}
		seen = true
		return nil
	})
	return seen, err
}

// MarkMessage records a forwarded delivery until its TTL elapses.
func (b *boltStore) MarkMessage(id string) error {
	if b == nil || b.db == nil {
		return nil
	}
	now := b.now()
	if err := b.sweep(now); err != nil {
		return err
	}

	val := make([]byte, expiryBytes)
	binary.BigEndian.PutUint64(val, uint64(now.Add(b.messageTTL).Unix()))
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(messageBucket))
		if bucket == nil {
			return errBucketMissing
		}
		return bucket.Put([]byte(id), val)
	})
}

// sweep deletes expired entries at most once per cleanup interval.
func (b *boltStore) sweep(now time.Time) error {
	if now.Sub(time.Unix(b.lastSweep.Load(), 0)) < b.cleanupInterval {
		return nil
	}

	b.sweepMu.Lock()
	defer b.sweepMu.Unlock()
	if now.Sub(time.Unix(b.lastSweep.Load(), 0)) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(messageBucket))
		if bucket == nil {
			return errBucketMissing
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !expired(v, now) {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		b.lastSweep.Store(now.Unix())
	}
	return err
}

// expired treats malformed values as expired.
func expired(raw []byte, now time.Time) bool {
	if len(raw) != expiryBytes {
		return true
	}
	unix := int64(binary.BigEndian.Uint64(raw))
	return unix <= 0 || !time.Unix(unix, 0).After(now)
}
