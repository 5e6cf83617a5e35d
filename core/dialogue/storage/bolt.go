package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultBoltBucket = "dialogue_states"

// Bolt persists conversations in a single bbolt file. Every operation runs in
// its own transaction; bbolt allows one writer at a time per file.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBolt opens (creating if needed) the database file at path. timeout bounds
// how long to wait for the file lock held by another process.
func OpenBolt(path, bucket string, timeout time.Duration) (*Bolt, error) {
	if bucket == "" {
		bucket = defaultBoltBucket
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("bolt open %s: %w: %w", path, ErrUnavailable, err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt open %s: %w: %w", path, ErrUnavailable, err)
	}
	name := []byte(bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt bucket %s: %w: %w", bucket, ErrUnavailable, err)
	}
	return &Bolt{db: db, bucket: name}, nil
}

func boltKey(id ChatID) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// GetState loads the record for id. The returned slice is a copy that
// outlives the read transaction.
func (s *Bolt) GetState(ctx context.Context, id ChatID) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var (
		data  []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(s.bucket).Get(boltKey(id)); v != nil {
			data, found = clone(v), true
		}
		return nil
	})
	if err != nil {
		return nil, false, unavailable("bolt", "get", id, err)
	}
	return data, found, nil
}

// UpdateState writes the record for id.
func (s *Bolt) UpdateState(ctx context.Context, id ChatID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(boltKey(id), clone(data))
	})
	if err != nil {
		return unavailable("bolt", "update", id, err)
	}
	return nil
}

// RemoveState deletes the record for id.
func (s *Bolt) RemoveState(ctx context.Context, id ChatID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(boltKey(id))
	})
	if err != nil {
		return unavailable("bolt", "remove", id, err)
	}
	return nil
}

// Close releases the file lock.
func (s *Bolt) Close() error {
	return s.db.Close()
}
