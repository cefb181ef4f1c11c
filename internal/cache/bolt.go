package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/piwi3910/SheetNest/internal/model"
)

// FileName is the database file created inside a cache directory.
const FileName = "results.db"

var resultsBucket = []byte("results")

// Bolt is a persistent cache backed by a bbolt database file.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the cache database in dir.
func OpenBolt(dir string) (*Bolt, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, FileName), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resultsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating results bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Get decodes the result stored under key. An entry that does not decode is
// reported as ErrCorrupt; it stays in place until Delete removes it.
func (b *Bolt) Get(key string) (model.Result, bool, error) {
	var result model.Result
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(resultsBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("%w %q: %w", ErrCorrupt, key, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return model.Result{}, false, err
	}
	return result, found, nil
}

// PutIfAbsent writes result in a single transaction unless key already
// exists, and reports whether it was written.
func (b *Bolt) PutIfAbsent(key string, result model.Result) (bool, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("encoding result: %w", err)
	}
	stored := false
	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(resultsBucket)
		if bucket.Get([]byte(key)) != nil {
			return nil
		}
		stored = true
		return bucket.Put([]byte(key), data)
	})
	if err != nil {
		return false, fmt.Errorf("writing cache entry: %w", err)
	}
	return stored, nil
}

// Delete removes the entry stored under key.
func (b *Bolt) Delete(key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(resultsBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// Len returns the number of stored results.
func (b *Bolt) Len() int {
	n := 0
	_ = b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(resultsBucket).Stats().KeyN
		return nil
	})
	return n
}

// Close releases the database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}
