package cursor

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Token is an opaque serialized position in the upstream change feed.
type Token []byte

// Store loads and saves the resume token for one feed.
type Store interface {
	// Load returns the stored token, or ok=false when none has been
	// saved yet (first run).
	Load() (tok Token, ok bool, err error)

	// Save durably replaces the stored token. Save must only be called
	// after the event at that position was handed to the hub.
	Save(tok Token) error

	// Clear removes the stored token, so the next Load reports first-run.
	Clear() error
}

var bucketName = []byte("cursors")

// BoltStore persists resume tokens in a bbolt file, one key per feed ID.
// Writes go through a bolt transaction, so a partially written token is
// never observed after a crash.
type BoltStore struct {
	db  *bolt.DB
	key []byte
}

// OpenBolt opens (or creates) the bbolt file at path and returns a store
// scoped to feedID. The caller owns the returned store and must Close it.
func OpenBolt(path, feedID string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("cursor: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cursor: create bucket: %w", err)
	}

	return &BoltStore{db: db, key: []byte(feedID)}, nil
}

// Load implements Store.
func (s *BoltStore) Load() (Token, bool, error) {
	var tok Token
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(s.key)
		if v != nil {
			tok = append(Token(nil), v...) // copy out of the mmap
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cursor: load: %w", err)
	}
	return tok, tok != nil, nil
}

// Save implements Store.
func (s *BoltStore) Save(tok Token) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(s.key, tok)
	})
	if err != nil {
		return fmt.Errorf("cursor: save: %w", err)
	}
	return nil
}

// Clear removes the stored token. Used by the start-from-now fallback when
// the upstream has invalidated the saved position.
func (s *BoltStore) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(s.key)
	})
	if err != nil {
		return fmt.Errorf("cursor: clear: %w", err)
	}
	return nil
}

// Close closes the underlying bbolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
