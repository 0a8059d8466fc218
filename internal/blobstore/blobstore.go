// Package blobstore stores large artifact payloads (code bundles) outside
// the run database, addressed by content hash.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// RefPrefix marks an opaque blob reference
const RefPrefix = "blob:"

// ErrNotFound means the referenced blob does not exist
var ErrNotFound = errors.New("blob not found")

// Store is a content-addressed blob store backed by Badger
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a blob store at dir
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores data and returns its opaque reference. Storing the same
// bytes twice yields the same reference.
func (s *Store) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	key := sum[:]
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return "", fmt.Errorf("storing blob: %w", err)
	}
	return RefPrefix + hex.EncodeToString(key), nil
}

// Get resolves a reference produced by Put
func (s *Store) Get(ref string) ([]byte, error) {
	hexKey := strings.TrimPrefix(ref, RefPrefix)
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid blob ref %q: %w", ref, err)
	}

	var data []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes a blob; deleting a missing blob is not an error
func (s *Store) Delete(ref string) error {
	hexKey := strings.TrimPrefix(ref, RefPrefix)
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return fmt.Errorf("invalid blob ref %q: %w", ref, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}
