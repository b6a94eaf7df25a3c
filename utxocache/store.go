// Package utxocache keeps the last scanned UTXO set of each address in a
// bbolt database so spends can be prepared without a network round trip.
package utxocache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libcashtx-go/log"
	"github.com/bitfsorg/libcashtx-go/tx"
)

var (
	bucketAddresses = []byte("addresses") // address -> nested bucket of outpoint -> utxo
	bucketOutpoints = []byte("outpoints") // outpoint -> address
)

// ErrNilParam indicates a nil UTXO was supplied.
var ErrNilParam = errors.New("utxocache: nil parameter")

// Store is a bbolt-backed UTXO cache.
type Store struct {
	db     *bbolt.DB
	logger zerolog.Logger
}

// Open opens or creates the cache at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("utxocache: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("utxocache: open bolt db: %w", err)
	}
	err = db.Update(func(btx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAddresses, bucketOutpoints} {
			if _, err := btx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("utxocache: %w", err)
	}
	return &Store{db: db, logger: log.Cache}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Put replaces the cached UTXO set of address.
func (s *Store) Put(address string, utxos []*tx.UTXO) error {
	for i, u := range utxos {
		if u == nil {
			return fmt.Errorf("%w: utxo %d", ErrNilParam, i)
		}
	}
	err := s.db.Update(func(btx *bbolt.Tx) error {
		addrs := btx.Bucket(bucketAddresses)
		ops := btx.Bucket(bucketOutpoints)

		if old := addrs.Bucket([]byte(address)); old != nil {
			if err := old.ForEach(func(k, _ []byte) error { return ops.Delete(k) }); err != nil {
				return err
			}
			if err := addrs.DeleteBucket([]byte(address)); err != nil {
				return err
			}
		}
		b, err := addrs.CreateBucket([]byte(address))
		if err != nil {
			return err
		}
		for _, u := range utxos {
			data, err := json.Marshal(u)
			if err != nil {
				return fmt.Errorf("encode %s: %w", u.Outpoint(), err)
			}
			key := []byte(u.Outpoint().String())
			if err := b.Put(key, data); err != nil {
				return err
			}
			if err := ops.Put(key, []byte(address)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("utxocache: put %s: %w", address, err)
	}
	s.logger.Debug().Str("address", address).Int("count", len(utxos)).Msg("utxos cached")
	return nil
}

// List returns the cached UTXOs of address ordered by outpoint. An address
// never cached returns an empty list.
func (s *Store) List(address string) ([]*tx.UTXO, error) {
	var out []*tx.UTXO
	err := s.db.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(bucketAddresses).Bucket([]byte(address))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var u tx.UTXO
			dec := json.NewDecoder(bytes.NewReader(v))
			dec.UseNumber()
			if err := dec.Decode(&u); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			out = append(out, &u)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("utxocache: list %s: %w", address, err)
	}
	return out, nil
}

// Cached reports whether address has been cached, even with an empty set.
func (s *Store) Cached(address string) (bool, error) {
	var ok bool
	err := s.db.View(func(btx *bbolt.Tx) error {
		ok = btx.Bucket(bucketAddresses).Bucket([]byte(address)) != nil
		return nil
	})
	return ok, err
}

// Remove deletes the given outpoints wherever they are cached. Unknown
// outpoints are ignored. It returns the number removed.
func (s *Store) Remove(outpoints ...tx.Outpoint) (int, error) {
	removed := 0
	err := s.db.Update(func(btx *bbolt.Tx) error {
		addrs := btx.Bucket(bucketAddresses)
		ops := btx.Bucket(bucketOutpoints)
		for _, op := range outpoints {
			key := []byte(op.String())
			addr := ops.Get(key)
			if addr == nil {
				continue
			}
			if b := addrs.Bucket(addr); b != nil {
				if err := b.Delete(key); err != nil {
					return err
				}
			}
			if err := ops.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("utxocache: remove: %w", err)
	}
	if removed > 0 {
		s.logger.Debug().Int("count", removed).Msg("spent utxos removed")
	}
	return removed, nil
}
