// Package keystore holds the private keys that sign plain inputs. Store
// persists them encrypted in bbolt; Static serves them from memory.
package keystore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchutil"
	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libcashtx-go/log"
	"github.com/bitfsorg/libcashtx-go/tx"
)

var bucketKeys = []byte("keys")

// Store is a password-encrypted key store in a bbolt database. Records are
// keyed by prefixed CashAddr.
type Store struct {
	db       *bbolt.DB
	password string
	params   *chaincfg.Params
	kdf      KDFParams
	logger   zerolog.Logger
}

// Options configures Open.
type Options struct {
	Params *chaincfg.Params
	KDF    KDFParams
}

// Open opens or creates the key database at dbPath. The parent directory is
// created if it does not exist.
func Open(dbPath, password string, opts Options) (*Store, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if opts.Params == nil {
		opts.Params = &chaincfg.MainNetParams
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("keystore: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: open bolt db: %w", err)
	}
	err = db.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(bucketKeys)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("keystore: create bucket: %w", err)
	}
	return &Store{
		db:       db,
		password: password,
		params:   opts.Params,
		kdf:      opts.KDF.withDefaults(),
		logger:   log.Keys,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Import encrypts and stores a raw 32-byte private key, returning the P2PKH
// address it controls.
func (s *Store) Import(raw []byte) (string, error) {
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: key is %d bytes", ErrInvalidKey, len(raw))
	}
	key, _ := ec.PrivateKeyFromBytes(raw)
	addr, err := tx.P2PKHAddress(key.PubKey().Compressed(), s.params)
	if err != nil {
		return "", err
	}
	sealed, err := encrypt(raw, s.password, addr, s.kdf)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(bucketKeys).Put([]byte(addr), sealed)
	})
	if err != nil {
		return "", fmt.Errorf("keystore: put %s: %w", addr, err)
	}
	s.logger.Info().Str("address", addr).Msg("key imported")
	return addr, nil
}

// ImportWIF decodes a WIF-encoded key for the store's network and imports it.
func (s *Store) ImportWIF(wif string) (string, error) {
	w, err := bchutil.DecodeWIF(wif)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if !w.IsForNet(s.params) {
		return "", fmt.Errorf("%w: WIF is not for %s", ErrInvalidKey, s.params.Name)
	}
	return s.Import(w.PrivKey.Serialize())
}

// FetchPrivateKey decrypts and returns the key controlling address.
func (s *Store) FetchPrivateKey(ctx context.Context, address string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr, err := s.normalize(address)
	if err != nil {
		return nil, err
	}
	var sealed []byte
	err = s.db.View(func(btx *bbolt.Tx) error {
		v := btx.Bucket(bucketKeys).Get([]byte(addr))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, addr)
		}
		sealed = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decrypt(sealed, s.password, addr)
}

// Delete removes the key for address.
func (s *Store) Delete(address string) error {
	addr, err := s.normalize(address)
	if err != nil {
		return err
	}
	return s.db.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(bucketKeys)
		if b.Get([]byte(addr)) == nil {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, addr)
		}
		return b.Delete([]byte(addr))
	})
}

// Addresses lists the stored addresses in sorted order.
func (s *Store) Addresses() ([]string, error) {
	var out []string
	err := s.db.View(func(btx *bbolt.Tx) error {
		return btx.Bucket(bucketKeys).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: list: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) normalize(address string) (string, error) {
	a, err := tx.DecodeAddress(address, s.params)
	if err != nil {
		return "", err
	}
	return s.params.CashAddressPrefix + ":" + a.EncodeAddress(), nil
}
