// Package registry persists instantiated contracts in SQLite, keyed by
// contract address.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/bitfsorg/libcashtx-go/contract"
	"github.com/bitfsorg/libcashtx-go/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS contracts (
	contract_name TEXT NOT NULL,
	address       TEXT PRIMARY KEY,
	token_address TEXT NOT NULL DEFAULT '',
	opcount       INTEGER NOT NULL DEFAULT 0,
	bytesize      INTEGER NOT NULL DEFAULT 0,
	bytecode      TEXT NOT NULL DEFAULT '',
	balance       INTEGER NOT NULL DEFAULT 0,
	utxos         TEXT NOT NULL DEFAULT '[]',
	artifact      TEXT NOT NULL,
	abi           TEXT NOT NULL DEFAULT '[]',
	redeemScript  TEXT NOT NULL DEFAULT '{}'
);`

const selectColumns = `contract_name, address, token_address, opcount, bytesize,
	bytecode, balance, utxos, artifact, abi, redeemScript`

// Store is the SQLite-backed contract registry.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the registry database at path.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode=WAL&_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database handle and ensures the schema exists.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("registry: create schema: %w", err)
	}
	return &Store{db: db, logger: log.Registry}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces the contract registered at c.Address.
func (s *Store) Put(ctx context.Context, c *Contract) error {
	if err := c.validate(); err != nil {
		return err
	}

	utxos, err := json.Marshal(nonNil(c.UTXOs))
	if err != nil {
		return fmt.Errorf("registry: encode utxos: %w", err)
	}
	artifact, err := json.Marshal(c.Artifact)
	if err != nil {
		return fmt.Errorf("registry: encode artifact: %w", err)
	}
	abi := c.ABI
	if abi == nil {
		abi = c.Artifact.ABI
	}
	abiJSON, err := json.Marshal(abi)
	if err != nil {
		return fmt.Errorf("registry: encode abi: %w", err)
	}
	redeem, err := json.Marshal(c.RedeemScript)
	if err != nil {
		return fmt.Errorf("registry: encode redeem script: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contracts (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			contract_name = excluded.contract_name,
			token_address = excluded.token_address,
			opcount       = excluded.opcount,
			bytesize      = excluded.bytesize,
			bytecode      = excluded.bytecode,
			balance       = excluded.balance,
			utxos         = excluded.utxos,
			artifact      = excluded.artifact,
			abi           = excluded.abi,
			redeemScript  = excluded.redeemScript`,
		c.Name, c.Address, c.TokenAddress, c.OpCount, c.ByteSize,
		c.Bytecode, int64(c.Balance), string(utxos), string(artifact), string(abiJSON), string(redeem))
	if err != nil {
		return fmt.Errorf("registry: put %s: %w", c.Address, err)
	}
	s.logger.Debug().Str("address", c.Address).Str("contract", c.Name).Msg("contract stored")
	return nil
}

// GetContract returns the contract registered at address.
func (s *Store) GetContract(ctx context.Context, address string) (*Contract, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM contracts WHERE address = ?`, address)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes the contract at address. Deleting a missing contract
// returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, address string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contracts WHERE address = ?`, address)
	if err != nil {
		return fmt.Errorf("registry: delete %s: %w", address, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("registry: delete %s: %w", address, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	return nil
}

// List returns every registered contract ordered by address.
func (s *Store) List(ctx context.Context) ([]*Contract, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM contracts ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var out []*Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(row scanner) (*Contract, error) {
	var (
		c                               Contract
		balance                         int64
		utxos, artifact, abi, redeemRaw string
	)
	err := row.Scan(&c.Name, &c.Address, &c.TokenAddress, &c.OpCount, &c.ByteSize,
		&c.Bytecode, &balance, &utxos, &artifact, &abi, &redeemRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("registry: scan: %w", err)
	}
	c.Balance = uint64(balance)

	if err := json.Unmarshal([]byte(utxos), &c.UTXOs); err != nil {
		return nil, fmt.Errorf("%w: %s utxos: %w", ErrInvalidContract, c.Address, err)
	}
	c.Artifact, err = contract.ParseArtifact([]byte(artifact))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidContract, c.Address, err)
	}
	if err := json.Unmarshal([]byte(abi), &c.ABI); err != nil {
		return nil, fmt.Errorf("%w: %s abi: %w", ErrInvalidContract, c.Address, err)
	}
	// Numbers stay json.Number so large constructor integers survive.
	dec := json.NewDecoder(strings.NewReader(redeemRaw))
	dec.UseNumber()
	if err := dec.Decode(&c.RedeemScript); err != nil {
		return nil, fmt.Errorf("%w: %s redeem script: %w", ErrInvalidContract, c.Address, err)
	}
	return &c, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
