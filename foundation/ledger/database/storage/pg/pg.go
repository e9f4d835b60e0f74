// Package pg implements the database.Storage interface on PostgreSQL.
// Blocks and transactions are stored as JSONB rows with a single row
// holding the latest state snapshot. A commit runs inside one SQL
// transaction so the block and snapshot always move together.
package pg

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/gridmesh/energyledger/foundation/ledger/database"
)

//go:embed migrations/*
var migrationsFS embed.FS

// PG represents the PostgreSQL storage implementation. This implements the
// database.Storage interface.
type PG struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL with the given connection string and brings
// the schema up to date. Migrations are idempotent.
func New(ctx context.Context, connString string) (*PG, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	pgs := PG{
		pool: pool,
	}

	if err := pgs.runMigrations(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &pgs, nil
}

// Close releases the connection pool.
func (p *PG) Close() error {
	p.pool.Close()
	return nil
}

// Commit appends the block and replaces the state snapshot inside one SQL
// transaction.
func (p *PG) Commit(block database.BlockData, state database.ChainState) error {
	ctx := context.Background()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %s", database.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	if err := checkParent(ctx, tx, block); err != nil {
		return err
	}

	const insertBlock = `
	INSERT INTO blocks (number, hash, data)
	VALUES ($1, $2, $3)`

	if _, err := tx.Exec(ctx, insertBlock, block.Header.Number, block.Hash, block); err != nil {
		return fmt.Errorf("%w: insert block %d: %s", database.ErrStorage, block.Header.Number, err)
	}

	const insertTx = `
	INSERT INTO transactions (id, block_number, data)
	VALUES ($1, $2, $3)`

	for _, btx := range block.Trans {
		if _, err := tx.Exec(ctx, insertTx, btx.ID, block.Header.Number, btx); err != nil {
			return fmt.Errorf("%w: insert transaction %s: %s", database.ErrStorage, btx.ID, err)
		}
	}

	const upsertState = `
	INSERT INTO chain_state (id, data)
	VALUES (1, $1)
	ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`

	if _, err := tx.Exec(ctx, upsertState, state); err != nil {
		return fmt.Errorf("%w: upsert state: %s", database.ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %s", database.ErrStorage, err)
	}

	return nil
}

// LatestBlock returns the chain head.
func (p *PG) LatestBlock() (database.BlockData, error) {
	const q = `
	SELECT data
	FROM blocks
	ORDER BY number DESC
	LIMIT 1`

	return p.queryBlock(q)
}

// GetBlock returns the block at the given height.
func (p *PG) GetBlock(num uint64) (database.BlockData, error) {
	const q = `
	SELECT data
	FROM blocks
	WHERE number = $1`

	return p.queryBlock(q, num)
}

// GetBlockByHash returns the block with the given hash.
func (p *PG) GetBlockByHash(hash string) (database.BlockData, error) {
	const q = `
	SELECT data
	FROM blocks
	WHERE hash = $1`

	return p.queryBlock(q, hash)
}

// GetTransaction returns a committed transaction by id.
func (p *PG) GetTransaction(id string) (database.BlockTx, error) {
	const q = `
	SELECT data
	FROM transactions
	WHERE id = $1`

	var tx database.BlockTx
	if err := p.pool.QueryRow(context.Background(), q, id).Scan(&tx); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.BlockTx{}, fmt.Errorf("%w: transaction %s", database.ErrNotFound, id)
		}
		return database.BlockTx{}, fmt.Errorf("query transaction %s: %w", id, err)
	}

	return tx, nil
}

// State returns the persisted snapshot.
func (p *PG) State() (database.ChainState, error) {
	const q = `
	SELECT data
	FROM chain_state
	WHERE id = 1`

	var state database.ChainState
	if err := p.pool.QueryRow(context.Background(), q).Scan(&state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.ChainState{}, fmt.Errorf("%w: no state committed", database.ErrNotFound)
		}
		return database.ChainState{}, fmt.Errorf("query state: %w", err)
	}

	return state, nil
}

// ChainLength returns the number of committed blocks.
func (p *PG) ChainLength() (uint64, error) {
	const q = `
	SELECT COUNT(*)
	FROM blocks`

	var length uint64
	if err := p.pool.QueryRow(context.Background(), q).Scan(&length); err != nil {
		return 0, fmt.Errorf("query chain length: %w", err)
	}

	return length, nil
}

// =============================================================================

func (p *PG) queryBlock(q string, args ...any) (database.BlockData, error) {
	var block database.BlockData
	if err := p.pool.QueryRow(context.Background(), q, args...).Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.BlockData{}, fmt.Errorf("%w: block", database.ErrNotFound)
		}
		return database.BlockData{}, fmt.Errorf("query block: %w", err)
	}

	return block, nil
}

// checkParent validates the block extends the current head inside the same
// SQL transaction that writes it.
func checkParent(ctx context.Context, tx pgx.Tx, block database.BlockData) error {
	const q = `
	SELECT number, hash
	FROM blocks
	ORDER BY number DESC
	LIMIT 1`

	var headNum uint64
	var headHash string
	err := tx.QueryRow(ctx, q).Scan(&headNum, &headHash)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if block.Header.Number != 0 {
			return fmt.Errorf("%w: first block must be number 0, got %d", database.ErrChainIntegrity, block.Header.Number)
		}
		return nil
	case err != nil:
		return fmt.Errorf("query head: %w", err)
	}

	if block.Header.Number <= headNum {
		return fmt.Errorf("%w: block %d already committed", database.ErrDupBlock, block.Header.Number)
	}
	if block.Header.Number != headNum+1 {
		return fmt.Errorf("%w: block %d does not follow head %d", database.ErrChainIntegrity, block.Header.Number, headNum)
	}
	if block.Header.ParentHash != headHash {
		return fmt.Errorf("%w: parent hash %s does not match head %s", database.ErrChainIntegrity, block.Header.ParentHash, headHash)
	}

	return nil
}

func (p *PG) runMigrations() error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := migratepgx.WithInstance(stdlib.OpenDBFromPool(p.pool), &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
