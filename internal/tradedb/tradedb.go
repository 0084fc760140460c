// Package tradedb persists derived trades, pools and token metadata for
// the dex indexer, behind a single monotone indexed_till watermark.
package tradedb

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/pkg/logging"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

// MaxTotalResultSize caps the estimated serialized size of one trade query
// result. Trades are small, so the cap is far larger than the event
// store's.
const MaxTotalResultSize = 2256000

// tradeEncodedSize is the per-trade size estimate: three addresses, two
// amounts, block and index fields, origin.
const tradeEncodedSize = 32 + 32 + 32 + 16 + 16 + 4 + 4 + 32

// ErrInconsistentBlockNumber reports a batch that does not start right
// after the watermark.
var ErrInconsistentBlockNumber = errors.New("trade batch does not abut indexed_till")

// Trade is one decoded swap.
type Trade struct {
	Pool           chain.AccountID `json:"pool"`
	TokenIn        chain.AccountID `json:"token_in"`
	TokenOut       chain.AccountID `json:"token_out"`
	AmountIn       u128.Amount     `json:"amount_in"`
	AmountOut      u128.Amount     `json:"amount_out"`
	BlockNum       uint32          `json:"block_num"`
	EventIndex     uint32          `json:"event_index"`
	ExtrinsicIndex uint32          `json:"extrinsic_index"`
	Origin         chain.AccountID `json:"origin"`
}

// Pool is an AMM pair definition derived from contract storage.
type Pool struct {
	Address  chain.AccountID `json:"pool"`
	Token0   chain.AccountID `json:"token_0"`
	Token1   chain.AccountID `json:"token_1"`
	Reserve0 u128.Amount     `json:"reserve_0"`
	Reserve1 u128.Amount     `json:"reserve_1"`
	Fee      uint8           `json:"fee"`
}

// Token is PSP-22 metadata for one token contract.
type Token struct {
	Address  chain.AccountID `json:"address"`
	Name     *string         `json:"name"`
	Symbol   *string         `json:"symbol"`
	Decimals uint8           `json:"decimals"`
}

// QueryResult is a possibly-truncated result page.
type QueryResult[T any] struct {
	Data       []T  `json:"data"`
	IsComplete bool `json:"is_complete"`
}

// Store is the SQLite-backed trade database. The dex indexer is its single
// writer.
type Store struct {
	db  *sql.DB
	log *logging.Logger
	mu  sync.Mutex
}

// Open opens the database, retrying with exponential backoff from 1 ms.
func Open(path string) *Store {
	log := logging.GetDefault().Component("tradedb")
	backoff := time.Millisecond
	for {
		db, err := open(path)
		if err == nil {
			return &Store{db: db, log: log}
		}
		log.Error("Failed to open trade database", "path", path, "error", err, "retry_in", backoff)
		time.Sleep(backoff)
		backoff *= 2
	}
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pool TEXT NOT NULL,
		token_in TEXT NOT NULL,
		token_out TEXT NOT NULL,
		amount_in TEXT NOT NULL,
		amount_out TEXT NOT NULL,
		block_num INTEGER NOT NULL,
		event_index INTEGER NOT NULL,
		extrinsic_index INTEGER NOT NULL,
		origin TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_block_num ON trades(block_num);
	CREATE INDEX IF NOT EXISTS idx_trades_origin ON trades(origin, block_num);

	CREATE TABLE IF NOT EXISTS pools (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pool TEXT NOT NULL UNIQUE,
		token_0 TEXT NOT NULL,
		token_1 TEXT NOT NULL,
		reserve_0 TEXT NOT NULL,
		reserve_1 TEXT NOT NULL,
		fee INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL UNIQUE,
		name TEXT,
		symbol TEXT,
		decimals INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		id INTEGER PRIMARY KEY,
		indexed_till INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init establishes the watermark at startBlock unless one exists.
func (s *Store) Init(startBlock uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO metadata (id, indexed_till)
		SELECT 1, ?
		WHERE NOT EXISTS (SELECT 1 FROM metadata WHERE id = 1)`,
		startBlock)
	if err != nil {
		return fmt.Errorf("init watermark: %w", err)
	}
	return nil
}

// IndexedTill returns the watermark.
func (s *Store) IndexedTill() (uint32, error) {
	var till uint32
	err := s.db.QueryRow(`SELECT indexed_till FROM metadata WHERE id = 1`).Scan(&till)
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	return till, nil
}

// InsertTrades appends one batch and advances the watermark to blockStop in
// the same transaction. The batch must start right after the watermark.
func (s *Store) InsertTrades(trades []Trade, blockStart, blockStop uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	till, err := s.IndexedTill()
	if err != nil {
		return err
	}
	if blockStart != till+1 {
		return fmt.Errorf("%w: batch starts at %d, watermark is %d", ErrInconsistentBlockNumber, blockStart, till)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin trade insert: %w", err)
	}
	defer tx.Rollback()

	for _, t := range trades {
		_, err := tx.Exec(`
			INSERT INTO trades (pool, token_in, token_out, amount_in, amount_out, block_num, event_index, extrinsic_index, origin)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.Pool.String(), t.TokenIn.String(), t.TokenOut.String(),
			t.AmountIn.String(), t.AmountOut.String(),
			t.BlockNum, t.EventIndex, t.ExtrinsicIndex, t.Origin.String())
		if err != nil {
			return fmt.Errorf("insert trade (%d, %d): %w", t.BlockNum, t.EventIndex, err)
		}
	}
	if _, err := tx.Exec(`UPDATE metadata SET indexed_till = ? WHERE id = 1`, blockStop); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return tx.Commit()
}

// InsertPool records a newly discovered pool. Existing pools are left
// unchanged.
func (s *Store) InsertPool(p Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO pools (pool, token_0, token_1, reserve_0, reserve_1, fee)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pool) DO NOTHING`,
		p.Address.String(), p.Token0.String(), p.Token1.String(),
		p.Reserve0.String(), p.Reserve1.String(), p.Fee)
	if err != nil {
		return fmt.Errorf("insert pool %s: %w", p.Address, err)
	}
	return nil
}

// InsertToken records a newly seen token. Existing tokens are left
// unchanged.
func (s *Store) InsertToken(t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO tokens (address, name, symbol, decimals)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO NOTHING`,
		t.Address.String(), t.Name, t.Symbol, t.Decimals)
	if err != nil {
		return fmt.Errorf("insert token %s: %w", t.Address, err)
	}
	return nil
}

// Pools lists all known pools.
func (s *Store) Pools() ([]Pool, error) {
	rows, err := s.db.Query(`SELECT pool, token_0, token_1, reserve_0, reserve_1, fee FROM pools`)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var pools []Pool
	for rows.Next() {
		var (
			p                    Pool
			pool, t0, t1, r0, r1 string
		)
		if err := rows.Scan(&pool, &t0, &t1, &r0, &r1, &p.Fee); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		if p.Address, err = chain.AccountIDFromSS58(pool); err != nil {
			return nil, fmt.Errorf("stored pool address: %w", err)
		}
		if p.Token0, err = chain.AccountIDFromSS58(t0); err != nil {
			return nil, fmt.Errorf("stored token_0: %w", err)
		}
		if p.Token1, err = chain.AccountIDFromSS58(t1); err != nil {
			return nil, fmt.Errorf("stored token_1: %w", err)
		}
		if p.Reserve0, err = u128.Parse(r0); err != nil {
			return nil, fmt.Errorf("stored reserve_0: %w", err)
		}
		if p.Reserve1, err = u128.Parse(r1); err != nil {
			return nil, fmt.Errorf("stored reserve_1: %w", err)
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// Tokens lists all known tokens.
func (s *Store) Tokens() ([]Token, error) {
	rows, err := s.db.Query(`SELECT address, name, symbol, decimals FROM tokens`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		var (
			t       Token
			address string
		)
		if err := rows.Scan(&address, &t.Name, &t.Symbol, &t.Decimals); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		if t.Address, err = chain.AccountIDFromSS58(address); err != nil {
			return nil, fmt.Errorf("stored token address: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

const selectTrades = `
	SELECT pool, token_in, token_out, amount_in, amount_out, block_num, event_index, extrinsic_index, origin
	FROM trades
	WHERE block_num BETWEEN ? AND ?`

// TradesByRange returns trades in [start, stop] ordered by
// (block_num, event_index), truncated at the result cap.
func (s *Store) TradesByRange(start, stop uint32) (QueryResult[Trade], error) {
	rows, err := s.db.Query(selectTrades+` ORDER BY block_num ASC, event_index ASC`, start, stop)
	if err != nil {
		return QueryResult[Trade]{}, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()
	return tradesFromRows(rows)
}

// TradesByOrigin is TradesByRange restricted to one signing account.
func (s *Store) TradesByOrigin(start, stop uint32, origin chain.AccountID) (QueryResult[Trade], error) {
	rows, err := s.db.Query(selectTrades+` AND origin = ? ORDER BY block_num ASC, event_index ASC`,
		start, stop, origin.String())
	if err != nil {
		return QueryResult[Trade]{}, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()
	return tradesFromRows(rows)
}

// RecentTradesByOrigin returns the account's newest trades at or above
// fromBlock, newest first, at most limit.
func (s *Store) RecentTradesByOrigin(origin chain.AccountID, fromBlock uint32, limit int) ([]Trade, error) {
	rows, err := s.db.Query(`
		SELECT pool, token_in, token_out, amount_in, amount_out, block_num, event_index, extrinsic_index, origin
		FROM trades
		WHERE origin = ? AND block_num >= ?
		ORDER BY block_num DESC, event_index DESC
		LIMIT ?`,
		origin.String(), fromBlock, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()

	result, err := tradesFromRows(rows)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

func tradesFromRows(rows *sql.Rows) (QueryResult[Trade], error) {
	var trades []Trade
	totalSize := 0
	for rows.Next() {
		if totalSize+tradeEncodedSize > MaxTotalResultSize {
			return QueryResult[Trade]{Data: trades, IsComplete: false}, nil
		}
		t, err := scanTrade(rows)
		if err != nil {
			return QueryResult[Trade]{}, err
		}
		totalSize += tradeEncodedSize
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return QueryResult[Trade]{}, fmt.Errorf("scan trades: %w", err)
	}
	return QueryResult[Trade]{Data: trades, IsComplete: true}, nil
}

func scanTrade(rows *sql.Rows) (Trade, error) {
	var (
		t                                          Trade
		pool, tokenIn, tokenOut, aIn, aOut, origin string
	)
	if err := rows.Scan(&pool, &tokenIn, &tokenOut, &aIn, &aOut, &t.BlockNum, &t.EventIndex, &t.ExtrinsicIndex, &origin); err != nil {
		return Trade{}, fmt.Errorf("scan trade: %w", err)
	}
	var err error
	if t.Pool, err = chain.AccountIDFromSS58(pool); err != nil {
		return Trade{}, fmt.Errorf("stored pool: %w", err)
	}
	if t.TokenIn, err = chain.AccountIDFromSS58(tokenIn); err != nil {
		return Trade{}, fmt.Errorf("stored token_in: %w", err)
	}
	if t.TokenOut, err = chain.AccountIDFromSS58(tokenOut); err != nil {
		return Trade{}, fmt.Errorf("stored token_out: %w", err)
	}
	if t.AmountIn, err = u128.Parse(aIn); err != nil {
		return Trade{}, fmt.Errorf("stored amount_in: %w", err)
	}
	if t.AmountOut, err = u128.Parse(aOut); err != nil {
		return Trade{}, fmt.Errorf("stored amount_out: %w", err)
	}
	if t.Origin, err = chain.AccountIDFromSS58(origin); err != nil {
		return Trade{}, fmt.Errorf("stored origin: %w", err)
	}
	return t, nil
}
