// Package eventdb persists contract events under a contiguous-window
// contract: the store covers exactly the closed block interval
// [indexed_from, indexed_to] and only grows by one block at either edge.
package eventdb

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/pkg/logging"
)

// MaxTotalResultSize caps the estimated serialized size of one query
// result.
const MaxTotalResultSize = 256000

// Store errors.
var (
	ErrInconsistentBlockNumber = errors.New("event does not belong to the inserted block")
	ErrTooLargeResult          = errors.New("result too large")
	ErrNotInitialized          = errors.New("event store has no window; call Init first")
)

// IncorrectBlockError reports an insert outside the two admissible edge
// positions.
type IncorrectBlockError struct {
	From, To, Block uint32
}

func (e *IncorrectBlockError) Error() string {
	return fmt.Sprintf("incorrect block to insert %d in range [%d,%d]", e.Block, e.From, e.To)
}

// BlocksNotInRangeError reports a query outside the indexed window.
type BlocksNotInRangeError struct {
	From, To, Start, Stop uint32
}

func (e *BlocksNotInRangeError) Error() string {
	return fmt.Sprintf("queried blocks (%d, %d) are not in the range [%d, %d]", e.Start, e.Stop, e.From, e.To)
}

// EventType distinguishes persisted event payloads.
type EventType string

const (
	// TypeEmitted is a raw contract-emit payload.
	TypeEmitted EventType = "emitted"
	// TypeCalled is a top-level signed invocation of a contract.
	TypeCalled EventType = "called"
)

// Event is one persisted contract event. Caller is set for called events,
// Data for emitted ones.
type Event struct {
	Contract       chain.AccountID
	BlockNum       uint32
	EventIndex     uint32
	ExtrinsicIndex uint32
	Type           EventType
	Caller         *chain.AccountID
	Data           []byte
}

// EncodedSize estimates the event's serialized size for result capping.
func (e Event) EncodedSize() int {
	base := 32 + 4 + 4 + 4
	if e.Type == TypeCalled {
		return base + 32
	}
	return base + len(e.Data)
}

// Store is a SQLite-backed event store. A single scraper must be the only
// writer; readers may run concurrently under WAL.
type Store struct {
	db  *sql.DB
	log *logging.Logger

	// Serializes window mutations; SQLite has one writer anyway, this
	// keeps the bounds check and insert in one critical section.
	mu sync.Mutex
}

// Open opens (creating if needed) the database and its schema. Connection
// acquisition failures retry with exponential backoff starting at 1 ms and
// no cap: storage must come up eventually or the process is useless.
func Open(path string) *Store {
	log := logging.GetDefault().Component("eventdb")
	backoff := time.Millisecond
	for {
		db, err := open(path)
		if err == nil {
			return &Store{db: db, log: log}
		}
		log.Error("Failed to open event database", "path", path, "error", err, "retry_in", backoff)
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
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contract_account_id BLOB NOT NULL,
		block_num INTEGER NOT NULL,
		event_index INTEGER NOT NULL,
		extrinsic_index INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		caller BLOB,
		data BLOB,
		UNIQUE(block_num, event_index)
	);

	CREATE INDEX IF NOT EXISTS idx_events_block_num ON events(block_num);
	CREATE INDEX IF NOT EXISTS idx_events_contract ON events(contract_account_id);
	CREATE INDEX IF NOT EXISTS idx_events_contract_block ON events(contract_account_id, block_num);

	CREATE TABLE IF NOT EXISTS metadata (
		id INTEGER PRIMARY KEY,
		indexed_from INTEGER NOT NULL,
		indexed_to INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init establishes the empty window [seed, seed-1] unless a window already
// exists.
func (s *Store) Init(seed uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO metadata (id, indexed_from, indexed_to)
		SELECT 1, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM metadata WHERE id = 1)`,
		seed, seed-1)
	if err != nil {
		return fmt.Errorf("init window: %w", err)
	}
	return nil
}

// Bounds returns the current window.
func (s *Store) Bounds() (uint32, uint32, error) {
	return boundsQuerier(s.db)
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func boundsQuerier(q querier) (uint32, uint32, error) {
	var from, to uint32
	err := q.QueryRow(`SELECT indexed_from, indexed_to FROM metadata WHERE id = 1`).Scan(&from, &to)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotInitialized
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read window: %w", err)
	}
	return from, to, nil
}

// InsertEventsForBlock atomically writes the block's events and advances
// the window edge the block abuts. Every event must belong to the block,
// and the block must be exactly indexed_from-1 or indexed_to+1.
func (s *Store) InsertEventsForBlock(events []Event, block uint32) error {
	for _, e := range events {
		if e.BlockNum != block {
			return ErrInconsistentBlockNumber
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	from, to, err := boundsQuerier(tx)
	if err != nil {
		return err
	}
	if block+1 != from && to+1 != block {
		return &IncorrectBlockError{From: from, To: to, Block: block}
	}

	for _, e := range events {
		var caller []byte
		if e.Caller != nil {
			caller = e.Caller[:]
		}
		_, err := tx.Exec(`
			INSERT INTO events (contract_account_id, block_num, event_index, extrinsic_index, event_type, caller, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.Contract[:], e.BlockNum, e.EventIndex, e.ExtrinsicIndex, string(e.Type), caller, e.Data)
		if err != nil {
			return fmt.Errorf("insert event (%d, %d): %w", e.BlockNum, e.EventIndex, err)
		}
	}

	if block < from {
		if _, err := tx.Exec(`UPDATE metadata SET indexed_from = ? WHERE id = 1`, block); err != nil {
			return fmt.Errorf("advance indexed_from: %w", err)
		}
	}
	if block > to {
		if _, err := tx.Exec(`UPDATE metadata SET indexed_to = ? WHERE id = 1`, block); err != nil {
			return fmt.Errorf("advance indexed_to: %w", err)
		}
	}
	return tx.Commit()
}

const selectEvents = `
	SELECT contract_account_id, block_num, event_index, extrinsic_index, event_type, caller, data
	FROM events
	WHERE block_num BETWEEN ? AND ?`

const orderEvents = ` ORDER BY block_num ASC, event_index ASC`

// EventsByRange returns all events in [start, stop] ordered by
// (block_num, event_index). Fails with ErrTooLargeResult past the size cap.
func (s *Store) EventsByRange(start, stop uint32) ([]Event, error) {
	events, complete, err := s.query(start, stop, nil)
	if err != nil {
		return nil, err
	}
	if !complete {
		return nil, ErrTooLargeResult
	}
	return events, nil
}

// EventsByContract is EventsByRange restricted to one contract.
func (s *Store) EventsByContract(start, stop uint32, contract chain.AccountID) ([]Event, error) {
	events, complete, err := s.query(start, stop, &contract)
	if err != nil {
		return nil, err
	}
	if !complete {
		return nil, ErrTooLargeResult
	}
	return events, nil
}

// EventsPage is the paging variant: instead of failing on a too-large
// result it returns the prefix that fits and complete=false.
func (s *Store) EventsPage(start, stop uint32, contract *chain.AccountID) ([]Event, bool, error) {
	return s.query(start, stop, contract)
}

func (s *Store) query(start, stop uint32, contract *chain.AccountID) ([]Event, bool, error) {
	from, to, err := s.Bounds()
	if err != nil {
		return nil, false, err
	}
	if start < from || stop > to {
		return nil, false, &BlocksNotInRangeError{From: from, To: to, Start: start, Stop: stop}
	}

	query := selectEvents
	args := []any{start, stop}
	if contract != nil {
		query += ` AND contract_account_id = ?`
		args = append(args, contract[:])
	}
	rows, err := s.db.Query(query+orderEvents, args...)
	if err != nil {
		return nil, false, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	totalSize := 0
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, false, err
		}
		if totalSize+e.EncodedSize() > MaxTotalResultSize {
			return events, false, nil
		}
		totalSize += e.EncodedSize()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("scan events: %w", err)
	}
	return events, true, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e         Event
		contract  []byte
		eventType string
		caller    []byte
	)
	if err := rows.Scan(&contract, &e.BlockNum, &e.EventIndex, &e.ExtrinsicIndex, &eventType, &caller, &e.Data); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	account, err := chain.AccountIDFromBytes(contract)
	if err != nil {
		return Event{}, fmt.Errorf("stored contract id: %w", err)
	}
	e.Contract = account
	e.Type = EventType(eventType)
	if len(caller) > 0 {
		callerID, err := chain.AccountIDFromBytes(caller)
		if err != nil {
			return Event{}, fmt.Errorf("stored caller id: %w", err)
		}
		e.Caller = &callerID
	}
	return e, nil
}
