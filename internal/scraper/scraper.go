// Package scraper fills the event store's contiguous window from both ends:
// right toward the finalized chain tip, left toward the configured floor.
// Many block-range fetches run in parallel; results commit to storage only
// when they abut the window, one block at a time.
package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/azero-tools/azero-indexer/internal/eventdb"
	"github.com/azero-tools/azero-indexer/pkg/logging"
)

// Source provides finalized-chain reads. Implemented by chain.Client via
// ChainSource; tests substitute fakes.
type Source interface {
	FinalizedNumber() (uint32, error)
	// FetchRange returns the contract events of every block in the
	// closed range, in ascending block order.
	FetchRange(from, to uint32) ([]BlockEvents, error)
}

// Store is the event-store surface the scraper commits to.
type Store interface {
	Bounds() (uint32, uint32, error)
	InsertEventsForBlock(events []eventdb.Event, block uint32) error
}

// BlockEvents bundles one block's events.
type BlockEvents struct {
	Num    uint32
	Events []eventdb.Event
}

// Config holds the engine tunables.
type Config struct {
	RangeSize       uint32
	MaxSolved       int
	NumPendingRight int
	NumPendingLeft  int
	// TipLag keeps the right edge this many blocks behind the finalized
	// head.
	TipLag uint32
	// MinBlock is the left-side floor.
	MinBlock uint32
	// TipRefresh is how often the finalized head is re-queried.
	TipRefresh time.Duration
	// IdleSleep is the pause when an iteration commits nothing.
	IdleSleep time.Duration
	// MaxCommitsPerIter bounds committed ranges per iteration so polling
	// and scheduling stay responsive.
	MaxCommitsPerIter int
}

// DefaultConfig returns the production tunables. Historical backfill
// dominates the workload, so the left side gets more concurrency.
func DefaultConfig() Config {
	return Config{
		RangeSize:         12,
		MaxSolved:         100,
		NumPendingRight:   5,
		NumPendingLeft:    25,
		TipLag:            20,
		MinBlock:          0,
		TipRefresh:        15 * time.Second,
		IdleSleep:         2 * time.Millisecond,
		MaxCommitsPerIter: 5,
	}
}

type fetchOutcome struct {
	blocks []BlockEvents
	err    error
}

// pendingRange is a dispatched fetch whose result channel is polled
// cooperatively. The fetcher sends exactly one outcome and closes the
// channel; a closed channel without a value means the fetcher died and is
// treated as a failed fetch.
type pendingRange struct {
	interval
	result chan fetchOutcome
}

type solvedRange struct {
	interval
	blocks []BlockEvents
}

// Scraper is the two-ended dispatch engine. It is the single logical
// writer of its store.
type Scraper struct {
	cfg   Config
	src   Source
	store Store
	log   *logging.Logger

	indexedFrom uint32
	indexedTo   uint32
	pending     []*pendingRange
	solved      []solvedRange
	finalized   uint32
}

// New creates a scraper over the given source and store.
func New(src Source, store Store, cfg Config) *Scraper {
	return &Scraper{
		cfg:   cfg,
		src:   src,
		store: store,
		log:   logging.GetDefault().Component("scraper"),
	}
}

// Run drives the dispatch loop until the context is canceled. A commit
// rejected by the store is an invariant violation and returns an error;
// the caller must treat it as fatal.
func (s *Scraper) Run(ctx context.Context) error {
	from, to, err := s.store.Bounds()
	if err != nil {
		return fmt.Errorf("read window: %w", err)
	}
	s.indexedFrom, s.indexedTo = from, to
	s.log.Info("Starting", "indexed_from", from, "indexed_to", to)

	if err := s.refreshTip(); err != nil {
		s.log.Error("Failed to read finalized head", "error", err)
		s.finalized = s.indexedTo
	}

	lastCheckpoint := time.Now()
	prevLen := int64(s.indexedTo) + 1 - int64(s.indexedFrom)

	for ctx.Err() == nil {
		if elapsed := time.Since(lastCheckpoint); elapsed > s.cfg.TipRefresh {
			length := int64(s.indexedTo) + 1 - int64(s.indexedFrom)
			rate := float64(length-prevLen) / elapsed.Seconds()
			s.log.Info("Progress", "indexed_from", s.indexedFrom, "indexed_to", s.indexedTo, "rate_per_sec", fmt.Sprintf("%.1f", rate))
			lastCheckpoint = time.Now()
			prevLen = length
			if err := s.refreshTip(); err != nil {
				s.log.Error("Failed to read finalized head", "error", err)
				sleepCtx(ctx, 300*time.Millisecond)
				continue
			}
		}

		s.scheduleAll()
		s.pollPending()

		committed, err := s.commitSolved()
		if err != nil {
			return err
		}
		if committed == 0 {
			sleepCtx(ctx, s.cfg.IdleSleep)
		}
	}
	return ctx.Err()
}

func (s *Scraper) refreshTip() error {
	num, err := s.src.FinalizedNumber()
	if err != nil {
		return err
	}
	if num > s.cfg.TipLag {
		s.finalized = num - s.cfg.TipLag
	} else {
		s.finalized = 0
	}
	return nil
}

// scheduleAll dispatches fetches on both sides until the queue-depth and
// backpressure limits stop it.
func (s *Scraper) scheduleAll() {
	for {
		scheduled := false
		if s.trySchedule(true) {
			scheduled = true
		}
		if s.trySchedule(false) {
			scheduled = true
		}
		if !scheduled {
			return
		}
	}
}

func (s *Scraper) trySchedule(right bool) bool {
	if len(s.solved) >= s.cfg.MaxSolved {
		return false
	}
	limit := s.cfg.NumPendingLeft
	if right {
		limit = s.cfg.NumPendingRight
	}
	if s.pendingCount(right) >= limit {
		return false
	}

	covered := s.coveredIntervals(right)
	var (
		next interval
		ok   bool
	)
	if right {
		next, ok = scheduleRight(s.indexedTo, s.finalized, covered, s.cfg.RangeSize)
	} else {
		if s.indexedFrom <= s.cfg.MinBlock {
			return false
		}
		next, ok = scheduleLeft(s.indexedFrom, s.cfg.MinBlock, covered, s.cfg.RangeSize)
	}
	if !ok {
		return false
	}

	p := &pendingRange{interval: next, result: make(chan fetchOutcome, 1)}
	s.pending = append(s.pending, p)
	go s.fetch(p)
	return true
}

func (s *Scraper) fetch(p *pendingRange) {
	defer close(p.result)
	blocks, err := s.src.FetchRange(p.from, p.to)
	p.result <- fetchOutcome{blocks: blocks, err: err}
}

func (s *Scraper) pendingCount(right bool) int {
	n := 0
	for _, p := range s.pending {
		if (right && p.from > s.indexedTo) || (!right && p.to < s.indexedFrom) {
			n++
		}
	}
	return n
}

// coveredIntervals lists pending and solved intervals on one side of the
// window. Together with the window they cover pairwise-disjoint ranges.
func (s *Scraper) coveredIntervals(right bool) []interval {
	var out []interval
	keep := func(iv interval) bool {
		if right {
			return iv.from > s.indexedTo
		}
		return iv.to < s.indexedFrom
	}
	for _, p := range s.pending {
		if keep(p.interval) {
			out = append(out, p.interval)
		}
	}
	for _, r := range s.solved {
		if keep(r.interval) {
			out = append(out, r.interval)
		}
	}
	return out
}

// pollPending moves finished fetches to the solved set. Failed fetches are
// dropped; the next scheduling pass re-gaps and re-dispatches their range.
func (s *Scraper) pollPending() {
	remaining := s.pending[:0]
	for _, p := range s.pending {
		select {
		case outcome, ok := <-p.result:
			if !ok || outcome.err != nil {
				err := outcome.err
				if !ok {
					err = fmt.Errorf("fetcher died without a result")
				}
				s.log.Error("Range fetch failed", "from", p.from, "to", p.to, "error", err)
				continue
			}
			s.solved = append(s.solved, solvedRange{interval: p.interval, blocks: outcome.blocks})
		default:
			remaining = append(remaining, p)
		}
	}
	s.pending = remaining
}

// commitSolved commits up to MaxCommitsPerIter solved ranges that abut the
// window, block by block, extending the matching edge.
func (s *Scraper) commitSolved() (int, error) {
	committed := 0
	for committed < s.cfg.MaxCommitsPerIter {
		idx := -1
		for i, r := range s.solved {
			if r.from == s.indexedTo+1 || r.to+1 == s.indexedFrom {
				idx = i
				break
			}
		}
		if idx < 0 {
			return committed, nil
		}

		r := s.solved[idx]
		s.solved[idx] = s.solved[len(s.solved)-1]
		s.solved = s.solved[:len(s.solved)-1]

		blocks := r.blocks
		growRight := r.from > s.indexedTo
		if !growRight {
			blocks = reversedBlocks(blocks)
		}
		for _, b := range blocks {
			if err := s.store.InsertEventsForBlock(b.Events, b.Num); err != nil {
				return committed, fmt.Errorf("commit block %d: %w", b.Num, err)
			}
			if growRight {
				s.indexedTo = b.Num
			} else {
				s.indexedFrom = b.Num
			}
		}
		committed++
	}
	return committed, nil
}

func reversedBlocks(blocks []BlockEvents) []BlockEvents {
	out := make([]BlockEvents, len(blocks))
	for i, b := range blocks {
		out[len(blocks)-1-i] = b
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
