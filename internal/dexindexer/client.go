package dexindexer

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/eventdb"
)

// EventService reads the upstream event indexer's HTTP API.
type EventService interface {
	Status() (indexedFrom, indexedTo uint32, err error)
	// EventsRange returns every event in the closed range, paging through
	// truncated responses.
	EventsRange(start, stop uint32) ([]eventdb.Event, error)
}

// HTTPEventService is the production EventService over the event
// indexer's REST endpoints.
type HTTPEventService struct {
	base string
	http *http.Client
}

// NewHTTPEventService points at the event service base URL.
func NewHTTPEventService(base string) *HTTPEventService {
	return &HTTPEventService{
		base: base,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

type statusResponse struct {
	IndexedFrom *uint32 `json:"indexed_from"`
	IndexedTo   *uint32 `json:"indexed_to"`
	MinBlock    *uint32 `json:"min_block"`
	MaxBlock    *uint32 `json:"max_block"`
}

// wireEvent is the event service's JSON encoding of one event.
type wireEvent struct {
	Contract       chain.AccountID  `json:"contract_account_id"`
	BlockNum       uint32           `json:"block_num"`
	EventIndex     uint32           `json:"event_index"`
	ExtrinsicIndex uint32           `json:"extrinsic_index"`
	EventType      string           `json:"event_type"`
	Caller         *chain.AccountID `json:"caller,omitempty"`
	Data           string           `json:"data,omitempty"`
}

type eventsResponse struct {
	Data       []wireEvent `json:"data"`
	IsComplete bool        `json:"is_complete"`
}

func (c *HTTPEventService) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event service returned %d: %s", resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

// Status reads the indexed window. Both the current and the legacy field
// names are accepted.
func (c *HTTPEventService) Status() (uint32, uint32, error) {
	var status statusResponse
	if err := c.get("/status", &status); err != nil {
		return 0, 0, fmt.Errorf("event service status: %w", err)
	}
	switch {
	case status.IndexedFrom != nil && status.IndexedTo != nil:
		return *status.IndexedFrom, *status.IndexedTo, nil
	case status.MinBlock != nil && status.MaxBlock != nil:
		return *status.MinBlock, *status.MaxBlock, nil
	default:
		return 0, 0, fmt.Errorf("event service status has no window fields")
	}
}

// EventsRange pages through /events until is_complete. On a truncated
// page, events of the last returned block are discarded and the next page
// starts at that block, so no block is half-consumed.
func (c *HTTPEventService) EventsRange(start, stop uint32) ([]eventdb.Event, error) {
	var out []eventdb.Event
	cursor := start
	for {
		var page eventsResponse
		path := fmt.Sprintf("/events?block_start=%d&block_stop=%d", cursor, stop)
		if err := c.get(path, &page); err != nil {
			return nil, err
		}
		events, err := decodeWireEvents(page.Data)
		if err != nil {
			return nil, err
		}
		if page.IsComplete {
			return append(out, events...), nil
		}
		if len(events) == 0 {
			return nil, fmt.Errorf("truncated empty page at block %d", cursor)
		}
		lastBlock := events[len(events)-1].BlockNum
		kept := 0
		for _, e := range events {
			if e.BlockNum < lastBlock {
				out = append(out, e)
				kept++
			}
		}
		if kept == 0 && lastBlock == cursor {
			return nil, fmt.Errorf("block %d alone exceeds the event service page size", cursor)
		}
		cursor = lastBlock
	}
}

func decodeWireEvents(wire []wireEvent) ([]eventdb.Event, error) {
	out := make([]eventdb.Event, 0, len(wire))
	for _, w := range wire {
		e := eventdb.Event{
			Contract:       w.Contract,
			BlockNum:       w.BlockNum,
			EventIndex:     w.EventIndex,
			ExtrinsicIndex: w.ExtrinsicIndex,
			Type:           eventdb.EventType(w.EventType),
			Caller:         w.Caller,
		}
		if w.Data != "" {
			data, err := hex.DecodeString(w.Data)
			if err != nil {
				return nil, fmt.Errorf("event (%d, %d) data: %w", w.BlockNum, w.EventIndex, err)
			}
			e.Data = data
		}
		out = append(out, e)
	}
	return out, nil
}
