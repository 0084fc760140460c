package api

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/eventdb"
)

// EventServer serves the event store: the paging /events endpoint, the
// legacy strict endpoints and /status.
type EventServer struct {
	*Server
	store *eventdb.Store
}

// NewEventServer registers the event service routes on addr.
func NewEventServer(addr string, store *eventdb.Store) *EventServer {
	s := &EventServer{Server: NewServer(addr), store: store}
	s.Handle("GET /events", s.handleEvents)
	s.Handle("GET /events_by_range", s.handleEventsByRange)
	s.Handle("GET /events_by_contract", s.handleEventsByContract)
	s.Handle("GET /status", s.handleStatus)
	return s
}

// eventJSON is the wire encoding of one event. Data is plain hex.
type eventJSON struct {
	Contract       chain.AccountID  `json:"contract_account_id"`
	BlockNum       uint32           `json:"block_num"`
	EventIndex     uint32           `json:"event_index"`
	ExtrinsicIndex uint32           `json:"extrinsic_index"`
	EventType      string           `json:"event_type"`
	Caller         *chain.AccountID `json:"caller,omitempty"`
	Data           string           `json:"data,omitempty"`
}

type eventsPageJSON struct {
	Data       []eventJSON `json:"data"`
	IsComplete bool        `json:"is_complete"`
}

func toEventJSON(events []eventdb.Event) []eventJSON {
	out := make([]eventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON{
			Contract:       e.Contract,
			BlockNum:       e.BlockNum,
			EventIndex:     e.EventIndex,
			ExtrinsicIndex: e.ExtrinsicIndex,
			EventType:      string(e.Type),
			Caller:         e.Caller,
			Data:           hex.EncodeToString(e.Data),
		})
	}
	return out
}

func (s *EventServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	start, err := queryUint32(r, "block_start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stop, err := queryUint32(r, "block_stop")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var contract *chain.AccountID
	if raw := r.URL.Query().Get("contract_address"); raw != "" {
		parsed, err := chain.AccountIDFromSS58(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad contract_address: "+err.Error())
			return
		}
		contract = &parsed
	}

	events, complete, err := s.store.EventsPage(start, stop, contract)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsPageJSON{Data: toEventJSON(events), IsComplete: complete})
}

func (s *EventServer) handleEventsByRange(w http.ResponseWriter, r *http.Request) {
	start, err := queryUint32(r, "block_start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stop, err := queryUint32(r, "block_stop")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.store.EventsByRange(start, stop)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventJSON(events))
}

func (s *EventServer) handleEventsByContract(w http.ResponseWriter, r *http.Request) {
	start, err := queryUint32(r, "block_start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stop, err := queryUint32(r, "block_stop")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contract, err := chain.AccountIDFromSS58(r.URL.Query().Get("contract_address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad contract_address: "+err.Error())
		return
	}
	events, err := s.store.EventsByContract(start, stop, contract)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventJSON(events))
}

type eventStatusJSON struct {
	IndexedFrom uint32 `json:"indexed_from"`
	IndexedTo   uint32 `json:"indexed_to"`
	MinBlock    uint32 `json:"min_block"`
	MaxBlock    uint32 `json:"max_block"`
}

func (s *EventServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.store.Bounds()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, eventStatusJSON{IndexedFrom: from, IndexedTo: to, MinBlock: from, MaxBlock: to})
}

func writeStoreError(w http.ResponseWriter, err error) {
	var rangeErr *eventdb.BlocksNotInRangeError
	switch {
	case errors.As(err, &rangeErr):
		writeError(w, http.StatusBadRequest, rangeErr.Error())
	case errors.Is(err, eventdb.ErrTooLargeResult):
		writeError(w, http.StatusRequestEntityTooLarge, "result too large")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
	}
}
