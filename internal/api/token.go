package api

import (
	"net/http"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/tokendb"
)

// TokenServer serves the token DB: the database summary and per-account
// details.
type TokenServer struct {
	*Server
	db      *tokendb.DB
	network string
}

// NewTokenServer registers the token service routes on addr.
func NewTokenServer(addr string, db *tokendb.DB, network string) *TokenServer {
	s := &TokenServer{Server: NewServer(addr), db: db, network: network}
	s.Handle("GET /summary", s.handleSummary)
	s.Handle("GET /account/{account}", s.handleAccount)
	return s
}

func (s *TokenServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.db.Summary(s.network))
}

func (s *TokenServer) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := chain.AccountIDFromSS58(r.PathValue("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad account id: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.db.AccountDetails(account))
}
