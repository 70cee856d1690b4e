package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/coinledger/internal/events"
)

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return flusher, true
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, name, id string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\n", name)
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
	return nil
}

// GET /portfolio/stream
// Sends the current portfolio, then one event per committed change.
func (s *Server) handlePortfolioStream(w http.ResponseWriter, r *http.Request) {
	if s.changes == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "portfolio stream not available")
		return
	}

	// subscribe before the first write so no change slips between snapshot and stream
	ch := s.changes.Subscribe()
	defer s.changes.Unsubscribe(ch)

	flusher, ok := startStream(w)
	if !ok {
		return
	}

	p := s.ledger.Snapshot()
	initial := events.PortfolioChanged{
		Timestamp:   time.Now(),
		Key:         s.ledger.Key(),
		Kind:        "snapshot",
		Balance:     p.Balance.String(),
		BalanceText: s.ledger.BalanceText(),
		Holdings:    len(p.Holdings),
		Trades:      len(p.TradeHistory),
		Stale:       s.ledger.Stale(),
	}
	if err := writeEvent(w, flusher, "portfolio", "", initial); err != nil {
		s.logger.Error("portfolio stream initial write", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case change, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, flusher, "portfolio", "", change); err != nil {
				s.logger.Warn("portfolio stream write", zap.Error(err))
			}
		}
	}
}

// GET /journal/stream?after=N
// Replays journal entries after N (or Last-Event-ID) and polls for new ones.
func (s *Server) handleJournalStream(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "ledger journal not available")
		return
	}

	lastIndex := uint64(0)
	after := r.URL.Query().Get("after")
	if after == "" {
		after = r.Header.Get("Last-Event-ID")
	}
	if after != "" {
		n, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			http.Error(w, "after must be a journal index", http.StatusBadRequest)
			return
		}
		lastIndex = n
	}

	records, err := s.journal.EventsAfter(lastIndex)
	if err != nil {
		s.logger.Error("journal stream initial load", zap.Error(err))
		http.Error(w, "failed to load ledger journal", http.StatusInternalServerError)
		return
	}

	flusher, ok := startStream(w)
	if !ok {
		return
	}

	sendEvents := func() error {
		for _, record := range records {
			if err := writeEvent(w, flusher, "ledger", strconv.FormatUint(record.Index, 10), record.Event); err != nil {
				return err
			}
			lastIndex = record.Index
		}
		return nil
	}
	if err := sendEvents(); err != nil {
		s.logger.Error("journal stream write", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.journalPoll)
	defer pollTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			records, err = s.journal.EventsAfter(lastIndex)
			if err != nil {
				s.logger.Warn("journal stream poll", zap.Error(err))
				continue
			}
			if err := sendEvents(); err != nil {
				s.logger.Warn("journal stream write", zap.Error(err))
			}
		}
	}
}
