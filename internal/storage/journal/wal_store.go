// Package journal keeps an append-only WAL of committed ledger mutations.
package journal

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

const (
	defaultJournalDir   = "./wal/ledger"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	journalKeyPrefix    = "ledger_event_"
)

var errNotInitialized = errors.New("ledger journal is not initialized")

// entry is the WAL payload. Seq duplicates the WAL index so reads never depend on segment layout.
type entry struct {
	Seq   uint64             `json:"seq"`
	Event domain.LedgerEvent `json:"event"`
}

// WALStore persists ledger events in a WAL for audit and streaming.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed journal under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "ledger_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init ledger journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes the event and returns its journal index.
func (s *WALStore) Append(event domain.LedgerEvent) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errNotInitialized
	}
	if event.Kind == "" {
		return 0, errors.New("ledger event kind is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.wal.CurrentIndex() + 1
	payload, err := json.Marshal(entry{Seq: next, Event: event})
	if err != nil {
		return 0, errors.Wrap(err, "marshal ledger event")
	}

	key := journalKeyPrefix + string(event.Kind)
	if err := s.wal.Write(next, key, payload); err != nil {
		return 0, errors.Wrap(err, "write ledger event")
	}

	return next, nil
}

// EventsAfter returns all events written after the provided journal index, oldest first.
func (s *WALStore) EventsAfter(index uint64) ([]domain.LedgerEventRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.wal.CurrentIndex() <= index {
		return nil, nil
	}

	var records []domain.LedgerEventRecord
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, journalKeyPrefix) {
			continue
		}
		var e entry
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			return nil, errors.Wrap(err, "decode ledger event")
		}
		if e.Seq <= index {
			continue
		}
		records = append(records, domain.LedgerEventRecord{Index: e.Seq, Event: e.Event})
	}

	return records, nil
}

// CurrentIndex returns the latest journal index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
