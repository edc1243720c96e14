package market

import (
	"sort"
	"sync"
	"time"

	"github.com/rickgao/kucoin-data/internal/model"
)

// registryState holds the thread-safe symbol cache.
type registryState struct {
	mu sync.RWMutex

	// All known symbols indexed by name.
	symbols map[string]*model.Symbol

	// Symbols currently open for trading.
	tradable map[string]struct{}

	// Last successful REST sync timestamp.
	lastSyncAt time.Time

	changes chan SymbolChange
}

func newState() *registryState {
	return &registryState{
		symbols:  make(map[string]*model.Symbol),
		tradable: make(map[string]struct{}),
		changes:  make(chan SymbolChange, ChangeBufferSize),
	}
}

// lookup returns a symbol by name (read-locked).
func (s *registryState) lookup(name string) (model.Symbol, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sym, ok := s.symbols[name]
	if !ok {
		return model.Symbol{}, false
	}
	return *sym, true
}

// enabled returns a sorted copy of tradable symbols in market (read-locked).
func (s *registryState) enabled(market string) []model.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Symbol, 0, len(s.tradable))
	for name := range s.tradable {
		sym, ok := s.symbols[name]
		if !ok || (market != "" && sym.Market != market) {
			continue
		}
		result = append(result, *sym)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}

// isTradable reports whether name is open for trading (read-locked).
func (s *registryState) isTradable(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tradable[name]
	return ok
}

// upsert adds or updates a symbol (write-locked).
func (s *registryState) upsert(sym model.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertLocked(sym)
}

// upsertLocked adds or updates a symbol (caller must hold write lock).
func (s *registryState) upsertLocked(sym model.Symbol) {
	cp := sym
	s.symbols[sym.Symbol] = &cp

	if sym.EnableTrading {
		s.tradable[sym.Symbol] = struct{}{}
	} else {
		delete(s.tradable, sym.Symbol)
	}
}

// removeLocked deletes a symbol (caller must hold write lock).
func (s *registryState) removeLocked(name string) {
	delete(s.symbols, name)
	delete(s.tradable, name)
}

// notifyChange sends a change to the changes channel (non-blocking).
func (s *registryState) notifyChange(change SymbolChange) {
	select {
	case s.changes <- change:
	default:
		// Channel full, drop oldest by consuming one and retrying.
		select {
		case <-s.changes:
			s.changes <- change
		default:
		}
	}
}
