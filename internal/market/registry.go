package market

import (
	"context"

	"github.com/rickgao/kucoin-data/internal/model"
	"github.com/rickgao/kucoin-data/internal/router"
)

// ChangeBufferSize is the capacity of the SymbolChange channel.
const ChangeBufferSize = 1000

// Change event types.
const (
	ChangeListed   = "listed"
	ChangeStatus   = "status_change"
	ChangeDelisted = "delisted"
)

// Registry manages symbol discovery.
type Registry interface {
	// Start performs the initial sync, then reconciles in background.
	Start(ctx context.Context) error

	// Stop gracefully shuts down.
	Stop(ctx context.Context) error

	// Lookup returns a symbol by name.
	Lookup(symbol string) (model.Symbol, bool)

	// EnabledSymbols returns tradable symbols, sorted by name. An empty
	// market returns all markets.
	EnabledSymbols(market string) []model.Symbol

	// Tradable filters names to the symbols currently open for trading,
	// keeping their order.
	Tradable(names []string) []string

	// ValidateTopics checks that every symbol named by topics is known.
	ValidateTopics(topics []router.Topic) error

	// SubscribeChanges returns a channel of symbol changes.
	SubscribeChanges() <-chan SymbolChange
}

// SymbolChange represents a symbol state transition.
type SymbolChange struct {
	Symbol    string        // Symbol name
	EventType string        // ChangeListed, ChangeStatus or ChangeDelisted
	Trading   bool          // Trading enabled after the change
	Info      *model.Symbol // Full symbol data (nil for delisted)
}
