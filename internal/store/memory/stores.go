// Package memory implements the domain store interfaces in process, for
// local mode and tests. The postgres package implements the same interfaces
// durably.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// InvalidatedOrderStore is the in-memory (maker, orderHash) replay map.
type InvalidatedOrderStore struct {
	mu   sync.RWMutex
	seen map[common.Address]map[common.Hash]bool
}

// NewInvalidatedOrderStore creates an empty replay map.
func NewInvalidatedOrderStore() *InvalidatedOrderStore {
	return &InvalidatedOrderStore{seen: make(map[common.Address]map[common.Hash]bool)}
}

// IsInvalidated reports whether the flag is set.
func (s *InvalidatedOrderStore) IsInvalidated(ctx context.Context, maker common.Address, orderHash common.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[maker][orderHash], nil
}

// Invalidate sets the flag. Setting an already-set flag is a no-op at this
// layer; the component rejects it first.
func (s *InvalidatedOrderStore) Invalidate(ctx context.Context, maker common.Address, orderHash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byHash, ok := s.seen[maker]
	if !ok {
		byHash = make(map[common.Hash]bool)
		s.seen[maker] = byHash
	}
	byHash[orderHash] = true
	return nil
}

// AuctionStore is the in-memory auction table.
type AuctionStore struct {
	mu       sync.RWMutex
	nextID   uint64
	auctions map[uint64]domain.Auction
}

// NewAuctionStore creates an empty auction table. Ids start at 1.
func NewAuctionStore() *AuctionStore {
	return &AuctionStore{nextID: 1, auctions: make(map[uint64]domain.Auction)}
}

// Create assigns the next id and stores the auction.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.nextID
	s.nextID++
	s.auctions[a.ID] = a
	return a.ID, nil
}

// Get returns the auction with the given id.
func (s *AuctionStore) Get(ctx context.Context, id uint64) (domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return domain.Auction{}, fmt.Errorf("auction %d: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// Update overwrites an existing auction.
func (s *AuctionStore) Update(ctx context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[a.ID]; !ok {
		return fmt.Errorf("auction %d: %w", a.ID, domain.ErrNotFound)
	}
	s.auctions[a.ID] = a
	return nil
}

// List returns auctions ordered by id.
func (s *AuctionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Auction, 0, opts.Limit)
	skipped := 0
	for id := uint64(1); id < s.nextID; id++ {
		a, ok := s.auctions[id]
		if !ok {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, a)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// EventStore is the in-memory append-only settlement event log.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.SettlementEvent
}

// NewEventStore creates an empty event log.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Append adds an event to the log.
func (s *EventStore) Append(ctx context.Context, ev domain.SettlementEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// List returns events in append order.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.SettlementEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if opts.Offset >= len(s.events) {
		return nil, nil
	}
	end := len(s.events)
	if opts.Limit > 0 && opts.Offset+opts.Limit < end {
		end = opts.Offset + opts.Limit
	}
	out := make([]domain.SettlementEvent, end-opts.Offset)
	copy(out, s.events[opts.Offset:end])
	return out, nil
}
