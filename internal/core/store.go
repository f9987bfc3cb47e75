// Package core implements the farmvault store: participant registration with
// cross-kind identity uniqueness, the producer loan lifecycle, files, supply
// orders, investment ledgers, and the snapshot boundary used across restarts.
package core

import (
	"context"
	"errors"
	"farmvault/internal/arena"
	"farmvault/internal/collection"
	"farmvault/pkg/domain"
	"fmt"
	"sync"
	"time"
)

// Partition ids are part of the persisted layout. Never repoint an id at a
// different record type; add a new id instead.
const (
	PartitionProducers            arena.PartitionID = 1
	PartitionInvestors            arena.PartitionID = 2
	PartitionSupplyAgriBusinesses arena.PartitionID = 3
	PartitionFarmsAgriBusinesses  arena.PartitionID = 4
	PartitionManagedFarms         arena.PartitionID = 5
	PartitionOrders               arena.PartitionID = 6

	// 7 held per-producer report lists in an earlier layout and stays unassigned.

	PartitionFiles     arena.PartitionID = 8
	PartitionSequences arena.PartitionID = 9
	PartitionSnapshot  arena.PartitionID = 10
)

// Sequence names. Managed farms draw from the producer sequence.
const (
	seqProducer           = "producer"
	seqInvestor           = "investor"
	seqSupplyAgriBusiness = "supply_agribusiness"
	seqFarmsAgriBusiness  = "farms_agribusiness"
	seqOrder              = "order"
)

// Store is the single entry point for every read and write. Each exported
// operation runs to completion under one mutex; a caller that reads a record,
// suspends, and writes it back gets last-writer-wins semantics.
type Store struct {
	mu   sync.Mutex
	opts options

	arena     *arena.Manager
	producers *collection.Collection[uint64, domain.Producer]
	investors *collection.Collection[uint64, domain.Investor]
	suppliers *collection.Collection[uint64, domain.SupplyAgriBusiness]
	farmsBiz  *collection.Collection[uint64, domain.FarmsAgriBusiness]
	managed   *collection.Collection[uint64, domain.Producer]
	orders    *collection.Collection[uint64, domain.Order]
	files     *collection.Collection[string, []byte]
	sequences *collection.Collection[string, uint64]
	reserved  *arena.Region

	ledger ledger
}

// Open attaches a store to the arena, replaying any collections it already holds.
func Open(m *arena.Manager, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{opts: o, arena: m, ledger: newLedger(), reserved: m.Partition(PartitionSnapshot)}
	var err error
	if s.producers, err = collection.Open("producers", m.Partition(PartitionProducers), collection.Uint64Keys{}, collection.CBOR[domain.Producer]("producer", domain.MaxProducerEncodedSize)); err != nil {
		return nil, err
	}
	if s.investors, err = collection.Open("investors", m.Partition(PartitionInvestors), collection.Uint64Keys{}, collection.CBOR[domain.Investor]("investor", domain.MaxInvestorEncodedSize)); err != nil {
		return nil, err
	}
	if s.suppliers, err = collection.Open("supply_agribusinesses", m.Partition(PartitionSupplyAgriBusinesses), collection.Uint64Keys{}, collection.CBOR[domain.SupplyAgriBusiness]("supply agribusiness", domain.MaxSupplyAgriBusinessEncodedSize)); err != nil {
		return nil, err
	}
	if s.farmsBiz, err = collection.Open("farms_agribusinesses", m.Partition(PartitionFarmsAgriBusinesses), collection.Uint64Keys{}, collection.CBOR[domain.FarmsAgriBusiness]("farms agribusiness", domain.MaxFarmsAgriBusinessEncodedSize)); err != nil {
		return nil, err
	}
	if s.managed, err = collection.Open("managed_farms", m.Partition(PartitionManagedFarms), collection.Uint64Keys{}, collection.CBOR[domain.Producer]("managed farm", domain.MaxProducerEncodedSize)); err != nil {
		return nil, err
	}
	if s.orders, err = collection.Open("orders", m.Partition(PartitionOrders), collection.Uint64Keys{}, collection.CBOR[domain.Order]("order", domain.MaxOrderEncodedSize)); err != nil {
		return nil, err
	}
	if s.files, err = collection.Open("files", m.Partition(PartitionFiles), collection.StringKeys{Name: "file name", Max: domain.MaxFileNameLength}, collection.Bytes("file", domain.MaxFileSize)); err != nil {
		return nil, err
	}
	if s.sequences, err = collection.Open("sequences", m.Partition(PartitionSequences), collection.StringKeys{Name: "sequence name", Max: 64}, collection.CBOR[uint64]("sequence", 16)); err != nil {
		return nil, err
	}
	return s, nil
}

// Arena exposes the backing arena for image persistence and usage metrics.
func (s *Store) Arena() *arena.Manager { return s.arena }

// Now returns the store clock reading.
func (s *Store) Now() time.Time { return s.opts.clock.Now() }

// run executes fn as one operation: serialized, traced, timed, and logged.
func (s *Store) run(ctx context.Context, op string, fn func() error) error {
	ctx, span := s.opts.tracer.Start(ctx, op)
	started := time.Now()
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()
	span.End(err)
	s.opts.metrics.Observe(ctx, op, err == nil, time.Since(started))
	if err != nil {
		s.logFailure(op, err)
	}
	return err
}

// Domain refusals are routine and logged at debug level. Anything else,
// overflow, restore and storage failures included, puts persisted state at
// risk.
func (s *Store) logFailure(op string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrDuplicateIdentity),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrStateGuard),
		errors.Is(err, domain.ErrUnauthorized):
		s.opts.logger.Debug("store operation rejected", "operation", op, "error", err)
	default:
		s.opts.logger.Error("store operation failed", "operation", op, "error", err)
	}
}

func (s *Store) nextID(sequence string) (uint64, error) {
	cur, _, err := s.sequences.Get(sequence)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if _, _, err := s.sequences.Insert(sequence, next); err != nil {
		return 0, fmt.Errorf("advance %s sequence: %w", sequence, err)
	}
	return next, nil
}

func getRecord[V any](c *collection.Collection[uint64, V], entity domain.EntityType, id uint64) (V, error) {
	v, ok, err := c.Get(id)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, domain.NotFound(entity, id)
	}
	return v, nil
}

// updateRecord is the get, mutate, insert round trip every write is built on.
func updateRecord[V any](c *collection.Collection[uint64, V], entity domain.EntityType, id uint64, mutator func(*V) error) (V, error) {
	v, err := getRecord(c, entity, id)
	if err != nil {
		return v, err
	}
	if err := mutator(&v); err != nil {
		var zero V
		return zero, err
	}
	if _, _, err := c.Insert(id, v); err != nil {
		var zero V
		return zero, err
	}
	return v, nil
}

func findRecord[V any](c *collection.Collection[uint64, V], match func(V) bool) (V, bool, error) {
	var zero V
	for p, err := range c.All() {
		if err != nil {
			return zero, false, err
		}
		if match(p.Value) {
			return p.Value, true, nil
		}
	}
	return zero, false, nil
}

func filterRecords[V any](c *collection.Collection[uint64, V], match func(V) bool) ([]V, error) {
	var out []V
	for p, err := range c.All() {
		if err != nil {
			return nil, err
		}
		if match(p.Value) {
			out = append(out, p.Value)
		}
	}
	return out, nil
}
