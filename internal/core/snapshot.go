package core

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"farmvault/internal/arena"
	"farmvault/internal/collection"
	"farmvault/internal/snapshot"
	"farmvault/pkg/domain"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/afero"
)

// The reserved partition holds [u64 length][payload] at offset 0. A later
// PreUpgrade overwrites it in place.
const snapshotHeader = 8

func entries[K cmp.Ordered, V any](c *collection.Collection[K, V]) ([]snapshot.Entry[K, V], error) {
	out := make([]snapshot.Entry[K, V], 0, c.Len())
	for p, err := range c.All() {
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", c.Name(), err)
		}
		out = append(out, snapshot.Entry[K, V]{Key: p.Key, Value: p.Value})
	}
	return out, nil
}

func replace[K cmp.Ordered, V any](c *collection.Collection[K, V], in []snapshot.Entry[K, V]) error {
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clear %s: %w", c.Name(), err)
	}
	for _, e := range in {
		if _, _, err := c.Insert(e.Key, e.Value); err != nil {
			return fmt.Errorf("restore %s: %w", c.Name(), err)
		}
	}
	return nil
}

func cloneLists[K comparable, V any](m map[K][]V) map[K][]V {
	out := make(map[K][]V, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

func (s *Store) state() (snapshot.State, error) {
	st := snapshot.State{
		Sequences:             map[string]uint64{},
		InvestmentsByInvestor: cloneLists(s.ledger.byInvestor),
		InvestmentsByFarm:     cloneLists(s.ledger.byFarm),
		TransactionFees:       maps.Clone(s.ledger.fees),
		ApprovedSpenders:      cloneLists(s.ledger.spenders),
	}
	var err error
	if st.Producers, err = entries(s.producers); err != nil {
		return st, err
	}
	if st.Investors, err = entries(s.investors); err != nil {
		return st, err
	}
	if st.SupplyAgriBusinesses, err = entries(s.suppliers); err != nil {
		return st, err
	}
	if st.FarmsAgriBusinesses, err = entries(s.farmsBiz); err != nil {
		return st, err
	}
	if st.ManagedFarms, err = entries(s.managed); err != nil {
		return st, err
	}
	if st.Orders, err = entries(s.orders); err != nil {
		return st, err
	}
	if st.Files, err = entries(s.files); err != nil {
		return st, err
	}
	for p, err := range s.sequences.All() {
		if err != nil {
			return st, fmt.Errorf("collect sequences: %w", err)
		}
		st.Sequences[p.Key] = p.Value
	}
	return st, nil
}

func (s *Store) apply(st snapshot.State) error {
	if err := replace(s.producers, st.Producers); err != nil {
		return err
	}
	if err := replace(s.investors, st.Investors); err != nil {
		return err
	}
	if err := replace(s.suppliers, st.SupplyAgriBusinesses); err != nil {
		return err
	}
	if err := replace(s.farmsBiz, st.FarmsAgriBusinesses); err != nil {
		return err
	}
	if err := replace(s.managed, st.ManagedFarms); err != nil {
		return err
	}
	if err := replace(s.orders, st.Orders); err != nil {
		return err
	}
	if err := replace(s.files, st.Files); err != nil {
		return err
	}
	seqs := make([]snapshot.Entry[string, uint64], 0, len(st.Sequences))
	for _, name := range slices.Sorted(maps.Keys(st.Sequences)) {
		seqs = append(seqs, snapshot.Entry[string, uint64]{Key: name, Value: st.Sequences[name]})
	}
	if err := replace(s.sequences, seqs); err != nil {
		return err
	}
	s.ledger = ledger{
		byInvestor: cloneLists(st.InvestmentsByInvestor),
		byFarm:     cloneLists(st.InvestmentsByFarm),
		fees:       maps.Clone(st.TransactionFees),
		spenders:   cloneLists(st.ApprovedSpenders),
	}
	return nil
}

// Export encodes every collection, sequence and ledger map into one buffer.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, "export", func() error {
		st, err := s.state()
		if err != nil {
			return err
		}
		buf, err = snapshot.Encode(st)
		return err
	})
	return buf, err
}

// Restore replaces the store contents with a buffer produced by Export. The
// buffer is fully decoded before anything is cleared, so a corrupt buffer
// leaves the store as it was.
func (s *Store) Restore(ctx context.Context, buf []byte) error {
	return s.run(ctx, "restore", func() error {
		return s.restoreLocked(buf)
	})
}

func (s *Store) restoreLocked(buf []byte) error {
	st, err := snapshot.Decode(buf)
	if err != nil {
		return err
	}
	if err := s.apply(st); err != nil {
		return &domain.RestoreFailure{Stage: "apply", Err: err}
	}
	s.opts.logger.Info("snapshot restored", "records", st.Records(), "version", st.Version)
	return nil
}

// PreUpgrade writes the encoded store into the reserved partition. It runs
// right before the process stops.
func (s *Store) PreUpgrade(ctx context.Context) error {
	return s.run(ctx, "pre_upgrade", s.preUpgradeLocked)
}

func (s *Store) preUpgradeLocked() error {
	st, err := s.state()
	if err != nil {
		return err
	}
	payload, err := snapshot.Encode(st)
	if err != nil {
		return err
	}
	frame := make([]byte, snapshotHeader+len(payload))
	binary.BigEndian.PutUint64(frame, uint64(len(payload)))
	copy(frame[snapshotHeader:], payload)
	if _, err := s.reserved.WriteAt(frame, 0); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.opts.logger.Info("snapshot written", "records", st.Records(), "bytes", len(payload))
	return nil
}

// SaveImage runs PreUpgrade and writes the arena image to path without
// letting another operation in between, so the image and its reserved
// snapshot agree.
func (s *Store) SaveImage(ctx context.Context, fsys afero.Fs, path string) error {
	return s.run(ctx, "save_image", func() error {
		if err := s.preUpgradeLocked(); err != nil {
			return err
		}
		return s.arena.SaveFile(fsys, path)
	})
}

// PostUpgrade restores the snapshot left by PreUpgrade. An empty reserved
// partition means there is nothing to restore.
func (s *Store) PostUpgrade(ctx context.Context) error {
	return s.run(ctx, "post_upgrade", func() error {
		payload, err := s.readReserved()
		if err != nil {
			return err
		}
		if payload == nil {
			s.opts.logger.Info("no snapshot to restore")
			return nil
		}
		return s.restoreLocked(payload)
	})
}

func (s *Store) readReserved() ([]byte, error) {
	if s.reserved.Len() == 0 {
		return nil, nil
	}
	var hdr [snapshotHeader]byte
	if _, err := s.reserved.ReadAt(hdr[:], 0); err != nil {
		return nil, &domain.RestoreFailure{Stage: "read", Err: err}
	}
	n := binary.BigEndian.Uint64(hdr[:])
	if n > uint64(s.reserved.Len()-snapshotHeader) {
		return nil, &domain.RestoreFailure{Stage: "read", Err: fmt.Errorf("snapshot length %d exceeds partition", n)}
	}
	payload := make([]byte, n)
	if _, err := s.reserved.ReadAt(payload, snapshotHeader); err != nil && !errors.Is(err, io.EOF) {
		return nil, &domain.RestoreFailure{Stage: "read", Err: err}
	}
	return payload, nil
}

// Checkpoint exports the store and wraps it for off-host sinks.
func (s *Store) Checkpoint(ctx context.Context) (snapshot.Envelope, error) {
	buf, err := s.Export(ctx)
	if err != nil {
		return snapshot.Envelope{}, err
	}
	return snapshot.NewEnvelope(buf, s.opts.clock.Now()), nil
}

// Compact copies the live records into a fresh arena and returns a store on
// it. Superseded frames are left behind with the old arena. The receiver
// must not be used afterwards.
func (s *Store) Compact(ctx context.Context, opts arena.Options) (*Store, error) {
	buf, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}
	next, err := Open(arena.New(opts), func(o *options) { *o = s.opts })
	if err != nil {
		return nil, err
	}
	if err := next.Restore(ctx, buf); err != nil {
		return nil, err
	}
	s.opts.logger.Info("arena compacted", "before", s.arena.Size(), "after", next.arena.Size())
	return next, nil
}
