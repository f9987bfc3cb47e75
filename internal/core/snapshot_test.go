package core

import (
	"encoding/binary"
	"errors"
	"farmvault/internal/arena"
	"farmvault/internal/collection"
	"farmvault/internal/snapshot"
	"farmvault/pkg/domain"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/afero"
)

func mustState(t *testing.T, s *Store) snapshot.State {
	t.Helper()
	st, err := s.state()
	if err != nil {
		t.Fatalf("collect state: %v", err)
	}
	return st
}

// populate touches every collection and ledger map.
func populate(t *testing.T, s *Store, n int) {
	t.Helper()
	ctx := t.Context()
	for i := range n {
		owner := domain.Identity(fmt.Sprintf("producer-%d", i))
		p, err := s.RegisterProducer(ctx, owner, newProducerInput(i))
		if err != nil {
			t.Fatalf("register producer: %v", err)
		}
		if err := s.SetCreditScore(ctx, p.ID, uint64(100+i)); err != nil {
			t.Fatalf("credit: %v", err)
		}
		if err := s.UploadFile(ctx, fileGroup("financial", p.ID), []byte{byte(i)}); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}
	inv := mustInvestor(t, s, "ivy")
	sup := seedSupplier(t, s)
	if _, err := s.RegisterFarmsAgriBusiness(ctx, "agri", domain.NewFarmsAgriBusiness{Name: "Agri"}); err != nil {
		t.Fatalf("register business: %v", err)
	}
	if _, err := s.AddManagedFarm(ctx, "agri", newProducerInput(99)); err != nil {
		t.Fatalf("managed farm: %v", err)
	}
	if _, err := s.CreateOrder(ctx, "seedco", domain.NewOrder{ProducerID: 1, SupplierID: sup.ID, Items: []domain.Product{{ItemName: "maize seed", Amount: 2}}}); err != nil {
		t.Fatalf("order: %v", err)
	}
	if err := s.RecordInvestment(ctx, domain.Investment{FarmID: 1, InvestorID: inv.ID, Amount: 12.5, TxHash: "0x1", Currency: "USDC"}); err != nil {
		t.Fatalf("investment: %v", err)
	}
	if err := s.StoreTransactionFee(ctx, "0x1", 0.25); err != nil {
		t.Fatalf("fee: %v", err)
	}
	if err := s.ApproveSpender(ctx, "ivy", "escrow"); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func TestExportRestoreEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	buf, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	dst := newTestStore(t)
	if err := dst.Restore(ctx, buf); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if st := mustState(t, dst); st.Records() != 0 || len(st.Sequences) != 0 {
		t.Fatalf("expected empty state, got %+v", st)
	}
}

func TestExportRestoreReproducesState(t *testing.T) {
	src := newTestStore(t)
	populate(t, src, 5)
	ctx := t.Context()
	buf, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := newTestStore(t)
	mustProducer(t, dst, "stale")
	for range 2 {
		if err := dst.Restore(ctx, buf); err != nil {
			t.Fatalf("restore: %v", err)
		}
	}
	want, got := mustState(t, src), mustState(t, dst)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("restored state mismatch (-want +got):\n%s", diff)
	}
	if _, err := dst.FindProducerByIdentity(ctx, "stale"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("pre-restore record survived: %v", err)
	}
	// Sequences continue where the source left off.
	next := mustProducer(t, dst, "late")
	if next.ID != 7 {
		t.Fatalf("next producer id = %d, want 7", next.ID)
	}
}

func TestRestoreCorruptBufferKeepsData(t *testing.T) {
	logger := &captureLogger{}
	s := newTestStore(t, WithLogger(logger))
	populate(t, s, 2)
	before := mustState(t, s)

	err := s.Restore(t.Context(), []byte{0xff, 0x00, 0x13})
	var rf *domain.RestoreFailure
	if !errors.As(err, &rf) || rf.Stage != "decode" {
		t.Fatalf("expected decode RestoreFailure, got %v", err)
	}
	if err := s.Restore(t.Context(), nil); !errors.Is(err, domain.ErrRestore) {
		t.Fatalf("empty buffer: %v", err)
	}
	if diff := cmp.Diff(before, mustState(t, s), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("state changed after failed restore (-want +got):\n%s", diff)
	}
	if !logger.has("error", "store operation failed") {
		t.Fatalf("restore failure not logged at error level")
	}
}

func TestRestoreRejectsNewerVersion(t *testing.T) {
	s := newTestStore(t)
	buf, err := snapshotBufferWithVersion(snapshot.FormatVersion + 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := s.Restore(t.Context(), buf); !errors.Is(err, domain.ErrRestore) {
		t.Fatalf("newer version: %v", err)
	}
}

func snapshotBufferWithVersion(v int) ([]byte, error) {
	type versioned struct {
		Version int `cbor:"1,keyasint"`
	}
	return collection.Marshal(versioned{Version: v})
}

func TestUpgradeAcrossArenaImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := t.Context()
	src := newTestStore(t)
	populate(t, src, 3)
	want := mustState(t, src)

	if err := src.PreUpgrade(ctx); err != nil {
		t.Fatalf("pre upgrade: %v", err)
	}
	if err := src.Arena().SaveFile(fs, "/data/arena.img"); err != nil {
		t.Fatalf("save image: %v", err)
	}

	m, loaded, err := arena.LoadFile(fs, "/data/arena.img", arena.Options{BucketSize: 1024})
	if err != nil || !loaded {
		t.Fatalf("load image: loaded=%v err=%v", loaded, err)
	}
	dst := openOn(t, m)
	for range 2 {
		if err := dst.PostUpgrade(ctx); err != nil {
			t.Fatalf("post upgrade: %v", err)
		}
	}
	if diff := cmp.Diff(want, mustState(t, dst), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("state after upgrade mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveImageCarriesSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := t.Context()
	src := newTestStore(t)
	populate(t, src, 2)
	want := mustState(t, src)
	if err := src.SaveImage(ctx, fs, "/data/arena.img"); err != nil {
		t.Fatalf("save image: %v", err)
	}

	m, loaded, err := arena.LoadFile(fs, "/data/arena.img", arena.Options{BucketSize: 1024})
	if err != nil || !loaded {
		t.Fatalf("load image: loaded=%v err=%v", loaded, err)
	}
	dst := openOn(t, m)
	if diff := cmp.Diff(want, mustState(t, dst), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("replayed state mismatch (-want +got):\n%s", diff)
	}
	if err := dst.PostUpgrade(ctx); err != nil {
		t.Fatalf("post upgrade: %v", err)
	}
	if diff := cmp.Diff(want, mustState(t, dst), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("restored state mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveImageFailureIsLogged(t *testing.T) {
	logger := &captureLogger{}
	s := newTestStore(t, WithLogger(logger))
	if err := s.SaveImage(t.Context(), afero.NewReadOnlyFs(afero.NewMemMapFs()), "/data/arena.img"); err == nil {
		t.Fatalf("expected read-only filesystem error")
	}
	if !logger.has("error", "store operation failed") {
		t.Fatalf("expected error log, got %+v", logger.entries)
	}
}

func TestPostUpgradeWithoutSnapshot(t *testing.T) {
	logger := &captureLogger{}
	s := newTestStore(t, WithLogger(logger))
	if err := s.PostUpgrade(t.Context()); err != nil {
		t.Fatalf("post upgrade: %v", err)
	}
	if !logger.has("info", "no snapshot to restore") {
		t.Fatalf("missing info log")
	}
}

func TestPostUpgradeTruncatedSnapshot(t *testing.T) {
	s := newTestStore(t)
	mustProducer(t, s, "alice")
	var hdr [snapshotHeader]byte
	binary.BigEndian.PutUint64(hdr[:], 1<<20)
	if _, err := s.reserved.WriteAt(hdr[:], 0); err != nil {
		t.Fatalf("write header: %v", err)
	}
	err := s.PostUpgrade(t.Context())
	var rf *domain.RestoreFailure
	if !errors.As(err, &rf) || rf.Stage != "read" {
		t.Fatalf("expected read RestoreFailure, got %v", err)
	}
	if _, err := s.FindProducerByIdentity(t.Context(), "alice"); err != nil {
		t.Fatalf("data lost after failed upgrade: %v", err)
	}
}

func TestCompactDropsSupersededFrames(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	p := mustProducer(t, s, "alice")
	for i := range 50 {
		if err := s.SetCreditScore(ctx, p.ID, uint64(i)); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	want := mustState(t, s)
	before := s.Arena().Size()

	next, err := s.Compact(ctx, arena.Options{BucketSize: 1024})
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if after := next.Arena().Size(); after >= before {
		t.Fatalf("compacted arena %d not smaller than %d", after, before)
	}
	if diff := cmp.Diff(want, mustState(t, next), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("state after compact mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckpointEnvelope(t *testing.T) {
	clock := newManualClock(t0)
	s := newTestStore(t, WithClock(clock))
	populate(t, s, 1)
	env, err := s.Checkpoint(t.Context())
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if !env.TakenAt.Equal(t0) || len(env.Payload) == 0 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	st, err := snapshot.Decode(env.Payload)
	if err != nil || st.Records() != mustState(t, s).Records() {
		t.Fatalf("decode envelope: records=%d err=%v", st.Records(), err)
	}
}
