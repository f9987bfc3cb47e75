package snapshot

import (
	"context"
	"errors"
	"farmvault/internal/blob/core"
	"farmvault/internal/infra/blob/memory"
	"fmt"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

type stubSink struct {
	name  string
	env   *Envelope
	err   error
	saved int
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Save(_ context.Context, env Envelope) error {
	if s.err != nil {
		return s.err
	}
	s.saved++
	s.env = &env
	return nil
}

func (s *stubSink) Load(context.Context) (Envelope, error) {
	if s.err != nil {
		return Envelope{}, s.err
	}
	if s.env == nil {
		return Envelope{}, ErrNoSnapshot
	}
	return *s.env, nil
}

func TestMultiSink_SaveAggregatesFailures(t *testing.T) {
	ok := &stubSink{name: "ok"}
	bad1 := &stubSink{name: "bad1", err: fmt.Errorf("disk full")}
	bad2 := &stubSink{name: "bad2", err: fmt.Errorf("timeout")}
	err := MultiSink{bad1, ok, bad2}.Save(context.Background(), NewEnvelope([]byte("p"), t0))
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if ok.saved != 1 {
		t.Fatalf("healthy sink skipped")
	}
	for _, want := range []string{"bad1: disk full", "bad2: timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
	if err := (MultiSink{ok}).Save(context.Background(), NewEnvelope(nil, t0)); err != nil {
		t.Fatalf("single sink save: %v", err)
	}
}

func TestMultiSink_LoadPicksNewest(t *testing.T) {
	older := NewEnvelope([]byte("old"), t0)
	newer := NewEnvelope([]byte("new"), t0.Add(time.Hour))
	sinks := MultiSink{
		&stubSink{name: "a", env: &older},
		&stubSink{name: "broken", err: fmt.Errorf("unreachable")},
		&stubSink{name: "b", env: &newer},
		&stubSink{name: "empty"},
	}
	env, err := sinks.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(env.Payload) != "new" {
		t.Fatalf("payload = %q", env.Payload)
	}
}

func TestMultiSink_LoadEmptyAndAllFailing(t *testing.T) {
	if _, err := (MultiSink{&stubSink{name: "empty"}}).Load(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty err = %v", err)
	}
	boom := fmt.Errorf("boom")
	_, err := MultiSink{&stubSink{name: "x", err: boom}}.Load(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("failing err = %v", err)
	}
}

func TestBlobSink_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := NewBlobSink(store, "", 0)
	if _, err := sink.Load(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty load err = %v", err)
	}
	first := NewEnvelope([]byte("first"), t0)
	second := NewEnvelope([]byte("second"), t0.Add(90*time.Second))
	for _, env := range []Envelope{second, first} {
		if err := sink.Save(ctx, env); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	// Unrelated blobs under the prefix are ignored.
	if _, err := core.PutBytes(ctx, store, "snapshots/README", []byte("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := sink.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Generation != second.Generation || !got.TakenAt.Equal(second.TakenAt) || string(got.Payload) != "second" {
		t.Fatalf("loaded %+v", got)
	}
	info, err := store.Head(ctx, sink.key(second))
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.ContentType != cborContentType || info.Metadata["generation"] != second.Generation.String() {
		t.Fatalf("info = %+v", info)
	}
	if err := sink.Save(ctx, second); !errors.Is(err, core.ErrExists) {
		t.Fatalf("resave err = %v", err)
	}
	if sink.Name() != "blob:memory" {
		t.Fatalf("name = %s", sink.Name())
	}
}

func TestBlobSink_Retention(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := NewBlobSink(store, "archive", 2)
	var last Envelope
	for i := range 4 {
		last = NewEnvelope(fmt.Appendf(nil, "gen-%d", i), t0.Add(time.Duration(i)*time.Minute))
		if err := sink.Save(ctx, last); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	list, err := store.List(ctx, "archive/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("retained %d snapshots", len(list))
	}
	got, err := sink.Load(ctx)
	if err != nil || string(got.Payload) != "gen-3" || got.Generation != last.Generation {
		t.Fatalf("load = %+v %v", got, err)
	}
}
