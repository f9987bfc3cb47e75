package core

import (
	"farmvault/internal/arena"
	"farmvault/pkg/domain"
	"fmt"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

// manualClock is advanced explicitly by tests.
type manualClock struct{ now time.Time }

func newManualClock(start time.Time) *manualClock { return &manualClock{now: start} }

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct{ entries []logEntry }

func (l *captureLogger) add(level, msg string, args []any) {
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return openOn(t, arena.New(arena.Options{BucketSize: 1024}), opts...)
}

func openOn(t *testing.T, m *arena.Manager, opts ...Option) *Store {
	t.Helper()
	s, err := Open(m, opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func newProducerInput(n int) domain.NewProducer {
	return domain.NewProducer{
		FarmerName:      fmt.Sprintf("farmer %d", n),
		FarmName:        fmt.Sprintf("farm %d", n),
		FarmDescription: "maize and beans",
	}
}

func mustProducer(t *testing.T, s *Store, owner domain.Identity) domain.Producer {
	t.Helper()
	p, err := s.RegisterProducer(t.Context(), owner, newProducerInput(1))
	if err != nil {
		t.Fatalf("register producer %s: %v", owner, err)
	}
	return p
}

func mustInvestor(t *testing.T, s *Store, owner domain.Identity) domain.Investor {
	t.Helper()
	v, err := s.RegisterInvestor(t.Context(), owner, domain.NewInvestor{Name: "investor " + string(owner)})
	if err != nil {
		t.Fatalf("register investor %s: %v", owner, err)
	}
	return v
}

func uptr(v uint64) *uint64 { return &v }
