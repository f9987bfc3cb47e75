// Package snapshot defines the serialized form of the whole store used across
// restarts, and the sinks that keep copies of it off-host.
package snapshot

import (
	"farmvault/internal/collection"
	"farmvault/pkg/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FormatVersion is written into every snapshot. Decoding refuses newer versions.
const FormatVersion = 1

// Entry is one collection key/value pair.
type Entry[K, V any] struct {
	Key   K `cbor:"1,keyasint"`
	Value V `cbor:"2,keyasint"`
}

// State is the ordered tuple of every collection and auxiliary map. Fields are
// keyed by position; new fields take the next number so older snapshots decode
// with the new fields left at their zero value.
type State struct {
	Version              int                                        `cbor:"1,keyasint"`
	Producers            []Entry[uint64, domain.Producer]           `cbor:"2,keyasint"`
	Investors            []Entry[uint64, domain.Investor]           `cbor:"3,keyasint"`
	SupplyAgriBusinesses []Entry[uint64, domain.SupplyAgriBusiness] `cbor:"4,keyasint"`
	FarmsAgriBusinesses  []Entry[uint64, domain.FarmsAgriBusiness]  `cbor:"5,keyasint"`
	ManagedFarms         []Entry[uint64, domain.Producer]           `cbor:"6,keyasint"`
	Orders               []Entry[uint64, domain.Order]              `cbor:"7,keyasint"`
	Files                []Entry[string, []byte]                    `cbor:"8,keyasint"`
	Sequences            map[string]uint64                          `cbor:"9,keyasint"`

	InvestmentsByInvestor map[uint64][]domain.Investment        `cbor:"10,keyasint"`
	InvestmentsByFarm     map[uint64][]domain.Investment        `cbor:"11,keyasint"`
	TransactionFees       map[string]float64                    `cbor:"12,keyasint"`
	ApprovedSpenders      map[domain.Identity][]domain.Identity `cbor:"13,keyasint"`
}

// Records counts the collection entries held by s.
func (s State) Records() int {
	return len(s.Producers) + len(s.Investors) + len(s.SupplyAgriBusinesses) +
		len(s.FarmsAgriBusinesses) + len(s.ManagedFarms) + len(s.Orders) + len(s.Files)
}

// Encode serializes s into one buffer.
func Encode(s State) ([]byte, error) {
	s.Version = FormatVersion
	buf, err := collection.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf, nil
}

// Decode parses a buffer produced by Encode. Any failure is a RestoreFailure.
func Decode(buf []byte) (State, error) {
	var s State
	if len(buf) == 0 {
		return s, &domain.RestoreFailure{Stage: "decode", Err: fmt.Errorf("empty snapshot buffer")}
	}
	if err := collection.Unmarshal(buf, &s); err != nil {
		return State{}, &domain.RestoreFailure{Stage: "decode", Err: err}
	}
	if s.Version > FormatVersion {
		return State{}, &domain.RestoreFailure{Stage: "decode", Err: fmt.Errorf("snapshot version %d is newer than supported %d", s.Version, FormatVersion)}
	}
	migrate(&s)
	return s, nil
}

// migrate fills maps that older snapshots did not carry.
func migrate(s *State) {
	if s.Sequences == nil {
		s.Sequences = map[string]uint64{}
	}
	if s.InvestmentsByInvestor == nil {
		s.InvestmentsByInvestor = map[uint64][]domain.Investment{}
	}
	if s.InvestmentsByFarm == nil {
		s.InvestmentsByFarm = map[uint64][]domain.Investment{}
	}
	if s.TransactionFees == nil {
		s.TransactionFees = map[string]float64{}
	}
	if s.ApprovedSpenders == nil {
		s.ApprovedSpenders = map[domain.Identity][]domain.Identity{}
	}
}

// Envelope is an encoded snapshot tagged for off-host storage.
type Envelope struct {
	Generation uuid.UUID `json:"generation"`
	TakenAt    time.Time `json:"taken_at"`
	Payload    []byte    `json:"-"`
}

// NewEnvelope wraps payload with a fresh generation id.
func NewEnvelope(payload []byte, takenAt time.Time) Envelope {
	return Envelope{Generation: uuid.New(), TakenAt: takenAt.UTC(), Payload: payload}
}
