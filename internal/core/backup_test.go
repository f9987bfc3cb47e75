package core

import (
	"encoding/json"
	"farmvault/pkg/domain"
	"testing"
)

func TestExportParticipants(t *testing.T) {
	s := newTestStore(t)
	mustProducer(t, s, "alice")
	mustInvestor(t, s, "ivy")

	out, err := s.ExportParticipants(t.Context())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("exported kinds = %d", len(out))
	}
	var producers []domain.Producer
	if err := json.Unmarshal(out[domain.EntityProducer], &producers); err != nil {
		t.Fatalf("decode producers: %v", err)
	}
	if len(producers) != 1 || producers[0].Owner != "alice" {
		t.Fatalf("producers = %+v", producers)
	}
	if string(out[domain.EntityFarmsAgriBusiness]) != "[]" {
		t.Fatalf("empty kind rendered as %q", out[domain.EntityFarmsAgriBusiness])
	}
}
