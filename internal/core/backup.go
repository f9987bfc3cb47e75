package core

import (
	"context"
	"encoding/json"
	"farmvault/pkg/domain"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

func marshalList[V any](values []V, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []V{}
	}
	return json.MarshalIndent(values, "", "  ")
}

// ExportParticipants renders every participant list as JSON keyed by kind.
// Kinds that fail are left out and reported together.
func (s *Store) ExportParticipants(ctx context.Context) (map[domain.EntityType][]byte, error) {
	out := make(map[domain.EntityType][]byte, len(domain.ParticipantTypes)+1)
	var result *multierror.Error
	err := s.run(ctx, "export_participants", func() error {
		render := map[domain.EntityType]func() ([]byte, error){
			domain.EntityProducer:           func() ([]byte, error) { return marshalList(s.producers.Values()) },
			domain.EntityInvestor:           func() ([]byte, error) { return marshalList(s.investors.Values()) },
			domain.EntitySupplyAgriBusiness: func() ([]byte, error) { return marshalList(s.suppliers.Values()) },
			domain.EntityFarmsAgriBusiness:  func() ([]byte, error) { return marshalList(s.farmsBiz.Values()) },
			domain.EntityManagedFarm:        func() ([]byte, error) { return marshalList(s.managed.Values()) },
		}
		for kind, fn := range render {
			buf, err := fn()
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("export %s: %w", kind, err))
				continue
			}
			out[kind] = buf
		}
		return result.ErrorOrNil()
	})
	return out, err
}
