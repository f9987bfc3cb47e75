package core

import (
	"context"
	"farmvault/pkg/domain"
	"fmt"
)

func (s *Store) farmsBusinessFor(caller domain.Identity) (domain.FarmsAgriBusiness, error) {
	b, ok, err := findRecord(s.farmsBiz, func(v domain.FarmsAgriBusiness) bool { return v.Owner == caller })
	if err != nil {
		return b, err
	}
	if !ok {
		return b, &domain.AuthorizationError{Identity: caller, Action: "manage farms without a farms agribusiness account"}
	}
	return b, nil
}

// AddManagedFarm registers a farm on behalf of the farms agribusiness owned by
// caller. Managed farms share the producer id sequence, start verified, and
// stay unpublished until the business publishes them.
func (s *Store) AddManagedFarm(ctx context.Context, caller domain.Identity, in domain.NewProducer) (domain.Producer, error) {
	var created domain.Producer
	err := s.run(ctx, "add_managed_farm", func() error {
		if err := in.Validate(); err != nil {
			return err
		}
		biz, err := s.farmsBusinessFor(caller)
		if err != nil {
			return err
		}
		id, err := s.nextID(seqProducer)
		if err != nil {
			return err
		}
		created = domain.Producer{
			ID:              id,
			Owner:           caller,
			FarmerName:      in.FarmerName,
			FarmName:        in.FarmName,
			FarmDescription: in.FarmDescription,
			Verified:        true,
			Tags:            []string{},
			AgriBusiness:    biz.Name,
		}
		_, _, err = s.managed.Insert(id, created)
		return err
	})
	return created, err
}

// GetManagedFarm returns a managed farm by id.
func (s *Store) GetManagedFarm(ctx context.Context, id uint64) (domain.Producer, error) {
	var out domain.Producer
	err := s.run(ctx, "get_managed_farm", func() error {
		var err error
		out, err = getRecord(s.managed, domain.EntityManagedFarm, id)
		return err
	})
	return out, err
}

// ListManagedFarms returns the farms managed by the business owned by caller.
func (s *Store) ListManagedFarms(ctx context.Context, caller domain.Identity) ([]domain.Producer, error) {
	var out []domain.Producer
	err := s.run(ctx, "list_managed_farms", func() error {
		if _, err := s.farmsBusinessFor(caller); err != nil {
			return err
		}
		var err error
		out, err = filterRecords(s.managed, func(p domain.Producer) bool { return p.Owner == caller })
		return err
	})
	return out, err
}

// SetManagedFarmPublished toggles whether a managed farm is listed publicly.
func (s *Store) SetManagedFarmPublished(ctx context.Context, caller domain.Identity, id uint64, published bool) (domain.Producer, error) {
	var out domain.Producer
	err := s.run(ctx, "set_managed_farm_published", func() error {
		var err error
		out, err = updateRecord(s.managed, domain.EntityManagedFarm, id, func(p *domain.Producer) error {
			if p.Owner != caller {
				return &domain.AuthorizationError{Identity: caller, Action: fmt.Sprintf("publish managed farm %d", id)}
			}
			p.Published = published
			return nil
		})
		return err
	})
	return out, err
}

// DeleteManagedFarm removes a managed farm and the files grouped under its id.
func (s *Store) DeleteManagedFarm(ctx context.Context, caller domain.Identity, id uint64) error {
	return s.run(ctx, "delete_managed_farm", func() error {
		p, err := getRecord(s.managed, domain.EntityManagedFarm, id)
		if err != nil {
			return err
		}
		if p.Owner != caller {
			return &domain.AuthorizationError{Identity: caller, Action: fmt.Sprintf("delete managed farm %d", id)}
		}
		if err := s.removeProducerFiles(p); err != nil {
			return err
		}
		_, _, err = s.managed.Remove(id)
		return err
	})
}
