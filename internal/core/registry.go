package core

import (
	"context"
	"farmvault/pkg/domain"
)

// EntityDetails is the participant record owned by an identity.
type EntityDetails struct {
	Type               domain.EntityType
	Producer           *domain.Producer
	Investor           *domain.Investor
	SupplyAgriBusiness *domain.SupplyAgriBusiness
	FarmsAgriBusiness  *domain.FarmsAgriBusiness
}

// lookupIdentity scans producers, investors, supply and farms agribusinesses
// in that order and stops at the first record owned by handle.
func (s *Store) lookupIdentity(handle domain.Identity) (EntityDetails, error) {
	if p, ok, err := findRecord(s.producers, func(v domain.Producer) bool { return v.Owner == handle }); err != nil || ok {
		return EntityDetails{Type: domain.EntityProducer, Producer: &p}, err
	}
	if i, ok, err := findRecord(s.investors, func(v domain.Investor) bool { return v.Owner == handle }); err != nil || ok {
		return EntityDetails{Type: domain.EntityInvestor, Investor: &i}, err
	}
	if b, ok, err := findRecord(s.suppliers, func(v domain.SupplyAgriBusiness) bool { return v.Owner == handle }); err != nil || ok {
		return EntityDetails{Type: domain.EntitySupplyAgriBusiness, SupplyAgriBusiness: &b}, err
	}
	if b, ok, err := findRecord(s.farmsBiz, func(v domain.FarmsAgriBusiness) bool { return v.Owner == handle }); err != nil || ok {
		return EntityDetails{Type: domain.EntityFarmsAgriBusiness, FarmsAgriBusiness: &b}, err
	}
	return EntityDetails{Type: domain.EntityNone}, nil
}

// checkRegistrable runs the validation and uniqueness steps shared by every
// registration, in that order.
func (s *Store) checkRegistrable(owner domain.Identity, validate func() error) error {
	if err := validate(); err != nil {
		return err
	}
	if owner == domain.Anonymous {
		return &domain.ValidationError{Entity: domain.EntityNone, Fields: []string{"owner"}}
	}
	existing, err := s.lookupIdentity(owner)
	if err != nil {
		return err
	}
	if existing.Type != domain.EntityNone {
		return &domain.DuplicateIdentityError{Identity: owner, Existing: existing.Type}
	}
	return nil
}

// IsIdentityRegistered reports whether handle owns a record of any participant kind.
func (s *Store) IsIdentityRegistered(ctx context.Context, handle domain.Identity) (bool, error) {
	var registered bool
	err := s.run(ctx, "is_identity_registered", func() error {
		d, err := s.lookupIdentity(handle)
		registered = d.Type != domain.EntityNone
		return err
	})
	return registered, err
}

// EntityType reports the participant kind owned by handle, or EntityNone.
func (s *Store) EntityType(ctx context.Context, handle domain.Identity) (domain.EntityType, error) {
	d, err := s.EntityDetails(ctx, handle)
	return d.Type, err
}

// EntityDetails returns the participant record owned by handle.
func (s *Store) EntityDetails(ctx context.Context, handle domain.Identity) (EntityDetails, error) {
	var d EntityDetails
	err := s.run(ctx, "entity_details", func() error {
		var err error
		d, err = s.lookupIdentity(handle)
		return err
	})
	return d, err
}

// LogIn resolves handle to its participant kind and fails for unknown identities.
func (s *Store) LogIn(ctx context.Context, handle domain.Identity) (domain.EntityType, error) {
	var kind domain.EntityType
	err := s.run(ctx, "log_in", func() error {
		d, err := s.lookupIdentity(handle)
		if err != nil {
			return err
		}
		if d.Type == domain.EntityNone {
			return &domain.NotFoundError{Entity: domain.EntityNone, Key: string(handle)}
		}
		kind = d.Type
		return nil
	})
	return kind, err
}

// RegisterProducer validates, checks uniqueness, issues an id, and inserts.
func (s *Store) RegisterProducer(ctx context.Context, owner domain.Identity, in domain.NewProducer) (domain.Producer, error) {
	var created domain.Producer
	err := s.run(ctx, "register_producer", func() error {
		if err := s.checkRegistrable(owner, in.Validate); err != nil {
			return err
		}
		id, err := s.nextID(seqProducer)
		if err != nil {
			return err
		}
		created = domain.Producer{
			ID:              id,
			Owner:           owner,
			FarmerName:      in.FarmerName,
			FarmName:        in.FarmName,
			FarmDescription: in.FarmDescription,
			Tags:            []string{},
			Published:       true,
		}
		_, _, err = s.producers.Insert(id, created)
		return err
	})
	return created, err
}

// RegisterInvestor registers an investor.
func (s *Store) RegisterInvestor(ctx context.Context, owner domain.Identity, in domain.NewInvestor) (domain.Investor, error) {
	var created domain.Investor
	err := s.run(ctx, "register_investor", func() error {
		if err := s.checkRegistrable(owner, in.Validate); err != nil {
			return err
		}
		id, err := s.nextID(seqInvestor)
		if err != nil {
			return err
		}
		created = domain.Investor{ID: id, Owner: owner, Name: in.Name}
		_, _, err = s.investors.Insert(id, created)
		return err
	})
	return created, err
}

// RegisterSupplyAgriBusiness registers a supplier, optionally with its catalogue.
func (s *Store) RegisterSupplyAgriBusiness(ctx context.Context, owner domain.Identity, in domain.NewSupplyAgriBusiness) (domain.SupplyAgriBusiness, error) {
	var created domain.SupplyAgriBusiness
	err := s.run(ctx, "register_supply_agribusiness", func() error {
		if err := s.checkRegistrable(owner, in.Validate); err != nil {
			return err
		}
		id, err := s.nextID(seqSupplyAgriBusiness)
		if err != nil {
			return err
		}
		created = domain.SupplyAgriBusiness{ID: id, Owner: owner, Name: in.Name, Items: in.Items}
		_, _, err = s.suppliers.Insert(id, created)
		return err
	})
	return created, err
}

// RegisterFarmsAgriBusiness registers a farms agribusiness.
func (s *Store) RegisterFarmsAgriBusiness(ctx context.Context, owner domain.Identity, in domain.NewFarmsAgriBusiness) (domain.FarmsAgriBusiness, error) {
	var created domain.FarmsAgriBusiness
	err := s.run(ctx, "register_farms_agribusiness", func() error {
		if err := s.checkRegistrable(owner, in.Validate); err != nil {
			return err
		}
		id, err := s.nextID(seqFarmsAgriBusiness)
		if err != nil {
			return err
		}
		created = domain.FarmsAgriBusiness{ID: id, Owner: owner, Name: in.Name, TotalFarmers: in.TotalFarmers}
		_, _, err = s.farmsBiz.Insert(id, created)
		return err
	})
	return created, err
}
