package core

import (
	"context"
	"farmvault/pkg/domain"
	"fmt"
	"slices"
	"strings"
)

// GetProducer returns an owned copy of a producer record.
func (s *Store) GetProducer(ctx context.Context, id uint64) (domain.Producer, error) {
	var p domain.Producer
	err := s.run(ctx, "get_producer", func() error {
		var err error
		p, err = getRecord(s.producers, domain.EntityProducer, id)
		return err
	})
	return p, err
}

// GetInvestor returns an owned copy of an investor record.
func (s *Store) GetInvestor(ctx context.Context, id uint64) (domain.Investor, error) {
	var v domain.Investor
	err := s.run(ctx, "get_investor", func() error {
		var err error
		v, err = getRecord(s.investors, domain.EntityInvestor, id)
		return err
	})
	return v, err
}

// GetSupplyAgriBusiness returns an owned copy of a supplier record.
func (s *Store) GetSupplyAgriBusiness(ctx context.Context, id uint64) (domain.SupplyAgriBusiness, error) {
	var v domain.SupplyAgriBusiness
	err := s.run(ctx, "get_supply_agribusiness", func() error {
		var err error
		v, err = getRecord(s.suppliers, domain.EntitySupplyAgriBusiness, id)
		return err
	})
	return v, err
}

// GetFarmsAgriBusiness returns an owned copy of a farms agribusiness record.
func (s *Store) GetFarmsAgriBusiness(ctx context.Context, id uint64) (domain.FarmsAgriBusiness, error) {
	var v domain.FarmsAgriBusiness
	err := s.run(ctx, "get_farms_agribusiness", func() error {
		var err error
		v, err = getRecord(s.farmsBiz, domain.EntityFarmsAgriBusiness, id)
		return err
	})
	return v, err
}

// ListProducers returns every producer in id order.
func (s *Store) ListProducers(ctx context.Context) ([]domain.Producer, error) {
	var out []domain.Producer
	err := s.run(ctx, "list_producers", func() error {
		var err error
		out, err = s.producers.Values()
		return err
	})
	return out, err
}

// ListInvestors returns every investor in id order.
func (s *Store) ListInvestors(ctx context.Context) ([]domain.Investor, error) {
	var out []domain.Investor
	err := s.run(ctx, "list_investors", func() error {
		var err error
		out, err = s.investors.Values()
		return err
	})
	return out, err
}

// ListSupplyAgriBusinesses returns every supplier in id order.
func (s *Store) ListSupplyAgriBusinesses(ctx context.Context) ([]domain.SupplyAgriBusiness, error) {
	var out []domain.SupplyAgriBusiness
	err := s.run(ctx, "list_supply_agribusinesses", func() error {
		var err error
		out, err = s.suppliers.Values()
		return err
	})
	return out, err
}

// ListFarmsAgriBusinesses returns every farms agribusiness in id order.
func (s *Store) ListFarmsAgriBusinesses(ctx context.Context) ([]domain.FarmsAgriBusiness, error) {
	var out []domain.FarmsAgriBusiness
	err := s.run(ctx, "list_farms_agribusinesses", func() error {
		var err error
		out, err = s.farmsBiz.Values()
		return err
	})
	return out, err
}

// UpdateProducer applies mutator to a fresh copy of the producer and stores the
// result. Id and owner are not mutable.
func (s *Store) UpdateProducer(ctx context.Context, id uint64, mutator func(*domain.Producer) error) (domain.Producer, error) {
	var out domain.Producer
	err := s.run(ctx, "update_producer", func() error {
		var err error
		out, err = updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			owner := p.Owner
			if err := mutator(p); err != nil {
				return err
			}
			p.ID, p.Owner = id, owner
			return nil
		})
		return err
	})
	return out, err
}

// UpdateInvestor applies mutator to an investor record.
func (s *Store) UpdateInvestor(ctx context.Context, id uint64, mutator func(*domain.Investor) error) (domain.Investor, error) {
	var out domain.Investor
	err := s.run(ctx, "update_investor", func() error {
		var err error
		out, err = updateRecord(s.investors, domain.EntityInvestor, id, func(v *domain.Investor) error {
			owner := v.Owner
			if err := mutator(v); err != nil {
				return err
			}
			v.ID, v.Owner = id, owner
			return nil
		})
		return err
	})
	return out, err
}

// UpdateSupplyAgriBusiness applies mutator to a supplier record.
func (s *Store) UpdateSupplyAgriBusiness(ctx context.Context, id uint64, mutator func(*domain.SupplyAgriBusiness) error) (domain.SupplyAgriBusiness, error) {
	var out domain.SupplyAgriBusiness
	err := s.run(ctx, "update_supply_agribusiness", func() error {
		var err error
		out, err = updateRecord(s.suppliers, domain.EntitySupplyAgriBusiness, id, func(v *domain.SupplyAgriBusiness) error {
			owner := v.Owner
			if err := mutator(v); err != nil {
				return err
			}
			v.ID, v.Owner = id, owner
			return nil
		})
		return err
	})
	return out, err
}

// UpdateFarmsAgriBusiness applies mutator to a farms agribusiness record.
func (s *Store) UpdateFarmsAgriBusiness(ctx context.Context, id uint64, mutator func(*domain.FarmsAgriBusiness) error) (domain.FarmsAgriBusiness, error) {
	var out domain.FarmsAgriBusiness
	err := s.run(ctx, "update_farms_agribusiness", func() error {
		var err error
		out, err = updateRecord(s.farmsBiz, domain.EntityFarmsAgriBusiness, id, func(v *domain.FarmsAgriBusiness) error {
			owner := v.Owner
			if err := mutator(v); err != nil {
				return err
			}
			v.ID, v.Owner = id, owner
			return nil
		})
		return err
	})
	return out, err
}

// PutProducer stores p as is over an existing record. It is the write half of a
// caller-driven round trip; whatever was stored since the caller's read is
// overwritten.
func (s *Store) PutProducer(ctx context.Context, p domain.Producer) error {
	return s.run(ctx, "put_producer", func() error {
		if !s.producers.Contains(p.ID) {
			return domain.NotFound(domain.EntityProducer, p.ID)
		}
		_, _, err := s.producers.Insert(p.ID, p)
		return err
	})
}

// Verify sets the admin verification flag on a participant record.
func (s *Store) Verify(ctx context.Context, kind domain.EntityType, id uint64, verified bool) error {
	return s.run(ctx, "verify", func() error {
		switch kind {
		case domain.EntityProducer:
			_, err := updateRecord(s.producers, kind, id, func(p *domain.Producer) error { p.Verified = verified; return nil })
			return err
		case domain.EntityInvestor:
			_, err := updateRecord(s.investors, kind, id, func(v *domain.Investor) error { v.Verified = verified; return nil })
			return err
		case domain.EntitySupplyAgriBusiness:
			_, err := updateRecord(s.suppliers, kind, id, func(v *domain.SupplyAgriBusiness) error { v.Verified = verified; return nil })
			return err
		case domain.EntityFarmsAgriBusiness:
			_, err := updateRecord(s.farmsBiz, kind, id, func(v *domain.FarmsAgriBusiness) error { v.Verified = verified; return nil })
			return err
		}
		return fmt.Errorf("verify: unsupported entity type %q: %w", kind, domain.ErrValidation)
	})
}

// SetKYCJobID records the KYC job tracking a participant's verification.
func (s *Store) SetKYCJobID(ctx context.Context, kind domain.EntityType, id uint64, jobID string) error {
	return s.run(ctx, "set_kyc_job_id", func() error {
		if strings.TrimSpace(jobID) == "" {
			return &domain.ValidationError{Entity: kind, Fields: []string{"kyc_job_id"}}
		}
		job := &jobID
		switch kind {
		case domain.EntityProducer:
			_, err := updateRecord(s.producers, kind, id, func(p *domain.Producer) error { p.KYCJobID = job; return nil })
			return err
		case domain.EntityInvestor:
			_, err := updateRecord(s.investors, kind, id, func(v *domain.Investor) error { v.KYCJobID = job; return nil })
			return err
		case domain.EntitySupplyAgriBusiness:
			_, err := updateRecord(s.suppliers, kind, id, func(v *domain.SupplyAgriBusiness) error { v.KYCJobID = job; return nil })
			return err
		case domain.EntityFarmsAgriBusiness:
			_, err := updateRecord(s.farmsBiz, kind, id, func(v *domain.FarmsAgriBusiness) error { v.KYCJobID = job; return nil })
			return err
		}
		return fmt.Errorf("set kyc job id: unsupported entity type %q: %w", kind, domain.ErrValidation)
	})
}

// UpdateFarmDetails replaces the producer's descriptive fields.
func (s *Store) UpdateFarmDetails(ctx context.Context, id uint64, details domain.NewProducer) (domain.Producer, error) {
	var out domain.Producer
	err := s.run(ctx, "update_farm_details", func() error {
		if err := details.Validate(); err != nil {
			return err
		}
		var err error
		out, err = updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			p.FarmerName, p.FarmName, p.FarmDescription = details.FarmerName, details.FarmName, details.FarmDescription
			return nil
		})
		return err
	})
	return out, err
}

func renameValidate(kind domain.EntityType, field, name string) error {
	if strings.TrimSpace(name) == "" {
		return &domain.ValidationError{Entity: kind, Fields: []string{field}}
	}
	return nil
}

// UpdateInvestorName renames an investor.
func (s *Store) UpdateInvestorName(ctx context.Context, id uint64, name string) error {
	return s.run(ctx, "update_investor_name", func() error {
		if err := renameValidate(domain.EntityInvestor, "name", name); err != nil {
			return err
		}
		_, err := updateRecord(s.investors, domain.EntityInvestor, id, func(v *domain.Investor) error { v.Name = name; return nil })
		return err
	})
}

// UpdateSupplyAgriBusinessName renames a supplier.
func (s *Store) UpdateSupplyAgriBusinessName(ctx context.Context, id uint64, name string) error {
	return s.run(ctx, "update_supply_agribusiness_name", func() error {
		if err := renameValidate(domain.EntitySupplyAgriBusiness, "agribusiness_name", name); err != nil {
			return err
		}
		_, err := updateRecord(s.suppliers, domain.EntitySupplyAgriBusiness, id, func(v *domain.SupplyAgriBusiness) error { v.Name = name; return nil })
		return err
	})
}

// UpdateFarmsAgriBusinessName renames a farms agribusiness.
func (s *Store) UpdateFarmsAgriBusinessName(ctx context.Context, id uint64, name string) error {
	return s.run(ctx, "update_farms_agribusiness_name", func() error {
		if err := renameValidate(domain.EntityFarmsAgriBusiness, "agribusiness_name", name); err != nil {
			return err
		}
		_, err := updateRecord(s.farmsBiz, domain.EntityFarmsAgriBusiness, id, func(v *domain.FarmsAgriBusiness) error { v.Name = name; return nil })
		return err
	})
}

// FindProducerByIdentity returns the producer owned by handle.
func (s *Store) FindProducerByIdentity(ctx context.Context, handle domain.Identity) (domain.Producer, error) {
	var out domain.Producer
	err := s.run(ctx, "find_producer_by_identity", func() error {
		p, ok, err := findRecord(s.producers, func(v domain.Producer) bool { return v.Owner == handle })
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Entity: domain.EntityProducer, Key: string(handle)}
		}
		out = p
		return nil
	})
	return out, err
}

// FindInvestorByIdentity returns the investor owned by handle.
func (s *Store) FindInvestorByIdentity(ctx context.Context, handle domain.Identity) (domain.Investor, error) {
	var out domain.Investor
	err := s.run(ctx, "find_investor_by_identity", func() error {
		v, ok, err := findRecord(s.investors, func(v domain.Investor) bool { return v.Owner == handle })
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Entity: domain.EntityInvestor, Key: string(handle)}
		}
		out = v
		return nil
	})
	return out, err
}

// FindFarmsAgriBusinessByIdentity returns the farms agribusiness owned by handle.
func (s *Store) FindFarmsAgriBusinessByIdentity(ctx context.Context, handle domain.Identity) (domain.FarmsAgriBusiness, error) {
	var out domain.FarmsAgriBusiness
	err := s.run(ctx, "find_farms_agribusiness_by_identity", func() error {
		v, ok, err := findRecord(s.farmsBiz, func(v domain.FarmsAgriBusiness) bool { return v.Owner == handle })
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Entity: domain.EntityFarmsAgriBusiness, Key: string(handle)}
		}
		out = v
		return nil
	})
	return out, err
}

// AddTag appends a tag to a producer. Duplicate tags are refused.
func (s *Store) AddTag(ctx context.Context, id uint64, tag string) error {
	return s.run(ctx, "add_tag", func() error {
		if strings.TrimSpace(tag) == "" {
			return &domain.ValidationError{Entity: domain.EntityProducer, Fields: []string{"tag"}}
		}
		_, err := updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			if slices.Contains(p.Tags, tag) {
				return &domain.StateGuardViolation{Entity: domain.EntityProducer, ID: id, Reason: fmt.Sprintf("tag %q already present", tag)}
			}
			p.Tags = append(p.Tags, tag)
			return nil
		})
		return err
	})
}

// DeleteTag removes a tag from a producer.
func (s *Store) DeleteTag(ctx context.Context, id uint64, tag string) error {
	return s.run(ctx, "delete_tag", func() error {
		_, err := updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			i := slices.Index(p.Tags, tag)
			if i < 0 {
				return &domain.NotFoundError{Entity: "tag", Key: tag}
			}
			p.Tags = slices.Delete(p.Tags, i, i+1)
			return nil
		})
		return err
	})
}

// SetCreditScore records the credit limit used to bound loan asks.
func (s *Store) SetCreditScore(ctx context.Context, id uint64, score uint64) error {
	return s.run(ctx, "set_credit_score", func() error {
		_, err := updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			p.CreditScore = &score
			return nil
		})
		return err
	})
}

// ReportKind selects a producer report list.
type ReportKind string

// Report kinds.
const (
	ReportFinancial ReportKind = "financial"
	ReportFarm      ReportKind = "farm"
)

// AddFinancialReport appends a financial report to a producer.
func (s *Store) AddFinancialReport(ctx context.Context, id uint64, report domain.FinancialReport) error {
	return s.run(ctx, "add_financial_report", func() error {
		if strings.TrimSpace(report.Title) == "" {
			return &domain.ValidationError{Entity: domain.EntityProducer, Fields: []string{"title"}}
		}
		_, err := updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			p.FinancialReports = append(p.FinancialReports, report)
			return nil
		})
		return err
	})
}

// AddFarmReport appends an operational report to a producer.
func (s *Store) AddFarmReport(ctx context.Context, id uint64, report domain.FarmReport) error {
	return s.run(ctx, "add_farm_report", func() error {
		if strings.TrimSpace(report.Title) == "" {
			return &domain.ValidationError{Entity: domain.EntityProducer, Fields: []string{"title"}}
		}
		_, err := updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			p.FarmReports = append(p.FarmReports, report)
			return nil
		})
		return err
	})
}

// DeleteReport removes the report at index from the selected list.
func (s *Store) DeleteReport(ctx context.Context, id uint64, kind ReportKind, index int) error {
	return s.run(ctx, "delete_report", func() error {
		_, err := updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			switch kind {
			case ReportFinancial:
				if index < 0 || index >= len(p.FinancialReports) {
					return &domain.NotFoundError{Entity: "financial_report", Key: fmt.Sprint(index)}
				}
				p.FinancialReports = slices.Delete(p.FinancialReports, index, index+1)
			case ReportFarm:
				if index < 0 || index >= len(p.FarmReports) {
					return &domain.NotFoundError{Entity: "farm_report", Key: fmt.Sprint(index)}
				}
				p.FarmReports = slices.Delete(p.FarmReports, index, index+1)
			default:
				return fmt.Errorf("delete report: unknown report kind %q: %w", kind, domain.ErrValidation)
			}
			return nil
		})
		return err
	})
}

// SaveFarm bookmarks a producer for the investor owned by caller. Saving the
// same farm twice is a no-op.
func (s *Store) SaveFarm(ctx context.Context, caller domain.Identity, farmID uint64) (domain.Investor, error) {
	var out domain.Investor
	err := s.run(ctx, "save_farm", func() error {
		inv, ok, err := findRecord(s.investors, func(v domain.Investor) bool { return v.Owner == caller })
		if err != nil {
			return err
		}
		if !ok {
			return &domain.AuthorizationError{Identity: caller, Action: "save farms without an investor account"}
		}
		if !s.producers.Contains(farmID) {
			return domain.NotFound(domain.EntityProducer, farmID)
		}
		out, err = updateRecord(s.investors, domain.EntityInvestor, inv.ID, func(v *domain.Investor) error {
			if !slices.Contains(v.SavedFarms, farmID) {
				v.SavedFarms = append(v.SavedFarms, farmID)
			}
			return nil
		})
		return err
	})
	return out, err
}

// SavedFarms lists the producer ids bookmarked by an investor.
func (s *Store) SavedFarms(ctx context.Context, investorID uint64) ([]uint64, error) {
	var out []uint64
	err := s.run(ctx, "saved_farms", func() error {
		v, err := getRecord(s.investors, domain.EntityInvestor, investorID)
		if err != nil {
			return err
		}
		out = v.SavedFarms
		return nil
	})
	return out, err
}

// DeleteProducer removes a producer owned by caller together with its images
// and report files.
func (s *Store) DeleteProducer(ctx context.Context, caller domain.Identity, id uint64) error {
	return s.run(ctx, "delete_producer", func() error {
		p, err := getRecord(s.producers, domain.EntityProducer, id)
		if err != nil {
			return err
		}
		if p.Owner != caller {
			return &domain.AuthorizationError{Identity: caller, Action: fmt.Sprintf("delete producer %d", id)}
		}
		if err := s.removeProducerFiles(p); err != nil {
			return err
		}
		_, _, err = s.producers.Remove(id)
		return err
	})
}
