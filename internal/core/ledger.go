package core

import (
	"context"
	"farmvault/pkg/domain"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ledger holds investment records, retained fees and spender approvals. It
// lives in memory only and reaches the arena through the snapshot.
type ledger struct {
	byInvestor map[uint64][]domain.Investment
	byFarm     map[uint64][]domain.Investment
	fees       map[string]float64
	spenders   map[domain.Identity][]domain.Identity
}

func newLedger() ledger {
	return ledger{
		byInvestor: map[uint64][]domain.Investment{},
		byFarm:     map[uint64][]domain.Investment{},
		fees:       map[string]float64{},
		spenders:   map[domain.Identity][]domain.Identity{},
	}
}

func (l ledger) hasTx(farmID uint64, txHash string) bool {
	return slices.ContainsFunc(l.byFarm[farmID], func(inv domain.Investment) bool { return inv.TxHash == txHash })
}

// RecordInvestment books an investment against both the investor and the farm.
// A transaction hash is booked at most once per farm.
func (s *Store) RecordInvestment(ctx context.Context, inv domain.Investment) error {
	return s.run(ctx, "record_investment", func() error {
		var missing []string
		if inv.Amount <= 0 {
			missing = append(missing, "amount")
		}
		if strings.TrimSpace(inv.TxHash) == "" {
			missing = append(missing, "tx_hash")
		}
		if len(missing) > 0 {
			return &domain.ValidationError{Entity: "investment", Fields: missing}
		}
		if !s.investors.Contains(inv.InvestorID) {
			return domain.NotFound(domain.EntityInvestor, inv.InvestorID)
		}
		if !s.producers.Contains(inv.FarmID) && !s.managed.Contains(inv.FarmID) {
			return domain.NotFound(domain.EntityProducer, inv.FarmID)
		}
		if s.ledger.hasTx(inv.FarmID, inv.TxHash) {
			return &domain.StateGuardViolation{Entity: domain.EntityProducer, ID: inv.FarmID, Reason: fmt.Sprintf("transaction %s already recorded", inv.TxHash)}
		}
		s.ledger.byInvestor[inv.InvestorID] = append(s.ledger.byInvestor[inv.InvestorID], inv)
		s.ledger.byFarm[inv.FarmID] = append(s.ledger.byFarm[inv.FarmID], inv)
		s.opts.logger.Info("investment recorded", "farm", inv.FarmID, "investor", inv.InvestorID, "amount", inv.Amount)
		return nil
	})
}

// InvestmentsByInvestor returns the investor's investments in booking order.
func (s *Store) InvestmentsByInvestor(ctx context.Context, investorID uint64) ([]domain.Investment, error) {
	var out []domain.Investment
	err := s.run(ctx, "investments_by_investor", func() error {
		out = slices.Clone(s.ledger.byInvestor[investorID])
		return nil
	})
	return out, err
}

// InvestmentsByFarm returns the farm's investments in booking order.
func (s *Store) InvestmentsByFarm(ctx context.Context, farmID uint64) ([]domain.Investment, error) {
	var out []domain.Investment
	err := s.run(ctx, "investments_by_farm", func() error {
		out = slices.Clone(s.ledger.byFarm[farmID])
		return nil
	})
	return out, err
}

func sumAmounts(invs []domain.Investment, match func(domain.Investment) bool) float64 {
	var total float64
	for _, inv := range invs {
		if match(inv) {
			total += inv.Amount
		}
	}
	return total
}

func anyInvestment(domain.Investment) bool { return true }

// TotalInvestmentsByFarm sums every investment booked against a farm.
func (s *Store) TotalInvestmentsByFarm(ctx context.Context, farmID uint64) (float64, error) {
	var total float64
	err := s.run(ctx, "total_investments_by_farm", func() error {
		total = sumAmounts(s.ledger.byFarm[farmID], anyInvestment)
		return nil
	})
	return total, err
}

// TotalByInvestor sums every investment an investor has made.
func (s *Store) TotalByInvestor(ctx context.Context, investorID uint64) (float64, error) {
	var total float64
	err := s.run(ctx, "total_by_investor", func() error {
		total = sumAmounts(s.ledger.byInvestor[investorID], anyInvestment)
		return nil
	})
	return total, err
}

// TotalByInvestorOnFarm sums one investor's investments in one farm.
func (s *Store) TotalByInvestorOnFarm(ctx context.Context, investorID, farmID uint64) (float64, error) {
	var total float64
	err := s.run(ctx, "total_by_investor_on_farm", func() error {
		total = sumAmounts(s.ledger.byFarm[farmID], func(inv domain.Investment) bool { return inv.InvestorID == investorID })
		return nil
	})
	return total, err
}

// StoreTransactionFee retains fee for txHash. Each hash is stored once.
func (s *Store) StoreTransactionFee(ctx context.Context, txHash string, fee float64) error {
	return s.run(ctx, "store_transaction_fee", func() error {
		if strings.TrimSpace(txHash) == "" {
			return &domain.ValidationError{Entity: "transaction_fee", Fields: []string{"tx_hash"}}
		}
		if _, ok := s.ledger.fees[txHash]; ok {
			return &domain.StateGuardViolation{Entity: "transaction_fee", Reason: fmt.Sprintf("fee for %s already stored", txHash)}
		}
		s.ledger.fees[txHash] = fee
		return nil
	})
}

// TransactionFees lists retained fees ordered by transaction hash.
func (s *Store) TransactionFees(ctx context.Context) ([]domain.TransactionFee, error) {
	var out []domain.TransactionFee
	err := s.run(ctx, "transaction_fees", func() error {
		for _, h := range slices.Sorted(maps.Keys(s.ledger.fees)) {
			out = append(out, domain.TransactionFee{TxHash: h, Fee: s.ledger.fees[h]})
		}
		return nil
	})
	return out, err
}

// ApproveSpender lets spender move funds on behalf of owner.
func (s *Store) ApproveSpender(ctx context.Context, owner, spender domain.Identity) error {
	return s.run(ctx, "approve_spender", func() error {
		if owner == domain.Anonymous || spender == domain.Anonymous {
			return &domain.ValidationError{Entity: "spender_approval", Fields: []string{"identity"}}
		}
		if slices.Contains(s.ledger.spenders[owner], spender) {
			return &domain.StateGuardViolation{Entity: "spender_approval", Reason: fmt.Sprintf("%s already approved for %s", spender, owner)}
		}
		s.ledger.spenders[owner] = append(s.ledger.spenders[owner], spender)
		return nil
	})
}

// IsSpenderApproved reports whether owner has approved spender.
func (s *Store) IsSpenderApproved(ctx context.Context, owner, spender domain.Identity) (bool, error) {
	var ok bool
	err := s.run(ctx, "is_spender_approved", func() error {
		ok = slices.Contains(s.ledger.spenders[owner], spender)
		return nil
	})
	return ok, err
}
