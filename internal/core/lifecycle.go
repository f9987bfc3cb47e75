package core

import (
	"context"
	"farmvault/pkg/domain"
	"fmt"
	"time"
)

// Loan lifecycle for producers:
//
//	Idle -> FundingOpen -> FundingExpired -> Disbursed -> Matured
//
// Only RequestLoan, InitiateLoan and SettleLoan write. Expiry and maturity are
// derived from the stored timestamps at query time and never persisted.

func guard(id uint64, reason string) error {
	return &domain.StateGuardViolation{Entity: domain.EntityProducer, ID: id, Reason: reason}
}

// RequestLoan opens a funding round for ask. The producer needs a credit score
// of at least ask and no active loan.
func (s *Store) RequestLoan(ctx context.Context, id uint64, ask uint64) error {
	return s.run(ctx, "request_loan", func() error {
		if ask == 0 {
			return &domain.ValidationError{Entity: domain.EntityProducer, Fields: []string{"loan_ask"}}
		}
		now := s.opts.clock.Now()
		window := s.opts.fundingWindow
		_, err := updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			if p.Loaned {
				return guard(id, "a loan is already active")
			}
			if p.CreditScore == nil {
				return guard(id, "no credit score on record")
			}
			if ask > *p.CreditScore {
				return guard(id, fmt.Sprintf("ask %d exceeds credit score %d", ask, *p.CreditScore))
			}
			p.CurrentLoanAsk = &ask
			p.FundingRoundStartTime = &now
			p.TimeForFundingRoundToExpire = &window
			p.LoanMaturity = nil
			return nil
		})
		if err == nil {
			s.opts.logger.Info("funding round opened", "producer", id, "ask", ask, "expires", now.Add(window))
		}
		return err
	})
}

// QueryFundingExpired reports whether the open funding round has run out.
func (s *Store) QueryFundingExpired(ctx context.Context, id uint64) (bool, error) {
	var expired bool
	err := s.run(ctx, "query_funding_expired", func() error {
		p, err := getRecord(s.producers, domain.EntityProducer, id)
		if err != nil {
			return err
		}
		deadline, ok := p.FundingDeadline()
		if !ok {
			return guard(id, "no funding round open")
		}
		expired = !s.opts.clock.Now().Before(deadline)
		return nil
	})
	return expired, err
}

// InitiateLoan disburses the loan and starts the maturity clock. Only the
// record's existence is checked. Calling it again on a disbursed loan restarts
// the maturity clock from now.
func (s *Store) InitiateLoan(ctx context.Context, id uint64) error {
	return s.run(ctx, "initiate_loan", func() error {
		now := s.opts.clock.Now()
		term := s.opts.loanTerm
		var restarted bool
		_, err := updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			restarted = p.Loaned
			p.FundingRoundStartTime = nil
			p.TimeForFundingRoundToExpire = nil
			p.LoanStartTime = &now
			p.LoanMaturity = &term
			p.Loaned = true
			return nil
		})
		if err == nil && restarted {
			s.opts.logger.Warn("loan timer restarted on active loan", "producer", id)
		}
		return err
	})
}

// QueryRemainingFundingTime returns whole seconds left in the funding round.
func (s *Store) QueryRemainingFundingTime(ctx context.Context, id uint64) (uint64, error) {
	var secs uint64
	err := s.run(ctx, "query_remaining_funding_time", func() error {
		p, err := getRecord(s.producers, domain.EntityProducer, id)
		if err != nil {
			return err
		}
		deadline, ok := p.FundingDeadline()
		if !ok {
			return guard(id, "no funding round open")
		}
		secs = domain.RemainingSeconds(s.opts.clock.Now(), deadline)
		return nil
	})
	return secs, err
}

// QueryRemainingMaturityTime returns whole seconds until the loan matures.
func (s *Store) QueryRemainingMaturityTime(ctx context.Context, id uint64) (uint64, error) {
	var secs uint64
	err := s.run(ctx, "query_remaining_maturity_time", func() error {
		p, err := getRecord(s.producers, domain.EntityProducer, id)
		if err != nil {
			return err
		}
		due, ok := p.MaturityDate()
		if !ok {
			return guard(id, "no loan disbursed")
		}
		secs = domain.RemainingSeconds(s.opts.clock.Now(), due)
		return nil
	})
	return secs, err
}

// QueryLoanMatured reports whether the disbursed loan has reached maturity.
func (s *Store) QueryLoanMatured(ctx context.Context, id uint64) (bool, error) {
	var matured bool
	err := s.run(ctx, "query_loan_matured", func() error {
		p, err := getRecord(s.producers, domain.EntityProducer, id)
		if err != nil {
			return err
		}
		due, ok := p.MaturityDate()
		if !ok {
			return guard(id, "no loan disbursed")
		}
		matured = !s.opts.clock.Now().Before(due)
		return nil
	})
	return matured, err
}

// LoanStage derives the producer's current lifecycle stage.
func (s *Store) LoanStage(ctx context.Context, id uint64) (domain.LoanStage, error) {
	var stage domain.LoanStage
	err := s.run(ctx, "loan_stage", func() error {
		p, err := getRecord(s.producers, domain.EntityProducer, id)
		if err != nil {
			return err
		}
		stage = p.LoanStage(s.opts.clock.Now())
		return nil
	})
	return stage, err
}

// SettleLoan closes a matured loan and returns the producer to Idle.
func (s *Store) SettleLoan(ctx context.Context, id uint64) error {
	return s.run(ctx, "settle_loan", func() error {
		now := s.opts.clock.Now()
		_, err := updateRecord(s.producers, domain.EntityProducer, id, func(p *domain.Producer) error {
			if p.LoanStage(now) != domain.StageMatured {
				return guard(id, "loan has not matured")
			}
			p.Loaned = false
			p.CurrentLoanAsk = nil
			p.LoanStartTime = nil
			p.LoanMaturity = nil
			return nil
		})
		return err
	})
}

// FundingWindow reports the configured funding round length.
func (s *Store) FundingWindow() time.Duration { return s.opts.fundingWindow }

// LoanTerm reports the configured loan term.
func (s *Store) LoanTerm() time.Duration { return s.opts.loanTerm }
