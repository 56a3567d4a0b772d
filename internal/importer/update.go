package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/normalize"
)

// TransactionUpdate carries review-time edits. Nil fields are left unchanged.
// Reject is exclusive with field edits.
type TransactionUpdate struct {
	Amount      *float64
	Date        *time.Time
	Description *string
	Merchant    *string
	Reject      bool
}

// UpdateTransaction applies a review edit or rejection to a PENDING
// transaction. Edits that touch amount, date or merchant re-derive the
// merchant key and dedup hash so later imports dedupe against the corrected
// values. Transactions in any other state are refused.
func (s *Service) UpdateTransaction(ctx context.Context, userID, txID string, update TransactionUpdate) (*domain.ParsedTransaction, error) {
	tx, err := s.repo.GetTransaction(ctx, userID, txID)
	if err != nil {
		return nil, fmt.Errorf("UpdateTransaction: %w", err)
	}
	if tx.Status != domain.TxPending {
		return nil, fmt.Errorf("UpdateTransaction: %s is %s: %w", txID, tx.Status, domain.ErrAlreadyProcessed)
	}

	if update.Reject {
		tx.Status = domain.TxRejected
		tx.UpdatedAt = s.now()
		if err := s.repo.UpdateTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("UpdateTransaction: %w", err)
		}
		s.bumpRejected(ctx, userID, tx.JobID)
		return tx, nil
	}

	if update.Amount != nil {
		if *update.Amount == 0 {
			return nil, fmt.Errorf("UpdateTransaction: zero amount: %w", domain.ErrConfirmation)
		}
		tx.Amount = *update.Amount
	}
	if update.Date != nil {
		tx.Date = *update.Date
	}
	if update.Description != nil {
		tx.Description = *update.Description
	}
	if update.Merchant != nil {
		tx.RawMerchant = *update.Merchant
	}

	tx.MerchantKey = s.rules.MerchantKey(tx.RawMerchant)
	tx.DedupHash = normalize.DedupHash(tx.Date, tx.Amount, tx.MerchantKey)
	tx.UpdatedAt = s.now()

	if err := s.repo.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("UpdateTransaction: %w", err)
	}
	return tx, nil
}

func (s *Service) bumpRejected(ctx context.Context, userID, jobID string) {
	job, err := s.repo.GetJob(ctx, userID, jobID)
	if err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("bumping rejected counter")
		return
	}
	job.Rejected++
	job.UpdatedAt = s.now()
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("bumping rejected counter")
	}
}
