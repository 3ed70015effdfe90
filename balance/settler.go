package balance

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"tangle-node/logger"
	"tangle-node/models"
)

type TransactionRepository interface {
	GetTransaction(hash models.Hash) (*models.Transaction, error)
	PutTransaction(tx *models.Transaction) error
}

// RepositorySettler records consensus on the stored transaction, which takes it out
// of the unconfirmed set loaded at the next startup
type RepositorySettler struct {
	repo TransactionRepository
}

func NewRepositorySettler(repo TransactionRepository) *RepositorySettler {
	return &RepositorySettler{repo: repo}
}

func (s *RepositorySettler) Settle(hash models.Hash) error {
	tx, err := s.repo.GetTransaction(hash)
	if err != nil {
		return fmt.Errorf("settling %s: %w", hash, err)
	}
	if !tx.MarkConsensus(time.Now().UTC()) {
		// already settled, redelivery is harmless
		return nil
	}
	if err := s.repo.PutTransaction(tx); err != nil {
		return fmt.Errorf("settling %s: %w", hash, err)
	}
	logger.Logger.Debug("balance updated", zap.Stringer("hash", hash))
	return nil
}
