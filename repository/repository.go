package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"tangle-node/db"
	"tangle-node/models"
)

var ErrNotFound = errors.New("transaction not found")

var transactionPrefix = []byte("tx:")

// It abstracts the storage layer from the business logic
type TransactionRepositoryInterface interface {
	PutTransaction(tx *models.Transaction) error
	GetTransaction(hash models.Hash) (*models.Transaction, error)
	DeleteTransaction(hash models.Hash) error
	GetAllTransactions() ([]*models.Transaction, error)
	UnconfirmedHashes() ([]models.Hash, error)
}

// TransactionRepository implements TransactionRepositoryInterface on top of a key-value backend
type TransactionRepository struct {
	db db.KVStore
}

// NewTransactionRepository creates and returns a new TransactionRepository instance
func NewTransactionRepository(store db.KVStore) *TransactionRepository {
	return &TransactionRepository{db: store}
}

func transactionKey(hash models.Hash) []byte {
	return append(append([]byte(nil), transactionPrefix...), hash[:]...)
}

// PutTransaction stores a transaction record. The record is cloned first, so the
// caller may keep mutating the live transaction.
func (r *TransactionRepository) PutTransaction(tx *models.Transaction) error {
	data, err := json.Marshal(tx.Clone())
	if err != nil {
		return err
	}
	return r.db.Put(transactionKey(tx.Hash), data)
}

// GetTransaction retrieves a transaction by its hash
func (r *TransactionRepository) GetTransaction(hash models.Hash) (*models.Transaction, error) {
	data, err := r.db.Get(transactionKey(hash))
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	tx := new(models.Transaction)
	if err := json.Unmarshal(data, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// DeleteTransaction removes a transaction record
func (r *TransactionRepository) DeleteTransaction(hash models.Hash) error {
	return r.db.Delete(transactionKey(hash))
}

// GetAllTransactions retrieves all transaction records
func (r *TransactionRepository) GetAllTransactions() ([]*models.Transaction, error) {
	var txs []*models.Transaction
	var decodeErr error
	err := r.db.Iterate(transactionPrefix, func(_, value []byte) bool {
		tx := new(models.Transaction)
		if decodeErr = json.Unmarshal(value, tx); decodeErr != nil {
			return false
		}
		txs = append(txs, tx)
		return true
	})
	if err != nil {
		return nil, err
	}
	return txs, decodeErr
}

// UnconfirmedHashes lists the transactions which have not reached trust chain consensus.
// The node seeds its cluster from it at startup.
func (r *TransactionRepository) UnconfirmedHashes() ([]models.Hash, error) {
	txs, err := r.GetAllTransactions()
	if err != nil {
		return nil, err
	}
	ret := make([]models.Hash, 0, len(txs))
	for _, tx := range txs {
		if !tx.TrustChainConsensus {
			ret = append(ret, tx.Hash)
		}
	}
	return ret, nil
}
