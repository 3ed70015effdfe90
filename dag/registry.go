package dag

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"tangle-node/models"
)

// Registry owns every transaction which has not reached trust chain consensus yet.
// A removed hash stays behind as a tombstone, so it cannot be inserted again.
type Registry struct {
	m         sync.Map // models.Hash -> *models.Transaction or tombstone
	size      atomic.Int64
	confirmed atomic.Int64
}

type tombstoneMarker struct{}

var tombstone any = tombstoneMarker{}

func NewRegistry() *Registry {
	return &Registry{}
}

// Insert registers the transaction, failing if the hash is present or was removed before
func (r *Registry) Insert(tx *models.Transaction) error {
	if v, loaded := r.m.LoadOrStore(tx.Hash, tx); loaded {
		if v == tombstone {
			return fmt.Errorf("%w: %s already reached consensus", ErrDuplicateAttachment, tx.Hash)
		}
		return fmt.Errorf("%w: %s", ErrDuplicateAttachment, tx.Hash)
	}
	r.size.Inc()
	return nil
}

func (r *Registry) Get(hash models.Hash) (*models.Transaction, bool) {
	v, ok := r.m.Load(hash)
	if !ok {
		return nil, false
	}
	tx, ok := v.(*models.Transaction)
	return tx, ok
}

// Remove replaces the entry with a tombstone. Only the call which actually removed
// it returns true.
func (r *Registry) Remove(hash models.Hash) bool {
	v, ok := r.m.Load(hash)
	if !ok || v == tombstone {
		return false
	}
	if !r.m.CompareAndSwap(hash, v, tombstone) {
		return false
	}
	r.size.Dec()
	r.confirmed.Inc()
	return true
}

// Removed reports whether the hash was held and then removed
func (r *Registry) Removed(hash models.Hash) bool {
	v, ok := r.m.Load(hash)
	return ok && v == tombstone
}

// Confirmed is the number of tombstones
func (r *Registry) Confirmed() int {
	return int(r.confirmed.Load())
}

func (r *Registry) Len() int {
	return int(r.size.Load())
}

// Snapshot copies the hash -> transaction mapping. The transactions themselves are shared.
func (r *Registry) Snapshot() map[models.Hash]*models.Transaction {
	ret := make(map[models.Hash]*models.Transaction, r.Len())
	r.m.Range(func(k, v any) bool {
		if tx, ok := v.(*models.Transaction); ok {
			ret[k.(models.Hash)] = tx
		}
		return true
	})
	return ret
}

func (r *Registry) Hashes() []models.Hash {
	ret := make([]models.Hash, 0, r.Len())
	r.m.Range(func(k, v any) bool {
		if v != tombstone {
			ret = append(ret, k.(models.Hash))
		}
		return true
	})
	return ret
}
