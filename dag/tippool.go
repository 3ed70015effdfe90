package dag

import (
	"fmt"
	"slices"
	"sync"

	"tangle-node/models"
)

// NumTrustScoreBuckets covers rounded trust scores 0..100 inclusive
const NumTrustScoreBuckets = models.MaxTrustScore + 1

// Tip is a pool entry: a non-owning reference to an attachable transaction
type Tip struct {
	Hash             models.Hash
	SenderTrustScore float64
}

func TipOf(tx *models.Transaction) Tip {
	return Tip{Hash: tx.Hash, SenderTrustScore: tx.SenderTrustScore}
}

func (t Tip) Bucket() int {
	return models.RoundTrustScore(t.SenderTrustScore)
}

// TipSnapshot is an independent copy of every bucket taken at one point in time
type TipSnapshot [NumTrustScoreBuckets][]Tip

func (s *TipSnapshot) Len() int {
	ret := 0
	for i := range s {
		ret += len(s[i])
	}
	return ret
}

// TipPool keeps the current tips bucketed by rounded sender trust score.
// A single lock covers all buckets, so a snapshot never sees a half-applied attachment.
type TipPool struct {
	mutex   sync.RWMutex
	buckets [NumTrustScoreBuckets][]Tip
	size    int
}

func NewTipPool() *TipPool {
	return &TipPool{}
}

func checkBucket(tip Tip) (int, error) {
	if err := models.ValidateTrustScore(tip.SenderTrustScore); err != nil {
		return 0, fmt.Errorf("tip %s: %w", tip.Hash.Short(), err)
	}
	return tip.Bucket(), nil
}

func (p *TipPool) Add(tip Tip) error {
	return p.Apply(nil, &tip, nil)
}

func (p *TipPool) Remove(tip Tip) error {
	return p.Apply([]Tip{tip}, nil, nil)
}

// Apply removes the given tips and then adds one, as a single step with respect to
// other mutations and snapshots. Removal of an absent tip is a no-op. All indices are
// validated before anything changes.
// The optional guard runs under the pool lock before the buckets are touched; if it
// fails the pool is left as it was.
func (p *TipPool) Apply(remove []Tip, add *Tip, guard func() error) error {
	removeIdx := make([]int, len(remove))
	for i, tip := range remove {
		idx, err := checkBucket(tip)
		if err != nil {
			return err
		}
		removeIdx[i] = idx
	}
	addIdx := -1
	if add != nil {
		idx, err := checkBucket(*add)
		if err != nil {
			return err
		}
		addIdx = idx
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if guard != nil {
		if err := guard(); err != nil {
			return err
		}
	}
	for i, tip := range remove {
		p.removeNoLock(removeIdx[i], tip.Hash)
	}
	if addIdx >= 0 && !p.containsNoLock(addIdx, add.Hash) {
		p.buckets[addIdx] = append(p.buckets[addIdx], *add)
		p.size++
	}
	return nil
}

func (p *TipPool) removeNoLock(idx int, hash models.Hash) {
	bucket := p.buckets[idx]
	i := slices.IndexFunc(bucket, func(t Tip) bool { return t.Hash == hash })
	if i < 0 {
		return
	}
	p.buckets[idx] = slices.Delete(bucket, i, i+1)
	p.size--
}

func (p *TipPool) containsNoLock(idx int, hash models.Hash) bool {
	return slices.ContainsFunc(p.buckets[idx], func(t Tip) bool { return t.Hash == hash })
}

// Contains reports whether the hash is a tip in the given bucket
func (p *TipPool) Contains(bucket int, hash models.Hash) bool {
	if bucket < 0 || bucket >= NumTrustScoreBuckets {
		return false
	}
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.containsNoLock(bucket, hash)
}

// BucketOf returns the bucket holding the hash, or -1
func (p *TipPool) BucketOf(hash models.Hash) int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	for i := range p.buckets {
		if p.containsNoLock(i, hash) {
			return i
		}
	}
	return -1
}

func (p *TipPool) Len() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.size
}

// Snapshot copies every bucket. Later pool mutations do not show in the copy.
func (p *TipPool) Snapshot() *TipSnapshot {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	ret := new(TipSnapshot)
	for i := range p.buckets {
		ret[i] = slices.Clone(p.buckets[i])
	}
	return ret
}
