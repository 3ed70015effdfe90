package models

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"
)

const (
	MinTrustScore = 0
	MaxTrustScore = 100
)

var ErrInvalidTrustScore = errors.New("sender trust score out of range [0,100]")

// Transaction is a vertex of the DAG. Once a transaction is attached it is shared
// between the registry, the consensus engine and readers, so the mutable trust
// chain state is only touched through the methods below.
type Transaction struct {
	Hash                        Hash       `json:"hash"`
	SenderTrustScore            float64    `json:"sender_trust_score"`
	SenderHash                  *Hash      `json:"sender_hash,omitempty"`
	Description                 string     `json:"description,omitempty"`
	IsGenesis                   bool       `json:"is_genesis"`
	LeftParentHash              *Hash      `json:"left_parent_hash,omitempty"`
	RightParentHash             *Hash      `json:"right_parent_hash,omitempty"`
	ChildrenTransactions        []Hash     `json:"children_transactions"`
	TrustChainTransactionHashes []Hash     `json:"trust_chain_transaction_hashes"`
	TrustChainTrustScore        float64    `json:"trust_chain_trust_score"`
	TrustChainConsensus         bool       `json:"trust_chain_consensus"`
	CreateTime                  time.Time  `json:"create_time"`
	AttachmentTime              *time.Time `json:"attachment_time,omitempty"`
	ConsensusUpdateTime         *time.Time `json:"consensus_update_time,omitempty"`

	mu sync.RWMutex
}

// NewTransaction creates an unattached transaction
func NewTransaction(hash Hash, senderTrustScore float64, description string) *Transaction {
	return &Transaction{
		Hash:             hash,
		SenderTrustScore: senderTrustScore,
		Description:      description,
		CreateTime:       time.Now().UTC(),
	}
}

// ValidateTrustScore rejects scores which cannot be mapped onto a tip pool bucket
func ValidateTrustScore(score float64) error {
	if math.IsNaN(score) || score < MinTrustScore || score > MaxTrustScore {
		return fmt.Errorf("%w: %v", ErrInvalidTrustScore, score)
	}
	return nil
}

func (t *Transaction) ValidateTrustScore() error {
	return ValidateTrustScore(t.SenderTrustScore)
}

// RoundTrustScore maps a validated trust score onto its tip pool bucket
func RoundTrustScore(score float64) int {
	return int(math.Round(score))
}

// RoundedSenderTrustScore is the tip pool bucket key
func (t *Transaction) RoundedSenderTrustScore() int {
	return RoundTrustScore(t.SenderTrustScore)
}

func (t *Transaction) SetParents(left, right *Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.LeftParentHash = left
	t.RightParentHash = right
}

// Parents returns the non-nil parent hashes, left first
func (t *Transaction) Parents() []Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ret := make([]Hash, 0, 2)
	if t.LeftParentHash != nil {
		ret = append(ret, *t.LeftParentHash)
	}
	if t.RightParentHash != nil {
		ret = append(ret, *t.RightParentHash)
	}
	return ret
}

func (t *Transaction) HasSources() bool {
	return len(t.Parents()) > 0
}

func (t *Transaction) AddChild(child Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if slices.Contains(t.ChildrenTransactions, child) {
		return
	}
	t.ChildrenTransactions = append(t.ChildrenTransactions, child)
}

func (t *Transaction) Children() []Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Clone(t.ChildrenTransactions)
}

// IsSource is true while nothing has attached to the transaction
func (t *Transaction) IsSource() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.ChildrenTransactions) == 0
}

// UpdateTrustChain raises the trust chain score and merges the chain hashes.
// A lower score than the recorded one is ignored, the chain set only grows.
// Returns true if anything changed.
func (t *Transaction) UpdateTrustChain(score float64, chain []Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.TrustChainConsensus {
		return false
	}
	changed := false
	if score > t.TrustChainTrustScore {
		t.TrustChainTrustScore = score
		changed = true
	}
	for _, h := range chain {
		if !slices.Contains(t.TrustChainTransactionHashes, h) {
			t.TrustChainTransactionHashes = append(t.TrustChainTransactionHashes, h)
			changed = true
		}
	}
	return changed
}

func (t *Transaction) TrustChain() (float64, []Hash) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.TrustChainTrustScore, slices.Clone(t.TrustChainTransactionHashes)
}

// MarkConsensus flips the consensus flag. Only the first call returns true.
func (t *Transaction) MarkConsensus(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.TrustChainConsensus {
		return false
	}
	t.TrustChainConsensus = true
	t.ConsensusUpdateTime = &at
	return true
}

func (t *Transaction) Consensus() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.TrustChainConsensus
}

func (t *Transaction) SetAttachmentTime(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.AttachmentTime = &at
}

// Clone returns a detached copy, safe to serialize while the live one keeps changing
func (t *Transaction) Clone() *Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Transaction{
		Hash:                        t.Hash,
		SenderTrustScore:            t.SenderTrustScore,
		SenderHash:                  clonePtr(t.SenderHash),
		Description:                 t.Description,
		IsGenesis:                   t.IsGenesis,
		LeftParentHash:              clonePtr(t.LeftParentHash),
		RightParentHash:             clonePtr(t.RightParentHash),
		ChildrenTransactions:        slices.Clone(t.ChildrenTransactions),
		TrustChainTransactionHashes: slices.Clone(t.TrustChainTransactionHashes),
		TrustChainTrustScore:        t.TrustChainTrustScore,
		TrustChainConsensus:         t.TrustChainConsensus,
		CreateTime:                  t.CreateTime,
		AttachmentTime:              clonePtr(t.AttachmentTime),
		ConsensusUpdateTime:         clonePtr(t.ConsensusUpdateTime),
	}
}

func (t *Transaction) String() string {
	return t.Hash.String()
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
