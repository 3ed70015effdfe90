package dag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"tangle-node/logger"
	"tangle-node/metrics"
	"tangle-node/models"
)

// TransactionStore resolves transactions which are not, or no longer, in memory
type TransactionStore interface {
	GetTransaction(hash models.Hash) (*models.Transaction, error)
}

// Cluster attaches transactions to the DAG. It owns the unconfirmed registry and
// the tip pool and drives the trust chain consensus loop.
type Cluster struct {
	store    TransactionStore
	selector SourceSelector
	registry *Registry
	tipPool  *TipPool
	tcc      *TCCEngine
	metrics  *metrics.Metrics

	initMutex sync.Mutex
	started   bool
	ready     atomic.Bool
	cancel    context.CancelFunc
	loopDone  sync.WaitGroup
}

func NewCluster(store TransactionStore, selector SourceSelector, notifier BalanceNotifier, policy ConfirmationPolicy, delay time.Duration, m *metrics.Metrics) *Cluster {
	if m == nil {
		m = metrics.NewMetrics("tcc")
	}
	registry := NewRegistry()
	return &Cluster{
		store:    store,
		selector: selector,
		registry: registry,
		tipPool:  NewTipPool(),
		tcc:      NewTCCEngine(registry, policy, notifier, delay, m),
		metrics:  m,
	}
}

func (c *Cluster) Registry() *Registry {
	return c.registry
}

func (c *Cluster) TipPool() *TipPool {
	return c.tipPool
}

func (c *Cluster) TCC() *TCCEngine {
	return c.tcc
}

// Initialize seeds the registry and the tip pool with the persisted unconfirmed
// transactions and starts the consensus loop. It may succeed only once.
func (c *Cluster) Initialize(ctx context.Context, unconfirmed []models.Hash) error {
	c.initMutex.Lock()
	defer c.initMutex.Unlock()

	if c.started {
		return ErrAlreadyInitialized
	}

	loaded := make(map[models.Hash]*models.Transaction, len(unconfirmed))
	ordered := make([]*models.Transaction, 0, len(unconfirmed))
	for _, hash := range unconfirmed {
		if _, ok := loaded[hash]; ok {
			continue
		}
		tx, err := c.store.GetTransaction(hash)
		if err != nil {
			return fmt.Errorf("loading unconfirmed transaction %s: %w", hash, err)
		}
		if err := tx.ValidateTrustScore(); err != nil {
			return fmt.Errorf("loading unconfirmed transaction %s: %w", hash, err)
		}
		loaded[hash] = tx
		ordered = append(ordered, tx)
	}
	// children links may be stale in the store
	for _, tx := range ordered {
		for _, parent := range tx.Parents() {
			if p, ok := loaded[parent]; ok {
				p.AddChild(tx.Hash)
			}
		}
	}
	for _, tx := range ordered {
		if err := c.registry.Insert(tx); err != nil {
			return err
		}
		if tx.IsSource() {
			if err := c.tipPool.Add(TipOf(tx)); err != nil {
				return err
			}
		}
	}
	c.updateGauges()
	logger.Logger.Info("cluster initialized",
		zap.Int("unconfirmed", c.registry.Len()),
		zap.Int("tips", c.tipPool.Len()))

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.loopDone.Add(1)
	go func() {
		defer c.loopDone.Done()
		c.tcc.Run(loopCtx)
	}()

	c.started = true
	c.ready.Store(true)
	return nil
}

// Close stops the consensus loop and waits for it to exit
func (c *Cluster) Close() {
	c.initMutex.Lock()
	defer c.initMutex.Unlock()

	c.ready.Store(false)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.loopDone.Wait()
}

// SelectSources chooses the parents of a not yet attached transaction from a
// snapshot of the tip pool and records them in the transaction
func (c *Cluster) SelectSources(tx *models.Transaction) (*models.Transaction, error) {
	if !c.ready.Load() {
		return nil, ErrNotInitialized
	}
	if err := tx.ValidateTrustScore(); err != nil {
		return nil, err
	}

	snapshot := c.tipPool.Snapshot()
	sources := c.selector.SelectSourcesForAttachment(snapshot, tx.SenderTrustScore)

	var left, right *models.Hash
	if len(sources) > 0 {
		left = &sources[0].Hash
	}
	if len(sources) > 1 && sources[1].Hash != sources[0].Hash {
		right = &sources[1].Hash
	}
	tx.SetParents(left, right)

	hashes := make([]string, 0, len(sources))
	for _, s := range sources {
		hashes = append(hashes, s.Hash.String())
	}
	logger.Logger.Info("selected sources",
		zap.Stringer("hash", tx.Hash),
		zap.String("sources", strings.Join(hashes, " ")))
	return tx, nil
}

type resolvedParent struct {
	tx   *models.Transaction
	live bool // unconfirmed and held by the registry
}

func (c *Cluster) resolveParent(hash models.Hash) (resolvedParent, error) {
	if tx, ok := c.registry.Get(hash); ok {
		return resolvedParent{tx: tx, live: true}, nil
	}
	tx, err := c.store.GetTransaction(hash)
	if err != nil {
		return resolvedParent{}, fmt.Errorf("%w: %s: %v", ErrUnresolvedParent, hash, err)
	}
	if err := tx.ValidateTrustScore(); err != nil {
		return resolvedParent{}, fmt.Errorf("%w: %s: %v", ErrUnresolvedParent, hash, err)
	}
	return resolvedParent{tx: tx}, nil
}

// Attach inserts the transaction into the DAG: it becomes unconfirmed, its parents
// stop being tips and it becomes a tip itself. Nothing changes if an error is returned.
func (c *Cluster) Attach(tx *models.Transaction) (*models.Transaction, error) {
	if !c.ready.Load() {
		return nil, ErrNotInitialized
	}
	if err := tx.ValidateTrustScore(); err != nil {
		c.metrics.AttachFailures.WithLabelValues("invalid_trust_score").Inc()
		return nil, err
	}

	if stored, err := c.store.GetTransaction(tx.Hash); err == nil && stored.Consensus() {
		c.metrics.AttachFailures.WithLabelValues("duplicate").Inc()
		return nil, fmt.Errorf("%w: %s already reached consensus", ErrDuplicateAttachment, tx.Hash)
	}

	parentHashes := tx.Parents()
	parents := make([]resolvedParent, 0, len(parentHashes))
	removals := make([]Tip, 0, len(parentHashes))
	for _, hash := range parentHashes {
		if hash == tx.Hash {
			c.metrics.AttachFailures.WithLabelValues("cycle").Inc()
			return nil, fmt.Errorf("%w: %s references itself", ErrCycleDetected, hash)
		}
		p, err := c.resolveParent(hash)
		if err != nil {
			c.metrics.AttachFailures.WithLabelValues("unresolved_parent").Inc()
			return nil, err
		}
		parents = append(parents, p)
		removals = append(removals, TipOf(p.tx))
	}

	self := TipOf(tx)
	err := c.tipPool.Apply(removals, &self, func() error {
		if err := c.registry.Insert(tx); err != nil {
			return err
		}
		tx.SetAttachmentTime(time.Now().UTC())
		for _, p := range parents {
			if p.live {
				p.tx.AddChild(tx.Hash)
			}
		}
		return nil
	})
	if err != nil {
		c.metrics.AttachFailures.WithLabelValues("duplicate").Inc()
		return nil, err
	}

	c.metrics.AttachedTotal.Inc()
	c.updateGauges()
	logger.Logger.Info("added transaction to cluster",
		zap.Stringer("hash", tx.Hash),
		zap.Int("bucket", tx.RoundedSenderTrustScore()),
		zap.Int("parents", len(parents)))
	return tx, nil
}

// Get looks a transaction up in memory first, then in the store
func (c *Cluster) Get(hash models.Hash) (*models.Transaction, error) {
	if tx, ok := c.registry.Get(hash); ok {
		return tx, nil
	}
	return c.store.GetTransaction(hash)
}

func (c *Cluster) updateGauges() {
	c.metrics.TipPoolSize.Set(float64(c.tipPool.Len()))
	c.metrics.UnconfirmedSize.Set(float64(c.registry.Len()))
}
