package dag

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"tangle-node/logger"
	"tangle-node/metrics"
	"tangle-node/models"
)

// ConfirmationPolicy decides whether a transaction's accumulated trust chain is enough for consensus
type ConfirmationPolicy interface {
	Confirmed(tx *models.Transaction) bool
}

// ScoreThreshold confirms once the trust chain score reaches the threshold
type ScoreThreshold float64

func (t ScoreThreshold) Confirmed(tx *models.Transaction) bool {
	score, _ := tx.TrustChain()
	return score >= float64(t)
}

// BalanceNotifier receives every confirmed transaction exactly once
type BalanceNotifier interface {
	NotifyConfirmed(hash models.Hash)
}

// TCCEngine runs trust chain consensus over the unconfirmed registry
type TCCEngine struct {
	registry *Registry
	policy   ConfirmationPolicy
	notifier BalanceNotifier
	delay    time.Duration
	metrics  *metrics.Metrics

	wake   chan struct{}
	cycles atomic.Uint64
}

func NewTCCEngine(registry *Registry, policy ConfirmationPolicy, notifier BalanceNotifier, delay time.Duration, m *metrics.Metrics) *TCCEngine {
	if m == nil {
		m = metrics.NewMetrics("tcc")
	}
	return &TCCEngine{
		registry: registry,
		policy:   policy,
		notifier: notifier,
		delay:    delay,
		metrics:  m,
		wake:     make(chan struct{}, 1),
	}
}

// Cycles is the number of completed cycles
func (e *TCCEngine) Cycles() uint64 {
	return e.cycles.Load()
}

// Wake cuts the current inter-cycle wait short
func (e *TCCEngine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run repeats RunCycle with the configured delay in between until ctx is done
func (e *TCCEngine) Run(ctx context.Context) {
	logger.Logger.Info("trust chain consensus process started", zap.Duration("delay", e.delay))
	for {
		if _, err := e.RunCycle(); err != nil {
			logger.Logger.Error("trust chain consensus cycle aborted", zap.Error(err))
		}
		err := e.wait(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrInterruptedWait):
			logger.Logger.Debug("proceeding with next cycle", zap.Error(err))
		default:
			logger.Logger.Info("trust chain consensus process stopped", zap.Uint64("cycles", e.Cycles()))
			return
		}
	}
}

func (e *TCCEngine) wait(ctx context.Context) error {
	timer := time.NewTimer(e.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.wake:
		return ErrInterruptedWait
	case <-timer.C:
		return nil
	}
}

// RunCycle takes a snapshot of the registry, orders it, scores and confirms, and
// drains the confirmed transactions. Returns the drained hashes, ancestors first.
func (e *TCCEngine) RunCycle() ([]models.Hash, error) {
	start := time.Now()

	snapshot := e.registry.Snapshot()
	order, err := TopologicalOrder(snapshot)
	if err != nil {
		e.metrics.TCCCycleFaults.Inc()
		return nil, err
	}
	confirmed := e.scoreAndConfirm(snapshot, childrenOf(snapshot), order)
	drained := e.drain(confirmed)

	e.cycles.Inc()
	e.metrics.TCCCyclesTotal.Inc()
	e.metrics.TCCCycleDuration.Observe(time.Since(start).Seconds())
	e.metrics.UnconfirmedSize.Set(float64(e.registry.Len()))
	if len(drained) > 0 {
		logger.Logger.Debug("trust chain consensus cycle done",
			zap.Int("snapshot", len(snapshot)),
			zap.Int("confirmed", len(drained)),
			zap.Duration("took", time.Since(start)))
	}
	return drained, nil
}

type trustChain struct {
	score  float64
	hashes []models.Hash
}

// childrenOf inverts the parent references inside the snapshot. Parents are fixed
// before a transaction is registered, unlike the children lists of live transactions.
func childrenOf(snapshot map[models.Hash]*models.Transaction) map[models.Hash][]models.Hash {
	ret := make(map[models.Hash][]models.Hash, len(snapshot))
	for hash, tx := range snapshot {
		for _, parent := range tx.Parents() {
			if _, ok := snapshot[parent]; ok && parent != hash {
				ret[parent] = append(ret[parent], hash)
			}
		}
	}
	return ret
}

// scoreAndConfirm walks the order backwards, so every child in the snapshot is
// scored before its parents. A transaction's chain is its own sender trust score
// plus the heaviest chain among its children.
func (e *TCCEngine) scoreAndConfirm(snapshot map[models.Hash]*models.Transaction, children map[models.Hash][]models.Hash, order []models.Hash) []models.Hash {
	chains := make(map[models.Hash]trustChain, len(order))
	now := time.Now().UTC()
	var confirmed []models.Hash

	for i := len(order) - 1; i >= 0; i-- {
		hash := order[i]
		tx := snapshot[hash]

		own := trustChain{score: tx.SenderTrustScore}
		var best *trustChain
		var bestHash models.Hash
		for _, child := range children[hash] {
			c, ok := chains[child]
			if !ok {
				continue
			}
			if best == nil || c.score > best.score || (c.score == best.score && child.Less(bestHash)) {
				best, bestHash = &c, child
			}
		}
		if best != nil {
			own.score += best.score
			own.hashes = append(slices.Clone(best.hashes), bestHash)
		}
		chains[hash] = own

		tx.UpdateTrustChain(own.score, own.hashes)
		if tx.Consensus() {
			continue
		}
		if e.policy.Confirmed(tx) && tx.MarkConsensus(now) {
			confirmed = append(confirmed, hash)
		}
	}
	slices.Reverse(confirmed)
	return confirmed
}

func (e *TCCEngine) drain(confirmed []models.Hash) []models.Hash {
	drained := make([]models.Hash, 0, len(confirmed))
	for _, hash := range confirmed {
		if !e.registry.Remove(hash) {
			continue
		}
		e.notifier.NotifyConfirmed(hash)
		e.metrics.ConfirmedTotal.Inc()
		drained = append(drained, hash)
		logger.Logger.Info("TCC has been reached for transaction", zap.Stringer("hash", hash))
	}
	return drained
}
