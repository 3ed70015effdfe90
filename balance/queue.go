package balance

import (
	"sync"

	"github.com/gammazero/deque"
	"go.uber.org/zap"

	"tangle-node/logger"
	"tangle-node/metrics"
	"tangle-node/models"
)

// Settler applies a confirmed transaction to the balances
type Settler interface {
	Settle(hash models.Hash) error
}

type SettlerFunc func(hash models.Hash) error

func (f SettlerFunc) Settle(hash models.Hash) error {
	return f(hash)
}

// UpdateQueue buffers confirmed transactions and hands them to the settler one by
// one, in confirmation order. NotifyConfirmed never blocks the consensus loop.
type UpdateQueue struct {
	settler Settler
	metrics *metrics.Metrics

	mutex   sync.Mutex
	cond    *sync.Cond
	pending *deque.Deque[models.Hash]
	closing bool
	done    chan struct{}
}

func NewUpdateQueue(settler Settler, m *metrics.Metrics) *UpdateQueue {
	if m == nil {
		m = metrics.NewMetrics("tcc")
	}
	q := &UpdateQueue{
		settler: settler,
		metrics: m,
		pending: new(deque.Deque[models.Hash]),
		done:    make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mutex)
	go q.consumeLoop()
	return q
}

// NotifyConfirmed enqueues a hash for settlement. Ignored after Close.
func (q *UpdateQueue) NotifyConfirmed(hash models.Hash) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closing {
		logger.Logger.Warn("balance update queue closed, dropping confirmed transaction", zap.Stringer("hash", hash))
		return
	}
	q.pending.PushBack(hash)
	q.metrics.BalanceQueueDepth.Set(float64(q.pending.Len()))
	q.cond.Signal()
}

func (q *UpdateQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.pending.Len()
}

// Close stops accepting hashes, settles what is already queued and waits for the consumer
func (q *UpdateQueue) Close() {
	q.mutex.Lock()
	if !q.closing {
		q.closing = true
		q.cond.Broadcast()
	}
	q.mutex.Unlock()
	<-q.done
}

func (q *UpdateQueue) consumeLoop() {
	defer close(q.done)

	for {
		q.mutex.Lock()
		for q.pending.Len() == 0 && !q.closing {
			q.cond.Wait()
		}
		if q.pending.Len() == 0 {
			q.mutex.Unlock()
			return
		}
		hash := q.pending.PopFront()
		q.metrics.BalanceQueueDepth.Set(float64(q.pending.Len()))
		q.mutex.Unlock()

		if err := q.settler.Settle(hash); err != nil {
			logger.Logger.Error("balance update failed", zap.Stringer("hash", hash), zap.Error(err))
		}
	}
}
