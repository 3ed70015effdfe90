package dag

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"tangle-node/metrics"
	"tangle-node/models"
)

var errNotFound = errors.New("not found")

type mockStore struct {
	mu  sync.Mutex
	txs map[models.Hash]*models.Transaction
}

func newMockStore(txs ...*models.Transaction) *mockStore {
	m := &mockStore{txs: make(map[models.Hash]*models.Transaction)}
	for _, tx := range txs {
		m.put(tx)
	}
	return m
}

func (m *mockStore) put(tx *models.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.Hash] = tx.Clone()
}

func (m *mockStore) GetTransaction(hash models.Hash) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNotFound, hash)
	}
	// return a copy to simulate DB retrieval
	return tx.Clone(), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	hashes []models.Hash
}

func (r *recordingNotifier) NotifyConfirmed(hash models.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes = append(r.hashes, hash)
}

func (r *recordingNotifier) all() []models.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Hash(nil), r.hashes...)
}

type testEnv struct {
	cluster  *Cluster
	store    *mockStore
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

// newTestEnv builds a cluster ready for attachments but without the background
// consensus loop, so tests drive cycles with RunCycle
func newTestEnv(t *testing.T, selector SourceSelector, threshold float64) *testEnv {
	t.Helper()
	if selector == nil {
		selector = NewNeighbourhoodSelectorWithRand(0.1, 100, rand.New(rand.NewSource(1)))
	}
	env := &testEnv{
		store:    newMockStore(),
		notifier: &recordingNotifier{},
		metrics:  metrics.NewMetrics("test"),
	}
	env.cluster = NewCluster(env.store, selector, env.notifier, ScoreThreshold(threshold), time.Hour, env.metrics)
	env.cluster.started = true
	env.cluster.ready.Store(true)
	return env
}

func newTx(name string, score float64, parents ...*models.Transaction) *models.Transaction {
	tx := models.NewTransaction(models.HashOf([]byte(name)), score, name)
	var left, right *models.Hash
	if len(parents) > 0 {
		left = &parents[0].Hash
	}
	if len(parents) > 1 {
		right = &parents[1].Hash
	}
	tx.SetParents(left, right)
	return tx
}

// pickSources always returns the given tips, if they are in the snapshot
func pickSources(want ...models.Hash) SourceSelector {
	return SelectorFunc(func(snapshot *TipSnapshot, _ float64) []Tip {
		var ret []Tip
		for _, h := range want {
			for i := range snapshot {
				for _, tip := range snapshot[i] {
					if tip.Hash == h {
						ret = append(ret, tip)
					}
				}
			}
		}
		return ret
	})
}
