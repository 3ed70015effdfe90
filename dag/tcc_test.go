package dag

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"tangle-node/models"
)

func attachAll(t *testing.T, c *Cluster, txs ...*models.Transaction) {
	t.Helper()
	for _, tx := range txs {
		_, err := c.Attach(tx)
		require.NoError(t, err)
	}
}

func TestTCCScenario(t *testing.T) {
	env := newTestEnv(t, nil, 120)
	c := env.cluster

	g := newTx("G", 50)
	t1 := newTx("T1", 70, g)
	t2 := newTx("T2", 30, t1)
	attachAll(t, c, g, t1, t2)

	confirmed, err := c.TCC().RunCycle()
	require.NoError(t, err)
	require.Equal(t, []models.Hash{g.Hash}, confirmed)
	require.ElementsMatch(t, []models.Hash{t1.Hash, t2.Hash}, c.Registry().Hashes())
	require.Equal(t, []models.Hash{g.Hash}, env.notifier.all())

	score, chain := g.TrustChain()
	require.EqualValues(t, 150, score)
	require.Equal(t, []models.Hash{t2.Hash, t1.Hash}, chain)
	require.True(t, g.Consensus())
	require.False(t, t1.Consensus())

	// a cycle without new attachments changes nothing
	confirmed, err = c.TCC().RunCycle()
	require.NoError(t, err)
	require.Empty(t, confirmed)
	require.Equal(t, []models.Hash{g.Hash}, env.notifier.all())

	// T3 lifts T2 to 120 and T1 to 190, ancestors are drained first
	t3 := newTx("T3", 90, t2)
	attachAll(t, c, t3)
	confirmed, err = c.TCC().RunCycle()
	require.NoError(t, err)
	require.Equal(t, []models.Hash{t1.Hash, t2.Hash}, confirmed)
	require.Equal(t, []models.Hash{g.Hash, t1.Hash, t2.Hash}, env.notifier.all())
	require.Equal(t, []models.Hash{t3.Hash}, c.Registry().Hashes())

	require.True(t, g.Consensus())
	require.True(t, t1.Consensus())
	require.EqualValues(t, 3, testutil.ToFloat64(env.metrics.ConfirmedTotal))
	require.EqualValues(t, 3, testutil.ToFloat64(env.metrics.TCCCyclesTotal))
	require.EqualValues(t, 3, env.cluster.TCC().Cycles())
}

func TestTCCHeaviestChildWins(t *testing.T) {
	env := newTestEnv(t, nil, 1000)
	c := env.cluster

	root := newTx("root", 10)
	light := newTx("light", 5, root)
	heavy := newTx("heavy", 40, root)
	tail := newTx("tail", 20, light)
	attachAll(t, c, root, light, heavy, tail)

	_, err := c.TCC().RunCycle()
	require.NoError(t, err)

	score, chain := root.TrustChain()
	require.EqualValues(t, 50, score)
	require.Equal(t, []models.Hash{heavy.Hash}, chain)

	score, _ = light.TrustChain()
	require.EqualValues(t, 25, score)
}

func TestTCCScoresAreMonotonic(t *testing.T) {
	env := newTestEnv(t, nil, 1000)
	c := env.cluster

	g := newTx("G", 10)
	attachAll(t, c, g)
	_, err := c.TCC().RunCycle()
	require.NoError(t, err)

	prev, _ := g.TrustChain()
	parent := g
	for i := 0; i < 10; i++ {
		child := newTx(fmt.Sprintf("c%d", i), 5, parent)
		attachAll(t, c, child)
		_, err := c.TCC().RunCycle()
		require.NoError(t, err)

		score, _ := g.TrustChain()
		require.GreaterOrEqual(t, score, prev)
		prev = score
		parent = child
	}
	require.EqualValues(t, 60, prev)
}

func TestTCCExactlyOnce(t *testing.T) {
	env := newTestEnv(t, nil, 50)
	c := env.cluster

	var all []*models.Transaction
	rnd := rand.New(rand.NewSource(3))
	for i := 0; i < 60; i++ {
		var parents []*models.Transaction
		if len(all) > 0 {
			parents = append(parents, all[rnd.Intn(len(all))])
		}
		tx := newTx(fmt.Sprintf("tx%d", i), float64(rnd.Intn(30)), parents...)
		// parents may have been confirmed and drained meanwhile
		env.store.put(tx)
		attachAll(t, c, tx)
		all = append(all, tx)
		if i%7 == 0 {
			_, err := c.TCC().RunCycle()
			require.NoError(t, err)
		}
	}
	for i := 0; i < 5; i++ {
		_, err := c.TCC().RunCycle()
		require.NoError(t, err)
	}

	seen := make(map[models.Hash]int)
	for _, h := range env.notifier.all() {
		seen[h]++
	}
	for h, n := range seen {
		require.Equal(t, 1, n, "notified %d times: %s", n, h.Short())
	}
	for _, tx := range all {
		_, inRegistry := c.Registry().Get(tx.Hash)
		require.NotEqual(t, tx.Consensus(), inRegistry, "consensus %v, registered %v: %s", tx.Consensus(), inRegistry, tx.Hash.Short())
		require.Equal(t, tx.Consensus(), seen[tx.Hash] == 1)
	}
}

func TestTCCCycleDetected(t *testing.T) {
	env := newTestEnv(t, nil, 1)
	c := env.cluster

	a := newTx("A", 50)
	b := newTx("B", 50, a)
	a.SetParents(&b.Hash, nil)
	require.NoError(t, c.Registry().Insert(a))
	require.NoError(t, c.Registry().Insert(b))

	confirmed, err := c.TCC().RunCycle()
	require.ErrorIs(t, err, ErrCycleDetected)
	require.Empty(t, confirmed)
	require.Empty(t, env.notifier.all())
	require.Equal(t, 2, c.Registry().Len())
	require.False(t, a.Consensus())
	require.EqualValues(t, 1, testutil.ToFloat64(env.metrics.TCCCycleFaults))
}

func TestTopologicalOrder(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	txs := make(map[models.Hash]*models.Transaction)
	var list []*models.Transaction
	for i := 0; i < 200; i++ {
		var parents []*models.Transaction
		for j := 0; j < 2 && len(list) > 0; j++ {
			parents = append(parents, list[rnd.Intn(len(list))])
		}
		tx := newTx(fmt.Sprintf("n%d", i), 1, parents...)
		txs[tx.Hash] = tx
		list = append(list, tx)
	}
	// a reference leaving the set is ignored
	outside := newTx("outside", 1)
	dangling := newTx("dangling", 1, outside)
	txs[dangling.Hash] = dangling

	order, err := TopologicalOrder(txs)
	require.NoError(t, err)
	require.Len(t, order, len(txs))

	pos := make(map[models.Hash]int, len(order))
	for i, h := range order {
		pos[h] = i
	}
	for h, tx := range txs {
		for _, p := range tx.Parents() {
			if _, ok := txs[p]; !ok {
				continue
			}
			require.Less(t, pos[p], pos[h])
		}
	}

	again, err := TopologicalOrder(txs)
	require.NoError(t, err)
	require.Equal(t, order, again)
}

func TestTopologicalOrderSelfLoop(t *testing.T) {
	a := newTx("A", 1)
	a.SetParents(&a.Hash, nil)
	_, err := TopologicalOrder(map[models.Hash]*models.Transaction{a.Hash: a})
	require.ErrorIs(t, err, ErrCycleDetected)
}

func TestTCCConfirmedHashCannotBeAttachedAgain(t *testing.T) {
	env := newTestEnv(t, nil, 40)
	c := env.cluster

	g := newTx("G", 50)
	attachAll(t, c, g)
	confirmed, err := c.TCC().RunCycle()
	require.NoError(t, err)
	require.Equal(t, []models.Hash{g.Hash}, confirmed)
	require.True(t, c.Registry().Removed(g.Hash))

	_, err = c.Attach(newTx("G", 50))
	require.ErrorIs(t, err, ErrDuplicateAttachment)

	confirmed, err = c.TCC().RunCycle()
	require.NoError(t, err)
	require.Empty(t, confirmed)
	require.Equal(t, []models.Hash{g.Hash}, env.notifier.all())
	require.Equal(t, 0, c.Registry().Len())
	require.Equal(t, 1, c.Registry().Confirmed())
	require.EqualValues(t, 1, testutil.ToFloat64(env.metrics.AttachFailures.WithLabelValues("duplicate")))
}

func TestTCCStoredConsensusCannotBeAttachedAgain(t *testing.T) {
	env := newTestEnv(t, nil, 1000)

	old := newTx("old", 50)
	require.True(t, old.MarkConsensus(time.Now()))
	env.store.put(old)

	_, err := env.cluster.Attach(newTx("old", 50))
	require.ErrorIs(t, err, ErrDuplicateAttachment)
	require.Equal(t, 0, env.cluster.Registry().Len())
	require.Equal(t, 0, env.cluster.TipPool().Len())
}

func TestTCCScoresChildrenNotYetLinked(t *testing.T) {
	env := newTestEnv(t, nil, 1000)
	c := env.cluster

	// registered, but the parent's children list was not updated yet
	p := newTx("P", 10)
	child := newTx("C", 30, p)
	require.NoError(t, c.Registry().Insert(p))
	require.NoError(t, c.Registry().Insert(child))
	require.Empty(t, p.Children())

	_, err := c.TCC().RunCycle()
	require.NoError(t, err)

	score, chain := p.TrustChain()
	require.EqualValues(t, 40, score)
	require.Equal(t, []models.Hash{child.Hash}, chain)
}
