package dag

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"

	"tangle-node/models"
)

func hashOf(h models.Hash) models.Hash { return h }

// TopologicalOrder orders the given transactions ancestors first: for every
// child -> parent reference inside the set the parent precedes the child.
// References leaving the set are ignored. Ties are broken by hash, so the
// order is deterministic.
func TopologicalOrder(txs map[models.Hash]*models.Transaction) ([]models.Hash, error) {
	g := graph.New(hashOf, graph.Directed())
	for h := range txs {
		if err := g.AddVertex(h); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, err
		}
	}
	for h, tx := range txs {
		for _, parent := range tx.Parents() {
			if _, ok := txs[parent]; !ok {
				continue
			}
			if parent == h {
				return nil, fmt.Errorf("%w: %s references itself", ErrCycleDetected, h)
			}
			err := g.AddEdge(parent, h)
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, err
			}
		}
	}
	order, err := graph.StableTopologicalSort(g, func(a, b models.Hash) bool { return a.Less(b) })
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycleDetected, err)
	}
	if len(order) != len(txs) {
		return nil, fmt.Errorf("%w: %d of %d transactions ordered", ErrCycleDetected, len(order), len(txs))
	}
	return order, nil
}
