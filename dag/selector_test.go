package dag

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func snapshotOf(tips ...Tip) *TipSnapshot {
	s := new(TipSnapshot)
	for _, t := range tips {
		s[t.Bucket()] = append(s[t.Bucket()], t)
	}
	return s
}

func testSelector(pct float64, radius int) *NeighbourhoodSelector {
	return NewNeighbourhoodSelectorWithRand(pct, radius, rand.New(rand.NewSource(42)))
}

func TestNeighbourhoodSelectorEmpty(t *testing.T) {
	require.Empty(t, testSelector(0.1, 100).SelectSourcesForAttachment(new(TipSnapshot), 50))
}

func TestNeighbourhoodSelectorWidensRadius(t *testing.T) {
	far := tip("far", 0)
	got := testSelector(0.1, 100).SelectSourcesForAttachment(snapshotOf(far), 100)
	require.Equal(t, []Tip{far}, got)
}

func TestNeighbourhoodSelectorRadiusLimit(t *testing.T) {
	// bucket 55 is within radius 5 of 60, bucket 40 is not
	near, far := tip("near", 55), tip("far", 40)
	got := testSelector(0.1, 5).SelectSourcesForAttachment(snapshotOf(near, far), 60)
	require.Equal(t, []Tip{near}, got)
}

func TestNeighbourhoodSelectorFallsBackToNearestBucket(t *testing.T) {
	a, b, c := tip("a", 50), tip("b", 50), tip("c", 20)
	got := testSelector(0.1, 5).SelectSourcesForAttachment(snapshotOf(a, b, c), 60)
	require.ElementsMatch(t, []Tip{a, b}, got)

	// radius 0 with an empty own bucket
	got = testSelector(0.1, 0).SelectSourcesForAttachment(snapshotOf(c), 100)
	require.Equal(t, []Tip{c}, got)
}

func TestNeighbourhoodSelectorPrefersCloseScores(t *testing.T) {
	var tips []Tip
	for i := 0; i < 5; i++ {
		tips = append(tips, tip(fmt.Sprintf("low%d", i), 10), tip(fmt.Sprintf("high%d", i), 90))
	}
	snap := snapshotOf(tips...)
	for i := 0; i < 20; i++ {
		got := testSelector(0.1, 100).SelectSourcesForAttachment(snap, 88)
		require.Len(t, got, 2)
		require.NotEqual(t, got[0].Hash, got[1].Hash)
		for _, tip := range got {
			require.EqualValues(t, 90, tip.SenderTrustScore)
		}
	}
	// the snapshot is not reordered or mutated
	require.Len(t, snap[90], 5)
	require.Equal(t, tip("high0", 90), snap[90][0])
}

func TestNeighbourhoodSelectorCollectsPercentage(t *testing.T) {
	// 10 tips, 50% wanted: the radius must grow until 5 tips are collected,
	// which includes the far bucket
	var tips []Tip
	for i := 0; i < 4; i++ {
		tips = append(tips, tip(fmt.Sprintf("near%d", i), 50))
	}
	for i := 0; i < 6; i++ {
		tips = append(tips, tip(fmt.Sprintf("far%d", i), 70))
	}
	seenFar := false
	sel := testSelector(0.5, 100)
	for i := 0; i < 50; i++ {
		for _, tip := range sel.SelectSourcesForAttachment(snapshotOf(tips...), 50) {
			if tip.SenderTrustScore == 70 {
				seenFar = true
			}
		}
	}
	require.True(t, seenFar)
}
