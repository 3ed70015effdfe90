package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateTrustScore(t *testing.T) {
	for _, s := range []float64{0, 0.4, 50, 99.5, 100} {
		require.NoError(t, ValidateTrustScore(s), "score %v", s)
	}
	for _, s := range []float64{-0.01, 100.01, math.NaN(), math.Inf(1)} {
		require.ErrorIs(t, ValidateTrustScore(s), ErrInvalidTrustScore, "score %v", s)
	}
}

func TestRoundedSenderTrustScore(t *testing.T) {
	tx := NewTransaction(HashOf([]byte("a")), 49.5, "")
	require.Equal(t, 50, tx.RoundedSenderTrustScore())
	tx.SenderTrustScore = 49.49
	require.Equal(t, 49, tx.RoundedSenderTrustScore())
	tx.SenderTrustScore = 100
	require.Equal(t, 100, tx.RoundedSenderTrustScore())
}

func TestChildrenAndSource(t *testing.T) {
	tx := NewTransaction(HashOf([]byte("p")), 10, "")
	require.True(t, tx.IsSource())

	child := HashOf([]byte("c"))
	tx.AddChild(child)
	tx.AddChild(child)
	require.False(t, tx.IsSource())
	require.Equal(t, []Hash{child}, tx.Children())
}

func TestParents(t *testing.T) {
	tx := NewTransaction(HashOf([]byte("x")), 10, "")
	require.Empty(t, tx.Parents())
	require.False(t, tx.HasSources())

	l, r := HashOf([]byte("l")), HashOf([]byte("r"))
	tx.SetParents(&l, nil)
	require.Equal(t, []Hash{l}, tx.Parents())
	tx.SetParents(&l, &r)
	require.Equal(t, []Hash{l, r}, tx.Parents())
}

func TestTrustChainMonotonic(t *testing.T) {
	tx := NewTransaction(HashOf([]byte("x")), 10, "")
	a, b := HashOf([]byte("a")), HashOf([]byte("b"))

	require.True(t, tx.UpdateTrustChain(40, []Hash{a}))
	require.True(t, tx.UpdateTrustChain(20, []Hash{b}))
	score, chain := tx.TrustChain()
	require.EqualValues(t, 40, score)
	require.Equal(t, []Hash{a, b}, chain)

	require.False(t, tx.UpdateTrustChain(30, []Hash{a}))

	now := time.Now()
	require.True(t, tx.MarkConsensus(now))
	require.False(t, tx.MarkConsensus(now))
	require.True(t, tx.Consensus())
	require.False(t, tx.UpdateTrustChain(1000, nil))
}

func TestHashText(t *testing.T) {
	h := HashOf([]byte("hello"))
	parsed, err := HashFromHex(h.String())
	require.NoError(t, err)
	require.Equal(t, h, parsed)

	_, err = HashFromHex("abcd")
	require.Error(t, err)
	_, err = HashFromHex("zz")
	require.Error(t, err)
}

func TestCloneIsDetached(t *testing.T) {
	l := HashOf([]byte("l"))
	tx := NewTransaction(HashOf([]byte("x")), 33, "desc")
	tx.SetParents(&l, nil)
	tx.AddChild(HashOf([]byte("c")))

	cp := tx.Clone()
	tx.AddChild(HashOf([]byte("d")))
	require.Len(t, cp.ChildrenTransactions, 1)
	require.Equal(t, l, *cp.LeftParentHash)

	data, err := json.Marshal(cp)
	require.NoError(t, err)
	var back Transaction
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, tx.Hash, back.Hash)
	require.Equal(t, l, *back.LeftParentHash)
}
