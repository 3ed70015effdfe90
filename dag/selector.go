package dag

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// SourceSelector picks 0, 1 or 2 parents for a new transaction out of a tip pool snapshot
type SourceSelector interface {
	SelectSourcesForAttachment(snapshot *TipSnapshot, trustScore float64) []Tip
}

// SelectorFunc adapts a plain function to SourceSelector
type SelectorFunc func(snapshot *TipSnapshot, trustScore float64) []Tip

func (f SelectorFunc) SelectSourcesForAttachment(snapshot *TipSnapshot, trustScore float64) []Tip {
	return f(snapshot, trustScore)
}

const maxSources = 2

// NeighbourhoodSelector prefers tips whose sender trust score is close to the one of
// the new transaction. The radius around the transaction's bucket grows until the
// neighbourhood holds MinSourcePercentage of all tips or MaxNeighbourhoodRadius is
// reached. Up to two distinct tips are then drawn at random from the neighbourhood.
// If the radius limit leaves the neighbourhood empty, the nearest non-empty bucket
// is used, so a new transaction never starts a second genesis while tips exist.
type NeighbourhoodSelector struct {
	MinSourcePercentage    float64
	MaxNeighbourhoodRadius int

	mutex sync.Mutex
	rnd   *rand.Rand
}

func NewNeighbourhoodSelector(minSourcePercentage float64, maxRadius int) *NeighbourhoodSelector {
	return NewNeighbourhoodSelectorWithRand(minSourcePercentage, maxRadius, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func NewNeighbourhoodSelectorWithRand(minSourcePercentage float64, maxRadius int, rnd *rand.Rand) *NeighbourhoodSelector {
	return &NeighbourhoodSelector{
		MinSourcePercentage:    minSourcePercentage,
		MaxNeighbourhoodRadius: maxRadius,
		rnd:                    rnd,
	}
}

func (s *NeighbourhoodSelector) SelectSourcesForAttachment(snapshot *TipSnapshot, trustScore float64) []Tip {
	total := snapshot.Len()
	if total == 0 {
		return nil
	}
	wanted := int(math.Ceil(s.MinSourcePercentage * float64(total)))
	wanted = max(wanted, 1)

	center := int(math.Round(trustScore))
	neighbourhood := make([]Tip, 0, wanted)
	for radius := 0; radius <= s.MaxNeighbourhoodRadius && len(neighbourhood) < wanted; radius++ {
		low, high := center-radius, center+radius
		if low >= 0 && low < NumTrustScoreBuckets {
			neighbourhood = append(neighbourhood, snapshot[low]...)
		}
		if radius > 0 && high >= 0 && high < NumTrustScoreBuckets {
			neighbourhood = append(neighbourhood, snapshot[high]...)
		}
		if low <= 0 && high >= NumTrustScoreBuckets-1 {
			break
		}
	}
	if len(neighbourhood) == 0 {
		neighbourhood = append(neighbourhood, snapshot[nearestNonEmpty(snapshot, center)]...)
	}
	if len(neighbourhood) <= maxSources {
		return neighbourhood
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.rnd.Shuffle(len(neighbourhood), func(i, j int) {
		neighbourhood[i], neighbourhood[j] = neighbourhood[j], neighbourhood[i]
	})
	return neighbourhood[:maxSources]
}

// nearestNonEmpty returns the closest non-empty bucket to center, the lower one on
// a tie. The snapshot must hold at least one tip.
func nearestNonEmpty(snapshot *TipSnapshot, center int) int {
	for d := 0; d < 2*NumTrustScoreBuckets; d++ {
		if i := center - d; i >= 0 && i < NumTrustScoreBuckets && len(snapshot[i]) > 0 {
			return i
		}
		if i := center + d; i >= 0 && i < NumTrustScoreBuckets && len(snapshot[i]) > 0 {
			return i
		}
	}
	return 0
}
