// Package reveal turns the values a ratee decrypts from their aggregate into
// human readable scores. Division is not available over confidential values,
// so averaging by rating count and normalizing the weights happen here, in
// plaintext, on the ratee side.
package reveal

import (
	"fmt"

	"github.com/vocdoni/skillrating/crypto/seal"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/types"
)

// Scores is a finalized aggregate.
type Scores struct {
	// Averages holds the average score per dimension, in [MinScore, MaxScore].
	Averages [types.NumDimensions]float64 `json:"averages"`
	// Weighted is the weighted average score, in [MinScore, MaxScore] when
	// the weights add up to WeightTotal.
	Weighted float64 `json:"weighted"`
	Count    uint64  `json:"count"`
}

// Open decrypts a sealed decryption result with the key pair the request
// was made with.
func Open(kp *seal.KeyPair, res *fhe.SealedResult) (map[types.Handle]uint64, error) {
	return fhe.OpenResult(kp, res)
}

// Finalize divides the raw sums by the number of ratings. The weighted total
// is also divided by WeightTotal since weights are percentages.
func Finalize(sums [types.NumDimensions]uint64, weightedTotal, count uint64) (*Scores, error) {
	if count == 0 {
		return nil, fmt.Errorf("cannot finalize an aggregate without ratings")
	}
	s := &Scores{Count: count}
	for i, sum := range sums {
		s.Averages[i] = float64(sum) / float64(count)
	}
	s.Weighted = float64(weightedTotal) / types.WeightTotal / float64(count)
	return s, nil
}

// Aggregate finalizes agg using the decrypted values, which must include its
// five dimension sums and its weighted total.
func Aggregate(agg *types.Aggregate, values map[types.Handle]uint64) (*Scores, error) {
	if agg == nil {
		return nil, fmt.Errorf("nil aggregate")
	}
	var sums [types.NumDimensions]uint64
	for i, h := range agg.DimensionSums {
		v, ok := values[h]
		if !ok {
			return nil, fmt.Errorf("missing value for %s sum", types.Dimension(i))
		}
		sums[i] = v
	}
	total, ok := values[agg.WeightedTotal]
	if !ok {
		return nil, fmt.Errorf("missing value for the weighted total")
	}
	return Finalize(sums, total, agg.RatingCount)
}
