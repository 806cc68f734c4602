package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/types"
)

// SetWeightConfig stores the weight configuration of a round, replacing any
// previous one.
func (s *Storage) SetWeightConfig(w *types.WeightConfig) error {
	if !w.IsSet() {
		return fmt.Errorf("weight config without round")
	}
	return s.setArtifact(weightsPrefix, w.RoundID.Bytes(), w)
}

// WeightConfig returns the weight configuration of a round or ErrNotFound.
func (s *Storage) WeightConfig(round types.RoundID) (*types.WeightConfig, error) {
	w := &types.WeightConfig{}
	if err := s.getArtifact(weightsPrefix, round.Bytes(), w); err != nil {
		return nil, err
	}
	return w, nil
}

// SetAggregate stores the aggregate of a ratee in a round, replacing any
// previous one.
func (s *Storage) SetAggregate(a *types.Aggregate) error {
	return s.setArtifact(aggregatePrefix, roundRateeKey(a.RoundID, a.Ratee), a)
}

// Aggregate returns the stored aggregate of a ratee in a round or ErrNotFound.
func (s *Storage) Aggregate(round types.RoundID, ratee common.Address) (*types.Aggregate, error) {
	a := &types.Aggregate{}
	if err := s.getArtifact(aggregatePrefix, roundRateeKey(round, ratee), a); err != nil {
		return nil, err
	}
	return a, nil
}

// SetPartialSums stores the dimension sums computed for a ratee without a
// weighted total, replacing any previous ones.
func (s *Storage) SetPartialSums(a *types.Aggregate) error {
	return s.setArtifact(partialSumsPrefix, roundRateeKey(a.RoundID, a.Ratee), a)
}

// PartialSums returns the stored partial sums of a ratee in a round or
// ErrNotFound.
func (s *Storage) PartialSums(round types.RoundID, ratee common.Address) (*types.Aggregate, error) {
	a := &types.Aggregate{}
	if err := s.getArtifact(partialSumsPrefix, roundRateeKey(round, ratee), a); err != nil {
		return nil, err
	}
	return a, nil
}
