package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/storage"
	"github.com/vocdoni/skillrating/types"
	"golang.org/x/sync/errgroup"
)

// CalculateWeightedScore aggregates every rating ratee received in the round
// and returns the handle of the weighted total
//
//	sum over d of (sum of scores in d) * weight_d
//
// which is 100 times the sum of the per rating weighted scores. The five
// dimension sums and the total are decryptable by the ratee only, and are
// stored as the ratee aggregate, replacing any previous one whose values are
// released. Ended rounds can be aggregated.
func (e *Engine) CalculateWeightedScore(ctx context.Context, ratee common.Address, round types.RoundID) (types.Handle, error) {
	e.roundsLock.RLock()
	defer e.roundsLock.RUnlock()
	if _, err := e.knownRound(round); err != nil {
		return types.Handle{}, err
	}
	weights, err := e.WeightConfig(round)
	if err != nil {
		return types.Handle{}, err
	}
	if !weights.IsSet() {
		return types.Handle{}, fmt.Errorf("%w: round %s", ErrWeightsNotSet, round)
	}

	unlock := e.ledger.lock(round, ratee)
	defer unlock()
	ratings, err := e.stg.Ratings(round, ratee)
	if err != nil {
		return types.Handle{}, fmt.Errorf("load ratings: %w", err)
	}
	if len(ratings) == 0 {
		return types.Handle{}, fmt.Errorf("%w: %s in round %s", ErrNoRatings, ratee.Hex(), round)
	}
	previous, err := e.stg.Aggregate(round, ratee)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.Handle{}, fmt.Errorf("load aggregate: %w", err)
	}
	sums, err := e.dimensionSums(ctx, ratings)
	if err != nil {
		return types.Handle{}, err
	}
	total, err := e.weightedTotal(ctx, sums, weights.Weights)
	if err != nil {
		e.release(ctx, sums.Slice()...)
		return types.Handle{}, err
	}
	computed := append(sums.Slice(), total)
	// The ratee is granted before the aggregate is stored so that a stored
	// aggregate is always decryptable. Releasing on failure also drops the
	// grants.
	if err := e.grantToRatee(ctx, ratee, computed...); err != nil {
		e.release(ctx, computed...)
		return types.Handle{}, err
	}
	if err := e.stg.SetAggregate(&types.Aggregate{
		Ratee:         ratee,
		RoundID:       round,
		DimensionSums: sums,
		WeightedTotal: total,
		RatingCount:   uint64(len(ratings)),
		ComputedAt:    e.now(),
	}); err != nil {
		e.release(ctx, computed...)
		return types.Handle{}, fmt.Errorf("store aggregate: %w", err)
	}
	if previous != nil {
		e.release(ctx, append(previous.DimensionSums.Slice(), previous.WeightedTotal)...)
	}
	log.Infow("weighted score computed", "round", round.String(), "ratee", ratee.Hex(), "ratings", len(ratings))
	return total, nil
}

// DimensionSums returns the per dimension sums of the ratings ratee received
// in the round, decryptable by the ratee. The stored aggregate is reused
// while it covers every rating. Otherwise the sums are computed again and
// kept as the ratee partial sums until more ratings arrive.
func (e *Engine) DimensionSums(ctx context.Context, ratee common.Address, round types.RoundID) (types.DimensionHandles, error) {
	e.roundsLock.RLock()
	defer e.roundsLock.RUnlock()
	if _, err := e.knownRound(round); err != nil {
		return types.DimensionHandles{}, err
	}

	unlock := e.ledger.lock(round, ratee)
	defer unlock()
	ratings, err := e.stg.Ratings(round, ratee)
	if err != nil {
		return types.DimensionHandles{}, fmt.Errorf("load ratings: %w", err)
	}
	if len(ratings) == 0 {
		return types.DimensionHandles{}, fmt.Errorf("%w: %s in round %s", ErrNoRatings, ratee.Hex(), round)
	}
	count := uint64(len(ratings))
	agg, err := e.stg.Aggregate(round, ratee)
	if err == nil && agg.RatingCount == count {
		return agg.DimensionSums, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.DimensionHandles{}, fmt.Errorf("load aggregate: %w", err)
	}
	partial, err := e.stg.PartialSums(round, ratee)
	if err == nil && partial.RatingCount == count {
		return partial.DimensionSums, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.DimensionHandles{}, fmt.Errorf("load partial sums: %w", err)
	}

	sums, err := e.dimensionSums(ctx, ratings)
	if err != nil {
		return types.DimensionHandles{}, err
	}
	if err := e.grantToRatee(ctx, ratee, sums.Slice()...); err != nil {
		e.release(ctx, sums.Slice()...)
		return types.DimensionHandles{}, err
	}
	if err := e.stg.SetPartialSums(&types.Aggregate{
		Ratee:         ratee,
		RoundID:       round,
		DimensionSums: sums,
		RatingCount:   count,
		ComputedAt:    e.now(),
	}); err != nil {
		e.release(ctx, sums.Slice()...)
		return types.DimensionHandles{}, fmt.Errorf("store partial sums: %w", err)
	}
	if partial != nil {
		e.release(ctx, partial.DimensionSums.Slice()...)
	}
	return sums, nil
}

// Aggregate returns the last aggregate computed for ratee in the round, or
// storage.ErrNotFound.
func (e *Engine) Aggregate(ratee common.Address, round types.RoundID) (*types.Aggregate, error) {
	if _, err := e.knownRound(round); err != nil {
		return nil, err
	}
	return e.stg.Aggregate(round, ratee)
}

// dimensionSums sums the scores of every rating per dimension. Dimensions
// are independent and are computed concurrently. On failure the sums already
// computed are released.
func (e *Engine) dimensionSums(ctx context.Context, ratings []*types.Rating) (types.DimensionHandles, error) {
	var sums types.DimensionHandles
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range types.Dimensions {
		g.Go(func() error {
			scores := make([]types.Handle, len(ratings))
			for i, r := range ratings {
				scores[i] = r.Scores[d]
			}
			sum, err := e.capability.Sum(gctx, e.contextID, scores...)
			if err != nil {
				return capabilityError(fmt.Sprintf("sum %s", d), err)
			}
			sums[d] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var done []types.Handle
		for _, h := range sums {
			if !h.IsZero() {
				done = append(done, h)
			}
		}
		e.release(ctx, done...)
		return types.DimensionHandles{}, err
	}
	return sums, nil
}

func (e *Engine) weightedTotal(ctx context.Context, sums, weights types.DimensionHandles) (types.Handle, error) {
	total, err := e.capability.Dot(ctx, e.contextID, sums.Slice(), weights.Slice())
	if err != nil {
		return types.Handle{}, capabilityError("weighted total", err)
	}
	return total, nil
}

// release drops computed values nothing references anymore. A failure only
// leaves unreachable values behind, so it is logged and not returned.
func (e *Engine) release(ctx context.Context, hs ...types.Handle) {
	if len(hs) == 0 {
		return
	}
	if err := e.capability.Release(context.WithoutCancel(ctx), e.contextID, hs...); err != nil {
		log.Warnw("failed to release computed values", "handles", len(hs), "error", err.Error())
	}
}
