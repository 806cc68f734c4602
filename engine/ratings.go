package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/storage"
	"github.com/vocdoni/skillrating/types"
)

// SubmitRating records the confidential scores rater gives ratee in an
// active round. Both must be members, a rater cannot rate themselves and can
// rate each ratee only once per round. The input must carry one handle per
// dimension bound to the rater.
func (e *Engine) SubmitRating(ctx context.Context, rater, ratee common.Address, round types.RoundID, in *fhe.EncryptedInput) error {
	e.roundsLock.RLock()
	defer e.roundsLock.RUnlock()
	if _, err := e.activeRound(round); err != nil {
		return err
	}
	if rater == ratee {
		return ErrSelfRating
	}
	if !e.IsMember(rater, round) {
		return fmt.Errorf("%w: rater %s", ErrNotAMember, rater.Hex())
	}
	if !e.IsMember(ratee, round) {
		return fmt.Errorf("%w: ratee %s", ErrNotAMember, ratee.Hex())
	}

	unlock := e.ledger.lock(round, ratee)
	defer unlock()
	if e.stg.HasRating(round, ratee, rater) {
		return ErrDuplicateRating
	}
	scores, err := e.verifyDimensions(ctx, rater, in)
	if err != nil {
		return err
	}
	count, err := e.stg.AddRating(&types.Rating{
		Rater:       rater,
		Ratee:       ratee,
		RoundID:     round,
		Scores:      scores,
		SubmittedAt: e.now(),
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return ErrDuplicateRating
	}
	if err != nil {
		return fmt.Errorf("store rating: %w", err)
	}
	log.Debugw("rating submitted", "round", round.String(), "rater", rater.Hex(), "ratee", ratee.Hex(), "count", count)
	return nil
}

// HasMemberRated reports whether rater rated ratee in the round.
func (e *Engine) HasMemberRated(ratee, rater common.Address, round types.RoundID) bool {
	return e.stg.HasRating(round, ratee, rater)
}

// RatingCount returns how many ratings ratee received in the round.
func (e *Engine) RatingCount(ratee common.Address, round types.RoundID) (uint64, error) {
	return e.stg.RatingCount(round, ratee)
}

// Raters lists who rated ratee in the round. Scores are not exposed.
func (e *Engine) Raters(ratee common.Address, round types.RoundID) ([]common.Address, error) {
	return e.stg.Raters(round, ratee)
}
