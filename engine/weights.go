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

// SetWeights stores the confidential weights of an active round, replacing
// any previous configuration. The input must carry one handle per dimension
// bound to the admin. Aggregates computed before keep their values.
func (e *Engine) SetWeights(ctx context.Context, caller common.Address, round types.RoundID, in *fhe.EncryptedInput) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.roundsLock.Lock()
	defer e.roundsLock.Unlock()
	if _, err := e.activeRound(round); err != nil {
		return err
	}
	weights, err := e.verifyDimensions(ctx, caller, in)
	if err != nil {
		return err
	}
	if err := e.stg.SetWeightConfig(&types.WeightConfig{
		RoundID:   round,
		Weights:   weights,
		UpdatedAt: e.now(),
	}); err != nil {
		return fmt.Errorf("store weights: %w", err)
	}
	log.Infow("weights configured", "round", round.String())
	return nil
}

// WeightConfig returns the weights of a round. Rounds without weights, and
// unknown rounds, return an empty configuration.
func (e *Engine) WeightConfig(round types.RoundID) (*types.WeightConfig, error) {
	wc, err := e.stg.WeightConfig(round)
	if errors.Is(err, storage.ErrNotFound) {
		return &types.WeightConfig{}, nil
	}
	return wc, err
}

// verifyDimensions checks an encrypted input owned by owner through the
// capability and returns its handles as a per dimension vector.
func (e *Engine) verifyDimensions(ctx context.Context, owner common.Address, in *fhe.EncryptedInput) (types.DimensionHandles, error) {
	if in == nil {
		return types.DimensionHandles{}, capabilityError("verify input", fmt.Errorf("%w: missing input", fhe.ErrInvalidInput))
	}
	handles, err := e.capability.VerifyInput(ctx, e.contextID, owner, in)
	if err != nil {
		return types.DimensionHandles{}, capabilityError("verify input", err)
	}
	dh, err := types.DimensionHandlesFromSlice(handles)
	if err != nil {
		return types.DimensionHandles{}, capabilityError("verify input", fmt.Errorf("%w: %w", fhe.ErrInvalidInput, err))
	}
	return dh, nil
}
