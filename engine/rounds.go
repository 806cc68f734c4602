package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/storage"
	"github.com/vocdoni/skillrating/types"
)

// CreateRound opens a new active round, which becomes the current one.
func (e *Engine) CreateRound(caller common.Address) (*types.Round, error) {
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	e.roundsLock.Lock()
	defer e.roundsLock.Unlock()
	round, err := e.stg.CreateRound(e.now())
	if err != nil {
		return nil, fmt.Errorf("create round: %w", err)
	}
	log.Infow("round created", "round", round.ID.String())
	return round, nil
}

// EndRound closes an active round. Ended rounds stay readable and can still
// be aggregated, but accept no more ratings or weights.
func (e *Engine) EndRound(caller common.Address, id types.RoundID) (*types.Round, error) {
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	e.roundsLock.Lock()
	defer e.roundsLock.Unlock()
	if id == types.NoRound {
		return nil, fmt.Errorf("%w: round zero", ErrInvalidRound)
	}
	round, err := e.stg.EndRound(id, e.now())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%w: unknown round %s", ErrInvalidRound, id)
	case errors.Is(err, storage.ErrRoundEnded):
		return nil, fmt.Errorf("%w: round %s already ended", ErrInvalidRound, id)
	case err != nil:
		return nil, fmt.Errorf("end round: %w", err)
	}
	log.Infow("round ended", "round", id.String())
	return round, nil
}

// CurrentRoundID returns the last created round, or types.NoRound if none
// exists yet.
func (e *Engine) CurrentRoundID() (types.RoundID, error) {
	return e.stg.LastRoundID()
}

// Round returns the round with the given id.
func (e *Engine) Round(id types.RoundID) (*types.Round, error) {
	return e.knownRound(id)
}

// Rounds returns every round in creation order.
func (e *Engine) Rounds() ([]*types.Round, error) {
	return e.stg.ListRounds()
}

// knownRound loads a round, rejecting the sentinel and unknown ids.
func (e *Engine) knownRound(id types.RoundID) (*types.Round, error) {
	if id == types.NoRound {
		return nil, fmt.Errorf("%w: round zero", ErrInvalidRound)
	}
	round, err := e.stg.Round(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown round %s", ErrInvalidRound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load round %s: %w", id, err)
	}
	return round, nil
}

// activeRound is knownRound that also rejects ended rounds.
func (e *Engine) activeRound(id types.RoundID) (*types.Round, error) {
	round, err := e.knownRound(id)
	if err != nil {
		return nil, err
	}
	if !round.IsActive() {
		return nil, fmt.Errorf("%w: round %s has ended", ErrInvalidRound, id)
	}
	return round, nil
}
