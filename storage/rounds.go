package storage

import (
	"fmt"
	"time"

	"github.com/vocdoni/skillrating/types"
)

// CreateRound allocates the next round id and stores a new active round in
// the same transaction.
func (s *Storage) CreateRound(createdAt time.Time) (*types.Round, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	last, err := getUint64(wTx, prefixed(metaPrefix, lastRoundKey))
	if err != nil {
		return nil, fmt.Errorf("read round counter: %w", err)
	}
	round := &types.Round{
		ID:        types.RoundID(last + 1),
		Status:    types.RoundActive,
		CreatedAt: createdAt,
	}
	data, err := encodeArtifact(round)
	if err != nil {
		return nil, err
	}
	if err := wTx.Set(prefixed(roundPrefix, round.ID.Bytes()), data); err != nil {
		return nil, err
	}
	if err := setUint64(wTx, prefixed(metaPrefix, lastRoundKey), uint64(round.ID)); err != nil {
		return nil, err
	}
	if err := wTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit round: %w", err)
	}
	return round, nil
}

// LastRoundID returns the last allocated round id, or types.NoRound.
func (s *Storage) LastRoundID() (types.RoundID, error) {
	last, err := getUint64(s.db, prefixed(metaPrefix, lastRoundKey))
	if err != nil {
		return types.NoRound, err
	}
	return types.RoundID(last), nil
}

// Round returns the round with the given id or ErrNotFound.
func (s *Storage) Round(id types.RoundID) (*types.Round, error) {
	r := &types.Round{}
	if err := s.getArtifact(roundPrefix, id.Bytes(), r); err != nil {
		return nil, err
	}
	return r, nil
}

// EndRound marks an active round as ended. Returns ErrNotFound for unknown
// rounds and ErrRoundEnded if the round had already ended.
func (s *Storage) EndRound(id types.RoundID, endedAt time.Time) (*types.Round, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	r, err := s.Round(id)
	if err != nil {
		return nil, err
	}
	if r.Status == types.RoundEnded {
		return nil, ErrRoundEnded
	}
	r.Status = types.RoundEnded
	r.EndedAt = endedAt
	if err := s.setArtifact(roundPrefix, id.Bytes(), r); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRounds returns every round in allocation order.
func (s *Storage) ListRounds() ([]*types.Round, error) {
	var rounds []*types.Round
	var decodeErr error
	if err := s.iterateArtifacts(roundPrefix, nil, func(_, v []byte) bool {
		r := &types.Round{}
		if decodeErr = decodeArtifact(v, r); decodeErr != nil {
			return false
		}
		rounds = append(rounds, r)
		return true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode round: %w", decodeErr)
	}
	return rounds, nil
}
