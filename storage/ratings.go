package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/db"
)

// AddRating stores a rating and increments the ratee counter atomically.
// Returns ErrAlreadyExists if the rater already rated the ratee in the round,
// and the new counter value otherwise.
func (s *Storage) AddRating(r *types.Rating) (uint64, error) {
	if r == nil {
		return 0, fmt.Errorf("nil rating")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	rKey := prefixed(ratingPrefix, ratingKey(r.RoundID, r.Ratee, r.Rater))
	if _, err := wTx.Get(rKey); err == nil {
		return 0, ErrAlreadyExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return 0, err
	}
	data, err := encodeArtifact(r)
	if err != nil {
		return 0, err
	}
	cKey := prefixed(ratingCountPrefix, roundRateeKey(r.RoundID, r.Ratee))
	count, err := getUint64(wTx, cKey)
	if err != nil {
		return 0, err
	}
	count++
	if err := wTx.Set(rKey, data); err != nil {
		return 0, err
	}
	if err := setUint64(wTx, cKey, count); err != nil {
		return 0, err
	}
	if err := wTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rating: %w", err)
	}
	return count, nil
}

// HasRating reports whether rater has rated ratee in the round.
func (s *Storage) HasRating(round types.RoundID, ratee, rater common.Address) bool {
	_, err := s.db.Get(prefixed(ratingPrefix, ratingKey(round, ratee, rater)))
	return err == nil
}

// RatingCount returns the number of ratings received by ratee in the round.
func (s *Storage) RatingCount(round types.RoundID, ratee common.Address) (uint64, error) {
	return getUint64(s.db, prefixed(ratingCountPrefix, roundRateeKey(round, ratee)))
}

// Ratings returns every rating received by ratee in the round, ordered by
// rater address.
func (s *Storage) Ratings(round types.RoundID, ratee common.Address) ([]*types.Rating, error) {
	var ratings []*types.Rating
	var decodeErr error
	if err := s.iterateArtifacts(ratingPrefix, roundRateeKey(round, ratee), func(_, v []byte) bool {
		r := &types.Rating{}
		if decodeErr = decodeArtifact(v, r); decodeErr != nil {
			return false
		}
		ratings = append(ratings, r)
		return true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode rating: %w", decodeErr)
	}
	return ratings, nil
}

// Raters returns the addresses that rated ratee in the round.
func (s *Storage) Raters(round types.RoundID, ratee common.Address) ([]common.Address, error) {
	var raters []common.Address
	if err := s.iterateArtifacts(ratingPrefix, roundRateeKey(round, ratee), func(k, _ []byte) bool {
		raters = append(raters, common.BytesToAddress(k))
		return true
	}); err != nil {
		return nil, err
	}
	return raters, nil
}
