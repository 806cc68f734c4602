package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/log"
)

// submitRating stores the caller rating of a ratee
// POST /rounds/{roundId}/ratings
func (a *API) submitRating(w http.ResponseWriter, r *http.Request) {
	rater, err := requireCaller(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	round, err := urlRound(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	req := &Rating{}
	if err := decodeBody(r, req); err != nil {
		httpWriteError(w, err)
		return
	}
	if err := a.engine.SubmitRating(r.Context(), rater, req.Ratee, round, req.Input); err != nil {
		httpWriteError(w, err)
		return
	}
	log.Debugw("rating accepted", "roundId", round.String(), "rater", rater.Hex(), "ratee", req.Ratee.Hex())
	httpWriteOK(w)
}

// rateeRatings returns the rating count and the raters of a ratee
// GET /rounds/{roundId}/ratings/{ratee}
func (a *API) rateeRatings(w http.ResponseWriter, r *http.Request) {
	round, err := urlRound(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	ratee, err := urlAddress(r, RateeURLParam)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	count, err := a.engine.RatingCount(ratee, round)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	raters, err := a.engine.Raters(ratee, round)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	if raters == nil {
		raters = []common.Address{}
	}
	httpWriteJSON(w, &RateeRatings{RoundID: round, Ratee: ratee, Count: count, Raters: raters})
}

// hasRated tells whether a rater rated a ratee
// GET /rounds/{roundId}/ratings/{ratee}/{rater}
func (a *API) hasRated(w http.ResponseWriter, r *http.Request) {
	round, err := urlRound(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	ratee, err := urlAddress(r, RateeURLParam)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	rater, err := urlAddress(r, RaterURLParam)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, &HasRated{Rated: a.engine.HasMemberRated(ratee, rater, round)})
}
