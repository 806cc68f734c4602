package api

import "net/http"

// calculateScore aggregates the ratings of a ratee
// POST /rounds/{roundId}/scores/{ratee}
func (a *API) calculateScore(w http.ResponseWriter, r *http.Request) {
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
	total, err := a.engine.CalculateWeightedScore(r.Context(), ratee, round)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, &Score{RoundID: round, Ratee: ratee, WeightedTotal: total})
}

// aggregate returns the last aggregate computed for a ratee
// GET /rounds/{roundId}/scores/{ratee}
func (a *API) aggregate(w http.ResponseWriter, r *http.Request) {
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
	agg, err := a.engine.Aggregate(ratee, round)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, agg)
}

// dimensionSums returns the dimension sum handles of a ratee
// GET /rounds/{roundId}/scores/{ratee}/sums
func (a *API) dimensionSums(w http.ResponseWriter, r *http.Request) {
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
	sums, err := a.engine.DimensionSums(r.Context(), ratee, round)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, &DimensionSums{RoundID: round, Ratee: ratee, Sums: sums})
}
