package api

import "net/http"

// setWeights configures the confidential weights of a round, admin only
// PUT /rounds/{roundId}/weights
func (a *API) setWeights(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	round, err := urlRound(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	req := &Weights{}
	if err := decodeBody(r, req); err != nil {
		httpWriteError(w, err)
		return
	}
	if err := a.engine.SetWeights(r.Context(), caller, round, req.Input); err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteOK(w)
}

// weights returns the weight handles of a round
// GET /rounds/{roundId}/weights
func (a *API) weights(w http.ResponseWriter, r *http.Request) {
	round, err := urlRound(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	wc, err := a.engine.WeightConfig(round)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, wc)
}
