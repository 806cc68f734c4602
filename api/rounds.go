package api

import (
	"net/http"

	"github.com/vocdoni/skillrating/log"
)

// newRound creates a new round, admin only
// POST /rounds
func (a *API) newRound(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	round, err := a.engine.CreateRound(caller)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	log.Infow("new round", "roundId", round.ID.String())
	httpWriteJSON(w, round)
}

// currentRound returns the id of the last created round
// GET /rounds/current
func (a *API) currentRound(w http.ResponseWriter, r *http.Request) {
	id, err := a.engine.CurrentRoundID()
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, &CurrentRound{RoundID: id})
}

// round returns the round info
// GET /rounds/{roundId}
func (a *API) round(w http.ResponseWriter, r *http.Request) {
	id, err := urlRound(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	round, err := a.engine.Round(id)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, round)
}

// endRound ends an active round, admin only
// POST /rounds/{roundId}/end
func (a *API) endRound(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	id, err := urlRound(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	round, err := a.engine.EndRound(caller, id)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, round)
}
