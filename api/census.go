package api

import (
	"net/http"
	"strconv"

	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/types"
)

// addMembers adds accounts to a round, admin only
// POST /rounds/{roundId}/members
func (a *API) addMembers(w http.ResponseWriter, r *http.Request) {
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
	req := &Members{}
	if err := decodeBody(r, req); err != nil {
		httpWriteError(w, err)
		return
	}
	added, err := a.engine.AddMembers(caller, round, req.Accounts)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	log.Infow("members added", "roundId", round.String(), "requested", len(req.Accounts), "added", added)
	httpWriteJSON(w, &MembersAdded{RoundID: round, Added: added})
}

// addMembersToCurrentRound adds accounts to the current round, admin only
// POST /rounds/current/members
func (a *API) addMembersToCurrentRound(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	req := &Members{}
	if err := decodeBody(r, req); err != nil {
		httpWriteError(w, err)
		return
	}
	round, added, err := a.engine.AddMembersToCurrentRound(caller, req.Accounts)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, &MembersAdded{RoundID: round, Added: added})
}

// member tells whether an account is a member of a round, with a proof
// GET /rounds/{roundId}/members/{address}
func (a *API) member(w http.ResponseWriter, r *http.Request) {
	round, err := urlRound(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	account, err := urlAddress(r, AddressURLParam)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	resp := &Membership{RoundID: round, Account: account, Member: a.engine.IsMember(account, round)}
	if resp.Member {
		if resp.Proof, err = a.engine.MemberProof(round, account); err != nil {
			httpWriteError(w, err)
			return
		}
	}
	httpWriteJSON(w, resp)
}

// census returns the roster commitment of a round
// GET /rounds/{roundId}/census
func (a *API) census(w http.ResponseWriter, r *http.Request) {
	round, err := urlRound(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	root, err := a.engine.CensusRoot(round)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	size, err := a.engine.MemberCount(round)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, &CensusInfo{RoundID: round, Root: root, Size: size})
}

// memberEvents pages the membership log of a round
// GET /rounds/{roundId}/events?from=&limit=
func (a *API) memberEvents(w http.ResponseWriter, r *http.Request) {
	round, err := urlRound(r)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	var from uint64
	limit := 0
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = strconv.ParseUint(s, 10, 64); err != nil {
			ErrMalformedBody.Withf("invalid from: %v", err).Write(w)
			return
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			ErrMalformedBody.Withf("invalid limit: %v", err).Write(w)
			return
		}
	}
	events, err := a.engine.MemberEvents(round, from, limit)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	if events == nil {
		events = []*types.MemberEvent{}
	}
	httpWriteJSON(w, &MemberEvents{Events: events})
}
