package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/types"
)

// Info describes the identities a client needs to talk to the engine.
type Info struct {
	Admin     common.Address `json:"admin"`
	ContextID common.Address `json:"contextId"`
	Signer    common.Address `json:"signer"`
	Scheme    string         `json:"scheme"`
}

// CurrentRound is the response to a current round request.
type CurrentRound struct {
	RoundID types.RoundID `json:"roundId"`
}

// Members is the request to add members to a round.
type Members struct {
	Accounts []common.Address `json:"accounts"`
}

// MembersAdded is the response to an add members request.
type MembersAdded struct {
	RoundID types.RoundID `json:"roundId"`
	Added   int           `json:"added"`
}

// Membership tells whether an account is a member of a round. Proof is only
// set for members.
type Membership struct {
	RoundID types.RoundID      `json:"roundId"`
	Account common.Address     `json:"account"`
	Member  bool               `json:"member"`
	Proof   *types.CensusProof `json:"proof,omitempty"`
}

// CensusInfo is the roster commitment of a round.
type CensusInfo struct {
	RoundID types.RoundID  `json:"roundId"`
	Root    types.HexBytes `json:"root"`
	Size    int            `json:"size"`
}

// MemberEvents is a page of the membership log of a round.
type MemberEvents struct {
	Events []*types.MemberEvent `json:"events"`
}

// Weights is the request to set the weights of a round.
type Weights struct {
	Input *fhe.EncryptedInput `json:"input"`
}

// Rating is the request to rate a ratee, the rater is the caller.
type Rating struct {
	Ratee common.Address      `json:"ratee"`
	Input *fhe.EncryptedInput `json:"input"`
}

// RateeRatings is the rating count and the raters of a ratee.
type RateeRatings struct {
	RoundID types.RoundID    `json:"roundId"`
	Ratee   common.Address   `json:"ratee"`
	Count   uint64           `json:"count"`
	Raters  []common.Address `json:"raters"`
}

// HasRated tells whether a rater rated a ratee.
type HasRated struct {
	Rated bool `json:"rated"`
}

// Score is the response to a weighted score computation.
type Score struct {
	RoundID       types.RoundID  `json:"roundId"`
	Ratee         common.Address `json:"ratee"`
	WeightedTotal types.Handle   `json:"weightedTotal"`
}

// DimensionSums is the response to a dimension sums request.
type DimensionSums struct {
	RoundID types.RoundID          `json:"roundId"`
	Ratee   common.Address         `json:"ratee"`
	Sums    types.DimensionHandles `json:"sums"`
}
