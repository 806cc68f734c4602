package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/storage/census"
	"github.com/vocdoni/skillrating/types"
)

// AddMember adds account to the roster of the round. Adding an existing
// member is a no-op. Ended rounds still accept members.
func (e *Engine) AddMember(caller common.Address, round types.RoundID, account common.Address) error {
	_, err := e.AddMembers(caller, round, []common.Address{account})
	return err
}

// AddMembers adds every account to the roster of the round and returns how
// many of them were not members yet. Each new member produces a MemberEvent.
func (e *Engine) AddMembers(caller common.Address, round types.RoundID, accounts []common.Address) (int, error) {
	if err := e.requireAdmin(caller); err != nil {
		return 0, err
	}
	e.roundsLock.RLock()
	defer e.roundsLock.RUnlock()
	if _, err := e.knownRound(round); err != nil {
		return 0, err
	}
	return e.addMembers(round, accounts)
}

// AddMembersToCurrentRound adds accounts to the current round. It fails with
// ErrInvalidRound when no round was created yet.
func (e *Engine) AddMembersToCurrentRound(caller common.Address, accounts []common.Address) (types.RoundID, int, error) {
	if err := e.requireAdmin(caller); err != nil {
		return types.NoRound, 0, err
	}
	e.roundsLock.RLock()
	defer e.roundsLock.RUnlock()
	round, err := e.CurrentRoundID()
	if err != nil {
		return types.NoRound, 0, err
	}
	if round == types.NoRound {
		return types.NoRound, 0, fmt.Errorf("%w: no round created yet", ErrInvalidRound)
	}
	added, err := e.addMembers(round, accounts)
	return round, added, err
}

func (e *Engine) addMembers(round types.RoundID, accounts []common.Address) (int, error) {
	added := 0
	for _, account := range accounts {
		isNew, err := e.rosters.Add(round, account)
		if err != nil {
			return added, fmt.Errorf("add %s to round %s: %w", account.Hex(), round, err)
		}
		if !isNew {
			continue
		}
		added++
		ev := &types.MemberEvent{RoundID: round, Account: account, Time: e.now()}
		if err := e.stg.AppendMemberEvent(ev); err != nil {
			return added, fmt.Errorf("record member event: %w", err)
		}
		e.events.publish(*ev)
		log.Debugw("member added", "round", round.String(), "account", account.Hex(), "seq", ev.Seq)
	}
	return added, nil
}

// IsMember reports whether account belongs to the round. It is false for
// the sentinel round and for rounds that do not exist.
func (e *Engine) IsMember(account common.Address, round types.RoundID) bool {
	if _, err := e.knownRound(round); err != nil {
		return false
	}
	return e.rosters.Has(round, account)
}

// MemberEvents pages the membership log of a round, starting at sequence
// number from.
func (e *Engine) MemberEvents(round types.RoundID, from uint64, limit int) ([]*types.MemberEvent, error) {
	if _, err := e.knownRound(round); err != nil {
		return nil, err
	}
	return e.stg.MemberEvents(round, from, limit)
}

// SubscribeMemberEvents returns a channel receiving every new member of any
// round and a func to stop the subscription, which closes the channel. It
// fails with ErrTooManySubscribers when the subscriptions are at capacity.
func (e *Engine) SubscribeMemberEvents() (<-chan types.MemberEvent, func(), error) {
	ch, err := e.events.subscribe()
	if err != nil {
		return nil, nil, err
	}
	return ch, func() { e.events.unsubscribe(ch) }, nil
}

// CensusRoot returns the Merkle root committing to the roster of a round.
func (e *Engine) CensusRoot(round types.RoundID) (types.HexBytes, error) {
	ref, err := e.roster(round)
	if err != nil {
		return nil, err
	}
	return ref.Root(), nil
}

// MemberCount returns the number of members of a round.
func (e *Engine) MemberCount(round types.RoundID) (int, error) {
	ref, err := e.roster(round)
	if err != nil {
		return 0, err
	}
	return ref.Size(), nil
}

// MemberProof returns a proof of account membership in the round roster.
func (e *Engine) MemberProof(round types.RoundID, account common.Address) (*types.CensusProof, error) {
	if _, err := e.knownRound(round); err != nil {
		return nil, err
	}
	proof, err := e.rosters.Proof(round, account)
	if errors.Is(err, census.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotAMember, account.Hex())
	}
	return proof, err
}

func (e *Engine) roster(round types.RoundID) (*census.RosterRef, error) {
	if _, err := e.knownRound(round); err != nil {
		return nil, err
	}
	return e.rosters.Roster(round)
}
