// Package census keeps the membership roster of every round as a Merkle tree,
// so that the set of members can be committed to by a single root and each
// membership can be proven independently.
package census

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

const rosterDBprefix = "cs_"

var (
	// ErrNoRound is returned when a roster is requested for the sentinel round.
	ErrNoRound = fmt.Errorf("round zero has no roster")
	// ErrKeyNotFound is returned when a key is not found in the Merkle tree.
	ErrKeyNotFound = fmt.Errorf("key not found")

	defaultHashFunction = arbo.HashFunctionMiMC_BLS12_377

	memberValue = []byte{1}
)

// RosterDB is a safe and persistent database of per-round roster trees.
// Trees are opened lazily and kept in memory once loaded.
type RosterDB struct {
	mu     sync.Mutex
	db     db.Database
	loaded map[types.RoundID]*RosterRef
}

// NewRosterDB creates a new RosterDB object on top of db.
func NewRosterDB(db db.Database) *RosterDB {
	return &RosterDB{
		db:     db,
		loaded: make(map[types.RoundID]*RosterRef),
	}
}

// Roster returns the roster of the given round, opening its tree if needed.
// Rosters of rounds nobody added members to are simply empty.
func (c *RosterDB) Roster(round types.RoundID) (*RosterRef, error) {
	if round == types.NoRound {
		return nil, ErrNoRound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.loaded[round]; ok {
		return ref, nil
	}
	tree, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(c.db, rosterPrefix(round)),
		MaxLevels:    types.CensusTreeMaxLevels,
		HashFunction: defaultHashFunction,
	})
	if err != nil {
		return nil, fmt.Errorf("open roster of round %d: %w", round, err)
	}
	ref := &RosterRef{Round: round, tree: tree}
	c.loaded[round] = ref
	log.Debugw("roster loaded", "round", round.String())
	return ref, nil
}

// Add inserts account into the roster of round. It returns false without
// error if the account was already a member.
func (c *RosterDB) Add(round types.RoundID, account common.Address) (bool, error) {
	ref, err := c.Roster(round)
	if err != nil {
		return false, err
	}
	return ref.Insert(account)
}

// Has reports whether account belongs to the roster of round. The sentinel
// round, rounds without a stored roster and unreadable trees report false.
// It never creates a roster.
func (c *RosterDB) Has(round types.RoundID, account common.Address) bool {
	if round == types.NoRound || !c.exists(round) {
		return false
	}
	ref, err := c.Roster(round)
	if err != nil {
		log.Warnw("cannot open roster", "round", round.String(), "error", err.Error())
		return false
	}
	return ref.Has(account)
}

// Proof generates a membership proof of account in the roster of round.
// Returns ErrKeyNotFound if the account is not a member.
func (c *RosterDB) Proof(round types.RoundID, account common.Address) (*types.CensusProof, error) {
	ref, err := c.Roster(round)
	if err != nil {
		return nil, err
	}
	key, value, siblings, inclusion, err := ref.GenProof(account)
	if err != nil {
		return nil, err
	}
	if !inclusion {
		return nil, ErrKeyNotFound
	}
	return &types.CensusProof{
		Round:    round,
		Root:     ref.Root(),
		Key:      key,
		Value:    value,
		Siblings: siblings,
	}, nil
}

// exists reports whether the roster of round is loaded or has been stored.
func (c *RosterDB) exists(round types.RoundID) bool {
	c.mu.Lock()
	_, ok := c.loaded[round]
	c.mu.Unlock()
	if ok {
		return true
	}
	found := false
	if err := prefixeddb.NewPrefixedReader(c.db, rosterPrefix(round)).Iterate(nil, func(_, _ []byte) bool {
		found = true
		return false
	}); err != nil {
		log.Warnw("cannot read roster", "round", round.String(), "error", err.Error())
		return false
	}
	return found
}

func rosterPrefix(round types.RoundID) []byte {
	return append([]byte(rosterDBprefix), round.Bytes()...)
}
