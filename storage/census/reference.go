package census

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/skillrating/types"
)

// RosterRef holds the Merkle tree of one round roster. All accesses to the
// underlying tree are protected by treeMu.
type RosterRef struct {
	Round  types.RoundID
	tree   *arbo.Tree
	treeMu sync.Mutex
}

// Insert adds account to the tree. Returns false if it was already present.
func (r *RosterRef) Insert(account common.Address) (bool, error) {
	r.treeMu.Lock()
	defer r.treeMu.Unlock()
	if err := r.tree.Add(account.Bytes(), memberValue); err != nil {
		if errors.Is(err, arbo.ErrKeyAlreadyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Has reports whether account is a leaf of the tree.
func (r *RosterRef) Has(account common.Address) bool {
	r.treeMu.Lock()
	defer r.treeMu.Unlock()
	_, _, err := r.tree.Get(account.Bytes())
	return err == nil
}

// Root safely returns the current Merkle tree root.
func (r *RosterRef) Root() types.HexBytes {
	r.treeMu.Lock()
	defer r.treeMu.Unlock()
	root, err := r.tree.Root()
	if err != nil {
		return nil
	}
	return root
}

// Size safely returns the number of members.
func (r *RosterRef) Size() int {
	r.treeMu.Lock()
	defer r.treeMu.Unlock()
	size, err := r.tree.GetNLeafs()
	if err != nil {
		return 0
	}
	return size
}

// GenProof safely generates a Merkle proof for account. It returns the proof
// components and an inclusion boolean.
func (r *RosterRef) GenProof(account common.Address) ([]byte, []byte, []byte, bool, error) {
	r.treeMu.Lock()
	defer r.treeMu.Unlock()
	return r.tree.GenProof(account.Bytes())
}

// VerifyProof verifies a roster membership proof against its root.
func VerifyProof(proof *types.CensusProof) bool {
	if proof == nil {
		return false
	}
	valid, err := arbo.CheckProof(defaultHashFunction, proof.Key, proof.Value, proof.Root, proof.Siblings)
	if err != nil {
		return false
	}
	return valid
}
