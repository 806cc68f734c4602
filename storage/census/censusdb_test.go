package census

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestRosterAddAndHas(t *testing.T) {
	c := qt.New(t)
	rosters := NewRosterDB(metadb.NewTest(t))
	alice, bob := common.Address{0xa}, common.Address{0xb}

	c.Assert(rosters.Has(1, alice), qt.IsFalse)
	c.Assert(rosters.Has(types.NoRound, alice), qt.IsFalse)
	_, err := rosters.Add(types.NoRound, alice)
	c.Assert(err, qt.ErrorIs, ErrNoRound)

	added, err := rosters.Add(1, alice)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsTrue)
	added, err = rosters.Add(1, alice)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsFalse)

	c.Assert(rosters.Has(1, alice), qt.IsTrue)
	c.Assert(rosters.Has(1, bob), qt.IsFalse)
	// rosters are independent per round
	c.Assert(rosters.Has(2, alice), qt.IsFalse)

	ref, err := rosters.Roster(1)
	c.Assert(err, qt.IsNil)
	c.Assert(ref.Size(), qt.Equals, 1)
}

func TestRosterRootChanges(t *testing.T) {
	c := qt.New(t)
	rosters := NewRosterDB(metadb.NewTest(t))
	ref, err := rosters.Roster(3)
	c.Assert(err, qt.IsNil)
	empty := ref.Root()

	_, err = rosters.Add(3, common.Address{1})
	c.Assert(err, qt.IsNil)
	c.Assert(ref.Root(), qt.Not(qt.DeepEquals), empty)
}

func TestRosterPersistence(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)
	_, err := NewRosterDB(database).Add(1, common.Address{0xa})
	c.Assert(err, qt.IsNil)

	reopened := NewRosterDB(database)
	c.Assert(reopened.Has(1, common.Address{0xa}), qt.IsTrue)
}

func TestRosterProof(t *testing.T) {
	c := qt.New(t)
	rosters := NewRosterDB(metadb.NewTest(t))
	for i := 1; i <= 4; i++ {
		_, err := rosters.Add(1, common.Address{byte(i)})
		c.Assert(err, qt.IsNil)
	}
	proof, err := rosters.Proof(1, common.Address{2})
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Round, qt.Equals, types.RoundID(1))
	c.Assert(VerifyProof(proof), qt.IsTrue)

	proof.Value = []byte{2}
	c.Assert(VerifyProof(proof), qt.IsFalse)
	c.Assert(VerifyProof(nil), qt.IsFalse)

	_, err = rosters.Proof(1, common.Address{9})
	c.Assert(err, qt.ErrorIs, ErrKeyNotFound)
}

func TestRosterConcurrentAdds(t *testing.T) {
	c := qt.New(t)
	rosters := NewRosterDB(metadb.NewTest(t))
	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// two goroutines per account, only one insertion counts
			ok, err := rosters.Add(1, common.Address{byte(i%5 + 1)})
			if err == nil && ok {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	c.Assert(added, qt.Equals, 5)
	ref, err := rosters.Roster(1)
	c.Assert(err, qt.IsNil)
	c.Assert(ref.Size(), qt.Equals, 5)
}

func TestRosterHasDoesNotCreateTrees(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)
	rosters := NewRosterDB(database)

	countKeys := func() int {
		n := 0
		c.Assert(database.Iterate([]byte(rosterDBprefix), func(_, _ []byte) bool {
			n++
			return true
		}), qt.IsNil)
		return n
	}
	for round := types.RoundID(1000); round < 1100; round++ {
		c.Assert(rosters.Has(round, common.Address{0xa}), qt.IsFalse)
	}
	c.Assert(countKeys(), qt.Equals, 0)
	c.Assert(rosters.loaded, qt.HasLen, 0)

	_, err := rosters.Add(7, common.Address{0xa})
	c.Assert(err, qt.IsNil)
	c.Assert(countKeys() > 0, qt.IsTrue)

	// a stored roster is found again after a restart
	reopened := NewRosterDB(database)
	c.Assert(reopened.Has(7, common.Address{0xa}), qt.IsTrue)
	c.Assert(reopened.Has(8, common.Address{0xa}), qt.IsFalse)
	c.Assert(reopened.loaded, qt.HasLen, 1)
}
