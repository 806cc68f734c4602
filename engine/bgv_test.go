package engine_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/skillrating/crypto/seal"
	"github.com/vocdoni/skillrating/engine"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/fhe/bgv"
	"github.com/vocdoni/skillrating/storage"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestWeightedScoreOverBGV(t *testing.T) {
	if testing.Short() {
		t.Skip("bgv key generation is slow")
	}
	c := qt.New(t)
	ctx := context.Background()

	database := metadb.NewTest(t)
	backend, err := bgv.New(database)
	c.Assert(err, qt.IsNil)
	rt, err := fhe.NewRuntime(backend, database, newKeys(c))
	c.Assert(err, qt.IsNil)
	enc, err := bgv.NewEncryptor(rt.PublicParams())
	c.Assert(err, qt.IsNil)
	admin, a, b, cc := newKeys(c), newKeys(c), newKeys(c), newKeys(c)
	eng, err := engine.New(storage.New(database), rt, engine.Config{Admin: admin.Address()})
	c.Assert(err, qt.IsNil)

	register := func(raw *fhe.RawInput, err error) *fhe.EncryptedInput {
		c.Assert(err, qt.IsNil)
		in, err := rt.RegisterInput(ctx, raw)
		c.Assert(err, qt.IsNil)
		return in
	}
	round, err := eng.CreateRound(admin.Address())
	c.Assert(err, qt.IsNil)
	_, err = eng.AddMembers(admin.Address(), round.ID, []common.Address{a.Address(), b.Address(), cc.Address()})
	c.Assert(err, qt.IsNil)
	c.Assert(eng.SetWeights(ctx, admin.Address(), round.ID,
		register(fhe.WeightsInput(enc, eng.ContextID(), admin.Address(), types.Weights{40, 15, 10, 30, 5}))), qt.IsNil)
	c.Assert(eng.SubmitRating(ctx, a.Address(), b.Address(), round.ID,
		register(fhe.ScoresInput(enc, eng.ContextID(), a.Address(), types.Scores{8, 7, 9, 8, 6}))), qt.IsNil)
	c.Assert(eng.SubmitRating(ctx, cc.Address(), b.Address(), round.ID,
		register(fhe.ScoresInput(enc, eng.ContextID(), cc.Address(), types.Scores{9, 8, 8, 9, 7}))), qt.IsNil)

	total, err := eng.CalculateWeightedScore(ctx, b.Address(), round.ID)
	c.Assert(err, qt.IsNil)
	agg, err := eng.Aggregate(b.Address(), round.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(agg.WeightedTotal, qt.Equals, total)

	kp, err := seal.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	handles := append(agg.DimensionSums.Slice(), total)
	req := fhe.NewDecryptionRequest(b.Address(), []common.Address{eng.ContextID()}, handles, kp.PublicKey(), 1)
	c.Assert(req.Sign(b), qt.IsNil)
	res, err := rt.UserDecrypt(ctx, req)
	c.Assert(err, qt.IsNil)
	values, err := fhe.OpenResult(kp, res)
	c.Assert(err, qt.IsNil)
	c.Assert(values[total], qt.Equals, uint64(1650))
	for d, want := range []uint64{17, 15, 17, 17, 13} {
		c.Assert(values[agg.DimensionSums[d]], qt.Equals, want, qt.Commentf("dimension %s", types.Dimension(d)))
	}

	// recomputing replaces the stored ciphertexts instead of adding to them
	stored, err := backend.Len()
	c.Assert(err, qt.IsNil)
	for i := 0; i < 2; i++ {
		_, err := eng.CalculateWeightedScore(ctx, b.Address(), round.ID)
		c.Assert(err, qt.IsNil)
		n, err := backend.Len()
		c.Assert(err, qt.IsNil)
		c.Assert(n, qt.Equals, stored)
	}
}
