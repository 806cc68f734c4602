package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/skillrating/crypto/ethereum"
	"github.com/vocdoni/skillrating/crypto/seal"
	"github.com/vocdoni/skillrating/engine"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/fhe/mock"
	"github.com/vocdoni/skillrating/storage"
	"github.com/vocdoni/skillrating/storage/census"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/db/metadb"
)

type testEnv struct {
	c       *qt.C
	ctx     context.Context
	backend *mock.Backend
	rt      *fhe.Runtime
	eng     *engine.Engine
	stg     *storage.Storage
	admin   common.Address
	members map[string]*ethereum.SignKeys
}

func newKeys(c *qt.C) *ethereum.SignKeys {
	k := ethereum.NewSignKeys()
	c.Assert(k.Generate(), qt.IsNil)
	return k
}

// newEnv returns an engine on the mock runtime with accounts A, B, C and D.
func newEnv(t *testing.T) *testEnv {
	return newEnvWithCapability(t, nil)
}

func newEnvWithCapability(t *testing.T, wrap func(fhe.Capability) fhe.Capability) *testEnv {
	c := qt.New(t)
	database := metadb.NewTest(t)
	backend := mock.New()
	rt, err := fhe.NewRuntime(backend, database, newKeys(c))
	c.Assert(err, qt.IsNil)
	var capability fhe.Capability = rt
	if wrap != nil {
		capability = wrap(rt)
	}
	env := &testEnv{
		c:       c,
		ctx:     context.Background(),
		backend: backend,
		rt:      rt,
		stg:     storage.New(database),
		admin:   newKeys(c).Address(),
		members: make(map[string]*ethereum.SignKeys),
	}
	env.eng, err = engine.New(env.stg, capability, engine.Config{Admin: env.admin})
	c.Assert(err, qt.IsNil)
	for _, name := range []string{"A", "B", "C", "D"} {
		env.members[name] = newKeys(c)
	}
	return env
}

func (env *testEnv) addr(name string) common.Address {
	return env.members[name].Address()
}

func (env *testEnv) input(owner common.Address, values [types.NumDimensions]uint64) *fhe.EncryptedInput {
	b := fhe.CreateEncryptedInput(mock.Encryptor{}, env.eng.ContextID(), owner)
	for _, v := range values {
		b.Add(v)
	}
	raw, err := b.Encrypt()
	env.c.Assert(err, qt.IsNil)
	in, err := env.rt.RegisterInput(env.ctx, raw)
	env.c.Assert(err, qt.IsNil)
	return in
}

func (env *testEnv) rate(rater, ratee string, round types.RoundID, scores types.Scores) error {
	return env.eng.SubmitRating(env.ctx, env.addr(rater), env.addr(ratee), round, env.input(env.addr(rater), scores))
}

func (env *testEnv) decrypt(name string, hs ...types.Handle) (map[types.Handle]uint64, error) {
	keys := env.members[name]
	kp, err := seal.GenerateKeyPair()
	env.c.Assert(err, qt.IsNil)
	req := fhe.NewDecryptionRequest(keys.Address(), []common.Address{env.eng.ContextID()}, hs, kp.PublicKey(), 1)
	env.c.Assert(req.Sign(keys), qt.IsNil)
	res, err := env.rt.UserDecrypt(env.ctx, req)
	if err != nil {
		return nil, err
	}
	return fhe.OpenResult(kp, res)
}

// scenario creates a round with A, B and C as members and the weights
// (40, 15, 10, 30, 5).
func (env *testEnv) scenario() types.RoundID {
	round, err := env.eng.CreateRound(env.admin)
	env.c.Assert(err, qt.IsNil)
	_, err = env.eng.AddMembers(env.admin, round.ID, []common.Address{env.addr("A"), env.addr("B"), env.addr("C")})
	env.c.Assert(err, qt.IsNil)
	env.c.Assert(env.eng.SetWeights(env.ctx, env.admin, round.ID, env.input(env.admin, types.Weights{40, 15, 10, 30, 5})), qt.IsNil)
	return round.ID
}

func TestNewValidation(t *testing.T) {
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	rt, err := fhe.NewRuntime(mock.New(), stg.DB(), newKeys(c))
	c.Assert(err, qt.IsNil)

	_, err = engine.New(nil, rt, engine.Config{Admin: common.Address{1}})
	c.Assert(err, qt.IsNotNil)
	_, err = engine.New(stg, nil, engine.Config{Admin: common.Address{1}})
	c.Assert(err, qt.IsNotNil)
	_, err = engine.New(stg, rt, engine.Config{})
	c.Assert(err, qt.IsNotNil)

	eng, err := engine.New(stg, rt, engine.Config{Admin: common.Address{1}})
	c.Assert(err, qt.IsNil)
	c.Assert(eng.ContextID(), qt.Equals, engine.DefaultContextID)
	c.Assert(eng.Admin(), qt.Equals, common.Address{1})
}

func TestRoundLifecycle(t *testing.T) {
	env := newEnv(t)
	c := env.c

	current, err := env.eng.CurrentRoundID()
	c.Assert(err, qt.IsNil)
	c.Assert(current, qt.Equals, types.NoRound)

	_, err = env.eng.CreateRound(env.addr("A"))
	c.Assert(err, qt.ErrorIs, engine.ErrUnauthorized)

	for i := 1; i <= 2; i++ {
		r, err := env.eng.CreateRound(env.admin)
		c.Assert(err, qt.IsNil)
		c.Assert(r.ID, qt.Equals, types.RoundID(i))
		current, err = env.eng.CurrentRoundID()
		c.Assert(err, qt.IsNil)
		c.Assert(current, qt.Equals, r.ID)
	}

	_, err = env.eng.EndRound(env.addr("A"), 1)
	c.Assert(err, qt.ErrorIs, engine.ErrUnauthorized)
	_, err = env.eng.EndRound(env.admin, types.NoRound)
	c.Assert(err, qt.ErrorIs, engine.ErrInvalidRound)
	_, err = env.eng.EndRound(env.admin, 7)
	c.Assert(err, qt.ErrorIs, engine.ErrInvalidRound)

	ended, err := env.eng.EndRound(env.admin, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(ended.Status, qt.Equals, types.RoundEnded)
	_, err = env.eng.EndRound(env.admin, 1)
	c.Assert(err, qt.ErrorIs, engine.ErrInvalidRound)

	// ending an older round does not change the current one
	current, err = env.eng.CurrentRoundID()
	c.Assert(err, qt.IsNil)
	c.Assert(current, qt.Equals, types.RoundID(2))

	r, err := env.eng.Round(1)
	c.Assert(err, qt.IsNil)
	c.Assert(r.IsActive(), qt.IsFalse)
	_, err = env.eng.Round(types.NoRound)
	c.Assert(err, qt.ErrorIs, engine.ErrInvalidRound)

	rounds, err := env.eng.Rounds()
	c.Assert(err, qt.IsNil)
	c.Assert(rounds, qt.HasLen, 2)
}

func TestMembership(t *testing.T) {
	env := newEnv(t)
	c := env.c
	a, b := env.addr("A"), env.addr("B")

	c.Assert(env.eng.IsMember(a, types.NoRound), qt.IsFalse)
	c.Assert(env.eng.IsMember(a, 1), qt.IsFalse)
	c.Assert(env.eng.AddMember(env.admin, 1, a), qt.ErrorIs, engine.ErrInvalidRound)
	_, _, err := env.eng.AddMembersToCurrentRound(env.admin, []common.Address{a})
	c.Assert(err, qt.ErrorIs, engine.ErrInvalidRound)

	round, err := env.eng.CreateRound(env.admin)
	c.Assert(err, qt.IsNil)
	c.Assert(env.eng.AddMember(a, round.ID, a), qt.ErrorIs, engine.ErrUnauthorized)
	c.Assert(env.eng.AddMember(env.admin, types.NoRound, a), qt.ErrorIs, engine.ErrInvalidRound)

	c.Assert(env.eng.AddMember(env.admin, round.ID, a), qt.IsNil)
	c.Assert(env.eng.AddMember(env.admin, round.ID, a), qt.IsNil)
	c.Assert(env.eng.IsMember(a, round.ID), qt.IsTrue)
	c.Assert(env.eng.IsMember(b, round.ID), qt.IsFalse)

	id, added, err := env.eng.AddMembersToCurrentRound(env.admin, []common.Address{a, b})
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, round.ID)
	c.Assert(added, qt.Equals, 1)

	count, err := env.eng.MemberCount(round.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 2)

	// only new members are logged
	events, err := env.eng.MemberEvents(round.ID, 0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 2)
	c.Assert(events[0].Account, qt.Equals, a)
	c.Assert(events[1].Account, qt.Equals, b)
	c.Assert(events[1].Seq, qt.Equals, uint64(2))

	// membership is per round, and ended rounds still accept members
	next, err := env.eng.CreateRound(env.admin)
	c.Assert(err, qt.IsNil)
	c.Assert(env.eng.IsMember(a, next.ID), qt.IsFalse)
	_, err = env.eng.EndRound(env.admin, round.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(env.eng.AddMember(env.admin, round.ID, env.addr("C")), qt.IsNil)
	c.Assert(env.eng.IsMember(env.addr("C"), round.ID), qt.IsTrue)
}

func TestIsMemberOnUnknownRoundsWritesNothing(t *testing.T) {
	env := newEnv(t)
	c := env.c
	rosterKeys := func() int {
		n := 0
		c.Assert(env.stg.DB().Iterate([]byte("cs_"), func(_, _ []byte) bool {
			n++
			return true
		}), qt.IsNil)
		return n
	}
	for round := types.RoundID(1000); round < 1100; round++ {
		c.Assert(env.eng.IsMember(env.addr("A"), round), qt.IsFalse)
	}
	c.Assert(rosterKeys(), qt.Equals, 0)

	round, err := env.eng.CreateRound(env.admin)
	c.Assert(err, qt.IsNil)
	c.Assert(env.eng.IsMember(env.addr("A"), round.ID), qt.IsFalse)
	c.Assert(rosterKeys(), qt.Equals, 0)
}

func TestMemberProofs(t *testing.T) {
	env := newEnv(t)
	c := env.c
	round := env.scenario()

	root, err := env.eng.CensusRoot(round)
	c.Assert(err, qt.IsNil)
	proof, err := env.eng.MemberProof(round, env.addr("B"))
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Root, qt.DeepEquals, root)
	c.Assert(census.VerifyProof(proof), qt.IsTrue)

	_, err = env.eng.MemberProof(round, env.addr("D"))
	c.Assert(err, qt.ErrorIs, engine.ErrNotAMember)
	_, err = env.eng.CensusRoot(9)
	c.Assert(err, qt.ErrorIs, engine.ErrInvalidRound)
}

func TestMemberSubscription(t *testing.T) {
	env := newEnv(t)
	c := env.c
	events, cancel, err := env.eng.SubscribeMemberEvents()
	c.Assert(err, qt.IsNil)

	round, err := env.eng.CreateRound(env.admin)
	c.Assert(err, qt.IsNil)
	c.Assert(env.eng.AddMember(env.admin, round.ID, env.addr("A")), qt.IsNil)
	c.Assert(env.eng.AddMember(env.admin, round.ID, env.addr("A")), qt.IsNil)

	ev := <-events
	c.Assert(ev.Account, qt.Equals, env.addr("A"))
	c.Assert(ev.RoundID, qt.Equals, round.ID)
	c.Assert(ev.Seq, qt.Equals, uint64(1))
	select {
	case extra := <-events:
		c.Fatalf("unexpected event %+v", extra)
	default:
	}

	cancel()
	_, ok := <-events
	c.Assert(ok, qt.IsFalse)
	cancel()
}

func TestMemberSubscriptionCap(t *testing.T) {
	c := qt.New(t)
	stg := storage.New(metadb.NewTest(t))
	rt, err := fhe.NewRuntime(mock.New(), stg.DB(), newKeys(c))
	c.Assert(err, qt.IsNil)
	eng, err := engine.New(stg, rt, engine.Config{Admin: common.Address{1}, MaxSubscribers: 2})
	c.Assert(err, qt.IsNil)

	_, cancel1, err := eng.SubscribeMemberEvents()
	c.Assert(err, qt.IsNil)
	_, cancel2, err := eng.SubscribeMemberEvents()
	c.Assert(err, qt.IsNil)
	_, _, err = eng.SubscribeMemberEvents()
	c.Assert(err, qt.ErrorIs, engine.ErrTooManySubscribers)

	cancel1()
	_, cancel3, err := eng.SubscribeMemberEvents()
	c.Assert(err, qt.IsNil)
	cancel2()
	cancel3()
}

func TestWeights(t *testing.T) {
	env := newEnv(t)
	c := env.c
	weights := types.Weights{40, 15, 10, 30, 5}

	wc, err := env.eng.WeightConfig(1)
	c.Assert(err, qt.IsNil)
	c.Assert(wc.IsSet(), qt.IsFalse)

	c.Assert(env.eng.SetWeights(env.ctx, env.admin, 1, env.input(env.admin, weights)), qt.ErrorIs, engine.ErrInvalidRound)
	round, err := env.eng.CreateRound(env.admin)
	c.Assert(err, qt.IsNil)
	c.Assert(env.eng.SetWeights(env.ctx, env.admin, types.NoRound, env.input(env.admin, weights)), qt.ErrorIs, engine.ErrInvalidRound)
	c.Assert(env.eng.SetWeights(env.ctx, env.addr("A"), round.ID, env.input(env.addr("A"), weights)), qt.ErrorIs, engine.ErrUnauthorized)

	// inputs bound to another owner are rejected by the capability
	err = env.eng.SetWeights(env.ctx, env.admin, round.ID, env.input(env.addr("A"), weights))
	c.Assert(err, qt.ErrorIs, engine.ErrCapabilityFailure)
	c.Assert(err, qt.ErrorIs, fhe.ErrInvalidProof)
	err = env.eng.SetWeights(env.ctx, env.admin, round.ID, nil)
	c.Assert(err, qt.ErrorIs, engine.ErrCapabilityFailure)

	c.Assert(env.eng.SetWeights(env.ctx, env.admin, round.ID, env.input(env.admin, weights)), qt.IsNil)
	first, err := env.eng.WeightConfig(round.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(first.IsSet(), qt.IsTrue)
	c.Assert(first.Weights.HasZero(), qt.IsFalse)

	// resubmission overwrites
	c.Assert(env.eng.SetWeights(env.ctx, env.admin, round.ID, env.input(env.admin, types.Weights{20, 20, 20, 20, 20})), qt.IsNil)
	second, err := env.eng.WeightConfig(round.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(second.Weights, qt.Not(qt.Equals), first.Weights)

	_, err = env.eng.EndRound(env.admin, round.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(env.eng.SetWeights(env.ctx, env.admin, round.ID, env.input(env.admin, weights)), qt.ErrorIs, engine.ErrInvalidRound)
}

func TestWeightsNeedFiveHandles(t *testing.T) {
	env := newEnv(t)
	c := env.c
	round, err := env.eng.CreateRound(env.admin)
	c.Assert(err, qt.IsNil)

	raw, err := fhe.CreateEncryptedInput(mock.Encryptor{}, env.eng.ContextID(), env.admin).Add(50).Add(50).Encrypt()
	c.Assert(err, qt.IsNil)
	in, err := env.rt.RegisterInput(env.ctx, raw)
	c.Assert(err, qt.IsNil)
	err = env.eng.SetWeights(env.ctx, env.admin, round.ID, in)
	c.Assert(err, qt.ErrorIs, engine.ErrCapabilityFailure)
	c.Assert(err, qt.ErrorIs, fhe.ErrInvalidInput)
}

func TestSubmitRatingFailures(t *testing.T) {
	env := newEnv(t)
	c := env.c
	scores := types.Scores{8, 7, 9, 8, 6}

	c.Assert(env.rate("A", "B", types.NoRound, scores), qt.ErrorIs, engine.ErrInvalidRound)
	c.Assert(env.rate("A", "B", 5, scores), qt.ErrorIs, engine.ErrInvalidRound)

	round := env.scenario()
	// invalid round comes before self rating
	c.Assert(env.rate("A", "A", 5, scores), qt.ErrorIs, engine.ErrInvalidRound)
	// self rating comes before membership
	c.Assert(env.rate("D", "D", round, scores), qt.ErrorIs, engine.ErrSelfRating)
	c.Assert(env.rate("A", "A", round, scores), qt.ErrorIs, engine.ErrSelfRating)
	c.Assert(env.rate("D", "B", round, scores), qt.ErrorIs, engine.ErrNotAMember)
	c.Assert(env.rate("A", "D", round, scores), qt.ErrorIs, engine.ErrNotAMember)

	// a proof bound to somebody else is a capability failure
	err := env.eng.SubmitRating(env.ctx, env.addr("A"), env.addr("B"), round, env.input(env.addr("C"), scores))
	c.Assert(err, qt.ErrorIs, engine.ErrCapabilityFailure)
	c.Assert(env.eng.HasMemberRated(env.addr("B"), env.addr("A"), round), qt.IsFalse)

	c.Assert(env.rate("A", "B", round, scores), qt.IsNil)
	c.Assert(env.rate("A", "B", round, types.Scores{1, 1, 1, 1, 1}), qt.ErrorIs, engine.ErrDuplicateRating)
	count, err := env.eng.RatingCount(env.addr("B"), round)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(1))

	// the reverse direction is a different rating
	c.Assert(env.rate("B", "A", round, scores), qt.IsNil)

	_, err = env.eng.EndRound(env.admin, round)
	c.Assert(err, qt.IsNil)
	c.Assert(env.rate("C", "B", round, scores), qt.ErrorIs, engine.ErrInvalidRound)
}

func TestWeightedScoreScenario(t *testing.T) {
	env := newEnv(t)
	c := env.c
	round := env.scenario()
	b := env.addr("B")

	c.Assert(env.rate("A", "B", round, types.Scores{8, 7, 9, 8, 6}), qt.IsNil)
	c.Assert(env.rate("C", "B", round, types.Scores{9, 8, 8, 9, 7}), qt.IsNil)
	c.Assert(env.rate("D", "B", round, types.Scores{5, 5, 5, 5, 5}), qt.ErrorIs, engine.ErrNotAMember)
	c.Assert(env.rate("A", "B", round, types.Scores{5, 5, 5, 5, 5}), qt.ErrorIs, engine.ErrDuplicateRating)

	count, err := env.eng.RatingCount(b, round)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(2))
	raters, err := env.eng.Raters(b, round)
	c.Assert(err, qt.IsNil)
	c.Assert(raters, qt.HasLen, 2)
	c.Assert(env.eng.HasMemberRated(b, env.addr("A"), round), qt.IsTrue)
	c.Assert(env.eng.HasMemberRated(b, env.addr("D"), round), qt.IsFalse)

	total, err := env.eng.CalculateWeightedScore(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
	agg, err := env.eng.Aggregate(b, round)
	c.Assert(err, qt.IsNil)
	c.Assert(agg.WeightedTotal, qt.Equals, total)
	c.Assert(agg.RatingCount, qt.Equals, uint64(2))

	values, err := env.decrypt("B", append(agg.DimensionSums.Slice(), total)...)
	c.Assert(err, qt.IsNil)
	c.Assert(values[total], qt.Equals, uint64(1650))
	expected := [types.NumDimensions]uint64{17, 15, 17, 17, 13}
	for i, h := range agg.DimensionSums {
		c.Assert(values[h], qt.Equals, expected[i], qt.Commentf("dimension %s", types.Dimension(i)))
	}

	// nobody else can decrypt the aggregate, not even the admin or a rater
	_, err = env.decrypt("A", total)
	c.Assert(err, qt.ErrorIs, fhe.ErrNotAllowed)

	// the cached sums are returned while no new rating arrives
	sums, err := env.eng.DimensionSums(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
	c.Assert(sums, qt.Equals, agg.DimensionSums)
}

func TestWeightedScoreIdempotent(t *testing.T) {
	env := newEnv(t)
	c := env.c
	round := env.scenario()
	b := env.addr("B")
	c.Assert(env.rate("A", "B", round, types.Scores{8, 7, 9, 8, 6}), qt.IsNil)

	first, err := env.eng.CalculateWeightedScore(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
	values, err := env.decrypt("B", first)
	c.Assert(err, qt.IsNil)
	c.Assert(values[first], qt.Equals, uint64(8*40+7*15+9*10+8*30+6*5))

	second, err := env.eng.CalculateWeightedScore(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
	c.Assert(second, qt.Not(qt.Equals), first)
	values, err = env.decrypt("B", second)
	c.Assert(err, qt.IsNil)
	c.Assert(values[second], qt.Equals, uint64(8*40+7*15+9*10+8*30+6*5))

	// the superseded aggregate is released
	_, err = env.decrypt("B", first)
	c.Assert(err, qt.ErrorIs, fhe.ErrNotAllowed)

	// ended rounds can still be aggregated
	_, err = env.eng.EndRound(env.admin, round)
	c.Assert(err, qt.IsNil)
	_, err = env.eng.CalculateWeightedScore(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
}

func TestWeightedScoreFailures(t *testing.T) {
	env := newEnv(t)
	c := env.c
	b := env.addr("B")

	_, err := env.eng.CalculateWeightedScore(env.ctx, b, types.NoRound)
	c.Assert(err, qt.ErrorIs, engine.ErrInvalidRound)
	_, err = env.eng.CalculateWeightedScore(env.ctx, b, 3)
	c.Assert(err, qt.ErrorIs, engine.ErrInvalidRound)

	round, err := env.eng.CreateRound(env.admin)
	c.Assert(err, qt.IsNil)
	_, err = env.eng.AddMembers(env.admin, round.ID, []common.Address{env.addr("A"), b})
	c.Assert(err, qt.IsNil)
	c.Assert(env.rate("A", "B", round.ID, types.Scores{8, 7, 9, 8, 6}), qt.IsNil)
	_, err = env.eng.CalculateWeightedScore(env.ctx, b, round.ID)
	c.Assert(err, qt.ErrorIs, engine.ErrWeightsNotSet)

	c.Assert(env.eng.SetWeights(env.ctx, env.admin, round.ID, env.input(env.admin, types.Weights{40, 15, 10, 30, 5})), qt.IsNil)
	_, err = env.eng.CalculateWeightedScore(env.ctx, env.addr("A"), round.ID)
	c.Assert(err, qt.ErrorIs, engine.ErrNoRatings)
	_, err = env.eng.DimensionSums(env.ctx, env.addr("A"), round.ID)
	c.Assert(err, qt.ErrorIs, engine.ErrNoRatings)

	_, err = env.eng.Aggregate(b, round.ID)
	c.Assert(err, qt.ErrorIs, storage.ErrNotFound)
}

func TestDimensionSumsFollowNewRatings(t *testing.T) {
	env := newEnv(t)
	c := env.c
	round := env.scenario()
	b := env.addr("B")
	c.Assert(env.rate("A", "B", round, types.Scores{8, 7, 9, 8, 6}), qt.IsNil)
	_, err := env.eng.CalculateWeightedScore(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
	c.Assert(env.rate("C", "B", round, types.Scores{9, 8, 8, 9, 7}), qt.IsNil)

	sums, err := env.eng.DimensionSums(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
	values, err := env.decrypt("B", sums.Slice()...)
	c.Assert(err, qt.IsNil)
	c.Assert(values[sums[types.CodeQuality]], qt.Equals, uint64(17))
	c.Assert(values[sums[types.Creativity]], qt.Equals, uint64(13))

	// the stored aggregate is left untouched
	agg, err := env.eng.Aggregate(b, round)
	c.Assert(err, qt.IsNil)
	c.Assert(agg.RatingCount, qt.Equals, uint64(1))
}

func TestRecomputationKeepsStoredValuesBounded(t *testing.T) {
	env := newEnv(t)
	c := env.c
	round := env.scenario()
	b := env.addr("B")
	c.Assert(env.rate("A", "B", round, types.Scores{8, 7, 9, 8, 6}), qt.IsNil)

	_, err := env.eng.CalculateWeightedScore(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
	stored := env.backend.Len()
	for i := 0; i < 5; i++ {
		_, err := env.eng.CalculateWeightedScore(env.ctx, b, round)
		c.Assert(err, qt.IsNil)
		c.Assert(env.backend.Len(), qt.Equals, stored, qt.Commentf("call %d", i))
	}

	// stale sums are computed once per new rating, the previous ones are
	// released
	c.Assert(env.rate("C", "B", round, types.Scores{9, 8, 8, 9, 7}), qt.IsNil)
	stored = env.backend.Len()
	sums, err := env.eng.DimensionSums(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
	c.Assert(env.backend.Len(), qt.Equals, stored+types.NumDimensions)
	for i := 0; i < 3; i++ {
		again, err := env.eng.DimensionSums(env.ctx, b, round)
		c.Assert(err, qt.IsNil)
		c.Assert(again, qt.Equals, sums)
	}
	c.Assert(env.backend.Len(), qt.Equals, stored+types.NumDimensions)
	values, err := env.decrypt("B", sums.Slice()...)
	c.Assert(err, qt.IsNil)
	c.Assert(values[sums[types.CodeQuality]], qt.Equals, uint64(17))

	// a new aggregate replaces the previous one, value for value
	stored = env.backend.Len()
	_, err = env.eng.CalculateWeightedScore(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
	c.Assert(env.backend.Len(), qt.Equals, stored)
}

// failingCapability fails every weighted total once armed.
type failingCapability struct {
	fhe.Capability
	armed atomic.Bool
}

var errBackendDown = errors.New("backend down")

func (f *failingCapability) Dot(ctx context.Context, contextID common.Address, a, b []types.Handle) (types.Handle, error) {
	if f.armed.Load() {
		return types.Handle{}, errBackendDown
	}
	return f.Capability.Dot(ctx, contextID, a, b)
}

func TestCapabilityFailureLeavesNoAggregate(t *testing.T) {
	failing := &failingCapability{}
	env := newEnvWithCapability(t, func(c fhe.Capability) fhe.Capability {
		failing.Capability = c
		return failing
	})
	c := env.c
	round := env.scenario()
	b := env.addr("B")
	c.Assert(env.rate("A", "B", round, types.Scores{8, 7, 9, 8, 6}), qt.IsNil)

	stored := env.backend.Len()
	failing.armed.Store(true)
	_, err := env.eng.CalculateWeightedScore(env.ctx, b, round)
	c.Assert(err, qt.ErrorIs, engine.ErrCapabilityFailure)
	c.Assert(err, qt.ErrorIs, errBackendDown)
	_, err = env.eng.Aggregate(b, round)
	c.Assert(err, qt.ErrorIs, storage.ErrNotFound)
	// the sums computed before the failure are released
	c.Assert(env.backend.Len(), qt.Equals, stored)

	failing.armed.Store(false)
	_, err = env.eng.CalculateWeightedScore(env.ctx, b, round)
	c.Assert(err, qt.IsNil)
}

func TestConcurrentSubmissions(t *testing.T) {
	env := newEnv(t)
	c := env.c
	round, err := env.eng.CreateRound(env.admin)
	c.Assert(err, qt.IsNil)
	c.Assert(env.eng.SetWeights(env.ctx, env.admin, round.ID, env.input(env.admin, types.Weights{20, 20, 20, 20, 20})), qt.IsNil)

	ratee := env.addr("B")
	raters := make([]common.Address, 8)
	for i := range raters {
		raters[i] = newKeys(c).Address()
	}
	_, err = env.eng.AddMembers(env.admin, round.ID, append([]common.Address{ratee}, raters...))
	c.Assert(err, qt.IsNil)

	// every rater submits twice in parallel while aggregations run
	inputs := make([][2]*fhe.EncryptedInput, len(raters))
	for i, r := range raters {
		inputs[i] = [2]*fhe.EncryptedInput{env.input(r, types.Scores{5, 5, 5, 5, 5}), env.input(r, types.Scores{5, 5, 5, 5, 5})}
	}
	var accepted, duplicated atomic.Int32
	var wg sync.WaitGroup
	for i, r := range raters {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := env.eng.SubmitRating(env.ctx, r, ratee, round.ID, inputs[i][j])
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, engine.ErrDuplicateRating):
					duplicated.Add(1)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			// may legitimately find no ratings yet
			_, _ = env.eng.CalculateWeightedScore(env.ctx, ratee, round.ID)
		}()
	}
	wg.Wait()
	c.Assert(accepted.Load(), qt.Equals, int32(len(raters)))
	c.Assert(duplicated.Load(), qt.Equals, int32(len(raters)))

	count, err := env.eng.RatingCount(ratee, round.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(len(raters)))

	total, err := env.eng.CalculateWeightedScore(env.ctx, ratee, round.ID)
	c.Assert(err, qt.IsNil)
	values, err := env.decrypt("B", total)
	c.Assert(err, qt.IsNil)
	c.Assert(values[total], qt.Equals, uint64(len(raters)*5*100))
}
