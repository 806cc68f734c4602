package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestRounds(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	last, err := stg.LastRoundID()
	c.Assert(err, qt.IsNil)
	c.Assert(last, qt.Equals, types.NoRound)

	_, err = stg.Round(1)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	for i := 1; i <= 3; i++ {
		r, err := stg.CreateRound(time.Now())
		c.Assert(err, qt.IsNil)
		c.Assert(r.ID, qt.Equals, types.RoundID(i))
		c.Assert(r.Status, qt.Equals, types.RoundActive)
	}
	last, err = stg.LastRoundID()
	c.Assert(err, qt.IsNil)
	c.Assert(last, qt.Equals, types.RoundID(3))

	ended, err := stg.EndRound(2, time.Now())
	c.Assert(err, qt.IsNil)
	c.Assert(ended.Status, qt.Equals, types.RoundEnded)
	_, err = stg.EndRound(2, time.Now())
	c.Assert(err, qt.ErrorIs, ErrRoundEnded)
	_, err = stg.EndRound(9, time.Now())
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	r, err := stg.Round(2)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Status, qt.Equals, types.RoundEnded)
	c.Assert(r.EndedAt.IsZero(), qt.IsFalse)

	rounds, err := stg.ListRounds()
	c.Assert(err, qt.IsNil)
	c.Assert(rounds, qt.HasLen, 3)
	for i, r := range rounds {
		c.Assert(r.ID, qt.Equals, types.RoundID(i+1))
	}
}

func TestRatingsAreUniqueAndCounted(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))
	ratee := common.Address{0xb}
	raterA, raterC := common.Address{0xa}, common.Address{0xc}

	rating := &types.Rating{Rater: raterA, Ratee: ratee, RoundID: 1, SubmittedAt: time.Now()}
	rating.Scores[0] = types.Handle{1}
	count, err := stg.AddRating(rating)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(1))

	_, err = stg.AddRating(rating)
	c.Assert(err, qt.ErrorIs, ErrAlreadyExists)
	count, err = stg.RatingCount(1, ratee)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(1))

	// the same pair in another round is independent
	other := *rating
	other.RoundID = 2
	count, err = stg.AddRating(&other)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(1))

	count, err = stg.AddRating(&types.Rating{Rater: raterC, Ratee: ratee, RoundID: 1})
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(2))

	c.Assert(stg.HasRating(1, ratee, raterA), qt.IsTrue)
	c.Assert(stg.HasRating(1, raterA, ratee), qt.IsFalse)

	ratings, err := stg.Ratings(1, ratee)
	c.Assert(err, qt.IsNil)
	c.Assert(ratings, qt.HasLen, 2)
	c.Assert(ratings[0].Rater, qt.Equals, raterA)
	c.Assert(ratings[0].Scores[0], qt.Equals, types.Handle{1})

	raters, err := stg.Raters(1, ratee)
	c.Assert(err, qt.IsNil)
	c.Assert(raters, qt.DeepEquals, []common.Address{raterA, raterC})

	count, err = stg.RatingCount(3, ratee)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(0))
}

func TestConcurrentRatingsKeepCounterConsistent(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))
	ratee := common.Address{0xb}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every rater submits twice, only one must land
			for j := 0; j < 2; j++ {
				_, _ = stg.AddRating(&types.Rating{Rater: common.Address{byte(i + 1)}, Ratee: ratee, RoundID: 1})
			}
		}(i)
	}
	wg.Wait()
	count, err := stg.RatingCount(1, ratee)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(20))
	ratings, err := stg.Ratings(1, ratee)
	c.Assert(err, qt.IsNil)
	c.Assert(ratings, qt.HasLen, 20)
}

func TestWeightsAndAggregates(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))
	ratee := common.Address{0xb}

	_, err := stg.WeightConfig(1)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	c.Assert(stg.SetWeightConfig(&types.WeightConfig{}), qt.IsNotNil)

	w := &types.WeightConfig{RoundID: 1, UpdatedAt: time.Now()}
	w.Weights[types.Creativity] = types.Handle{5}
	c.Assert(stg.SetWeightConfig(w), qt.IsNil)
	w.Weights[types.Creativity] = types.Handle{6}
	c.Assert(stg.SetWeightConfig(w), qt.IsNil)
	got, err := stg.WeightConfig(1)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Weights[types.Creativity], qt.Equals, types.Handle{6})

	_, err = stg.Aggregate(1, ratee)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	agg := &types.Aggregate{Ratee: ratee, RoundID: 1, WeightedTotal: types.Handle{9}, RatingCount: 2}
	c.Assert(stg.SetAggregate(agg), qt.IsNil)
	stored, err := stg.Aggregate(1, ratee)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.WeightedTotal, qt.Equals, types.Handle{9})
	c.Assert(stored.RatingCount, qt.Equals, uint64(2))
}

func TestMemberEvents(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	for i := 1; i <= 5; i++ {
		ev := &types.MemberEvent{RoundID: 1, Account: common.Address{byte(i)}, Time: time.Now()}
		c.Assert(stg.AppendMemberEvent(ev), qt.IsNil)
		c.Assert(ev.Seq, qt.Equals, uint64(i))
	}
	c.Assert(stg.AppendMemberEvent(&types.MemberEvent{RoundID: 2, Account: common.Address{9}}), qt.IsNil)

	events, err := stg.MemberEvents(1, 0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 5)

	events, err = stg.MemberEvents(1, 3, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 2)
	c.Assert(events[0].Seq, qt.Equals, uint64(3))
	c.Assert(events[1].Account, qt.Equals, common.Address{4})

	events, err = stg.MemberEvents(2, 0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 1)
	c.Assert(events[0].Seq, qt.Equals, uint64(1))

	events, err = stg.MemberEvents(7, 0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 0)
}

func TestConsumeRequestOnce(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))
	now := time.Unix(1_700_000_000, 0)

	digest := []byte("request-1")
	c.Assert(stg.ConsumeRequest(digest, now.Add(time.Minute)), qt.IsNil)
	c.Assert(stg.ConsumeRequest(digest, now.Add(time.Minute)), qt.ErrorIs, ErrAlreadyExists)
	c.Assert(stg.ConsumeRequest([]byte("request-2"), now.Add(time.Hour)), qt.IsNil)

	// nothing expired yet
	n, err := stg.PruneRequests(now)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)
	c.Assert(stg.ConsumeRequest(digest, now.Add(time.Minute)), qt.ErrorIs, ErrAlreadyExists)

	n, err = stg.PruneRequests(now.Add(2 * time.Minute))
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)
	c.Assert(stg.ConsumeRequest([]byte("request-2"), now.Add(time.Hour)), qt.ErrorIs, ErrAlreadyExists)
	c.Assert(stg.ConsumeRequest(digest, now.Add(3*time.Minute)), qt.IsNil)
}
