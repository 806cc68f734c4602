package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/skillrating/api"
	"github.com/vocdoni/skillrating/api/client"
	"github.com/vocdoni/skillrating/config"
	"github.com/vocdoni/skillrating/crypto/ethereum"
	"github.com/vocdoni/skillrating/engine"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/fhe/bgv"
	"github.com/vocdoni/skillrating/fhe/mock"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/reveal"
	"github.com/vocdoni/skillrating/service"
	"github.com/vocdoni/skillrating/storage"
	"github.com/vocdoni/skillrating/types"
)

var defaultWeights = types.Weights{40, 15, 10, 30, 5}

func main() {
	remote := flag.String("url", "", "rating service to test against, an in memory one is started when empty")
	adminKey := flag.String("admin-key", "", "admin private key of the remote service")
	runtime := flag.String("runtime", config.RuntimeMock, "runtime of the in memory service (bgv or mock)")
	nMembers := flag.Int("members", 4, "number of members rating each other")

	flag.Parse()
	log.Init("debug", "stdout", nil)

	if *nMembers < 2 {
		log.Fatal("at least two members are needed")
	}

	admin := ethereum.NewSignKeys()
	if *adminKey != "" {
		if err := admin.AddHexKey(*adminKey); err != nil {
			log.Fatal(err)
		}
	} else if err := admin.Generate(); err != nil {
		log.Fatal(err)
	}

	url := *remote
	if url == "" {
		srv, err := startService(admin.Address(), *runtime)
		if err != nil {
			log.Fatal(err)
		}
		defer srv.Stop()
		host, port := srv.HostPort()
		url = fmt.Sprintf("http://%s:%d", host, port)
		log.Infow("in memory service started", "url", url, "runtime", *runtime)
	}

	start := time.Now()
	if err := scenario(url, admin, *nMembers); err != nil {
		log.Fatal(err)
	}
	log.Infow("scenario completed", "members", *nMembers, "elapsed", time.Since(start).String())
}

func startService(admin common.Address, runtime string) (*service.APIService, error) {
	database := memdb.New()
	var backend fhe.Backend = mock.New()
	if runtime == config.RuntimeBGV {
		b, err := bgv.New(database)
		if err != nil {
			return nil, err
		}
		backend = b
	}
	signer := ethereum.NewSignKeys()
	if err := signer.Generate(); err != nil {
		return nil, err
	}
	rt, err := fhe.NewRuntime(backend, database, signer)
	if err != nil {
		return nil, err
	}
	stg := storage.New(database)
	eng, err := engine.New(stg, rt, engine.Config{Admin: admin})
	if err != nil {
		return nil, err
	}
	srv := service.NewAPI(stg, eng, rt, "127.0.0.1", 0)
	return srv, srv.Start(context.Background())
}

func newClient(url string, keys *ethereum.SignKeys) (*client.HTTPclient, error) {
	cli, err := client.New(url)
	if err != nil {
		return nil, err
	}
	cli.SetSigner(keys)
	return cli, nil
}

func scenario(url string, adminKeys *ethereum.SignKeys, nMembers int) error {
	admin, err := newClient(url, adminKeys)
	if err != nil {
		return err
	}
	round, err := admin.CreateRound()
	if err != nil {
		return err
	}
	log.Infow("round created", "round", round.ID.String())

	members := make([]*client.HTTPclient, nMembers)
	addrs := make([]common.Address, nMembers)
	for i := range members {
		keys := ethereum.NewSignKeys()
		if err := keys.Generate(); err != nil {
			return err
		}
		if members[i], err = newClient(url, keys); err != nil {
			return err
		}
		addrs[i] = keys.Address()
	}
	added, err := admin.AddMembers(round.ID, addrs...)
	if err != nil {
		return err
	}
	if added != nMembers {
		return fmt.Errorf("added %d members, expected %d", added, nMembers)
	}
	if err := admin.SetWeights(round.ID, defaultWeights); err != nil {
		return err
	}
	log.Infow("members and weights set", "members", added)

	// every member rates every other member, the expected results are
	// tracked in plaintext
	sums := make([][types.NumDimensions]uint64, nMembers)
	totals := make([]uint64, nMembers)
	for i, rater := range members {
		for j := range members {
			if i == j {
				continue
			}
			var scores types.Scores
			for d := range scores {
				scores[d] = types.MinScore + rand.Uint64N(types.MaxScore-types.MinScore+1)
				sums[j][d] += scores[d]
				totals[j] += scores[d] * defaultWeights[d]
			}
			if err := rater.Rate(round.ID, addrs[j], scores); err != nil {
				return fmt.Errorf("member %d rating %d: %w", i, j, err)
			}
		}
	}
	log.Infow("ratings submitted", "count", nMembers*(nMembers-1))

	err = members[0].Rate(round.ID, addrs[1], types.Scores{5, 5, 5, 5, 5})
	if !client.IsCode(err, api.ErrDuplicateRating.Code) {
		return fmt.Errorf("duplicate rating not refused: %v", err)
	}

	for i, m := range members {
		if _, err := m.CalculateWeightedScore(round.ID, addrs[i]); err != nil {
			return err
		}
		got, err := m.RevealScores(round.ID)
		if err != nil {
			return err
		}
		want, err := reveal.Finalize(sums[i], totals[i], uint64(nMembers-1))
		if err != nil {
			return err
		}
		if *got != *want {
			return fmt.Errorf("member %d revealed %+v, expected %+v", i, got, want)
		}
		log.Infow("scores revealed", "member", addrs[i].Hex(), "weighted", got.Weighted, "averages", got.Averages)
	}

	if _, err := admin.EndRound(round.ID); err != nil {
		return err
	}
	err = members[1].Rate(round.ID, addrs[0], types.Scores{5, 5, 5, 5, 5})
	if err == nil {
		return fmt.Errorf("rating accepted on an ended round")
	}
	log.Infow("round ended", "round", round.ID.String())
	return nil
}
