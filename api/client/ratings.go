package client

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/api"
	"github.com/vocdoni/skillrating/crypto/seal"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/fhe/bgv"
	"github.com/vocdoni/skillrating/fhe/mock"
	"github.com/vocdoni/skillrating/reveal"
	"github.com/vocdoni/skillrating/types"
)

// Info returns the service identities.
func (c *HTTPclient) Info() (*api.Info, error) {
	info := &api.Info{}
	return info, c.call(HTTPGET, false, nil, info, nil, api.InfoEndpoint)
}

// Encryptor returns a client encryptor for the runtime the service runs.
func (c *HTTPclient) Encryptor() (fhe.Encryptor, error) {
	params := &fhe.PublicParams{}
	if err := c.call(HTTPGET, false, nil, params, nil, api.FHEKeysEndpoint); err != nil {
		return nil, err
	}
	switch params.Scheme {
	case mock.Scheme:
		return mock.Encryptor{}, nil
	case bgv.Scheme:
		enc, err := bgv.NewEncryptor(params)
		if err != nil {
			return nil, err
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q", params.Scheme)
	}
}

// RegisterInput uploads client ciphertexts and returns the attested input.
func (c *HTTPclient) RegisterInput(raw *fhe.RawInput) (*fhe.EncryptedInput, error) {
	in := &fhe.EncryptedInput{}
	return in, c.call(HTTPPOST, false, raw, in, nil, api.FHEInputsEndpoint)
}

// UserDecrypt sends a signed decryption request and opens the result with
// kp.
func (c *HTTPclient) UserDecrypt(req *fhe.DecryptionRequest, kp *seal.KeyPair) (map[types.Handle]uint64, error) {
	res := &fhe.SealedResult{}
	if err := c.call(HTTPPOST, false, req, res, nil, api.FHEDecryptEndpoint); err != nil {
		return nil, err
	}
	return reveal.Open(kp, res)
}

// CreateRound opens a new round, the signer must be the admin.
func (c *HTTPclient) CreateRound() (*types.Round, error) {
	round := &types.Round{}
	return round, c.call(HTTPPOST, true, nil, round, nil, api.RoundsEndpoint)
}

// CurrentRound returns the current round id.
func (c *HTTPclient) CurrentRound() (types.RoundID, error) {
	cur := &api.CurrentRound{}
	return cur.RoundID, c.call(HTTPGET, false, nil, cur, nil, api.CurrentRoundEndpoint)
}

// Round returns a round.
func (c *HTTPclient) Round(id types.RoundID) (*types.Round, error) {
	round := &types.Round{}
	return round, c.call(HTTPGET, false, nil, round, nil, endpoint(api.RoundEndpoint, api.RoundURLParam, id.String()))
}

// EndRound ends a round, the signer must be the admin.
func (c *HTTPclient) EndRound(id types.RoundID) (*types.Round, error) {
	round := &types.Round{}
	return round, c.call(HTTPPOST, true, nil, round, nil, endpoint(api.EndRoundEndpoint, api.RoundURLParam, id.String()))
}

// AddMembers adds accounts to a round, the signer must be the admin.
func (c *HTTPclient) AddMembers(id types.RoundID, accounts ...common.Address) (int, error) {
	resp := &api.MembersAdded{}
	err := c.call(HTTPPOST, true, &api.Members{Accounts: accounts}, resp, nil,
		endpoint(api.MembersEndpoint, api.RoundURLParam, id.String()))
	return resp.Added, err
}

// Membership returns the membership of account in a round.
func (c *HTTPclient) Membership(id types.RoundID, account common.Address) (*api.Membership, error) {
	resp := &api.Membership{}
	return resp, c.call(HTTPGET, false, nil, resp, nil,
		endpoint(api.MemberEndpoint, api.RoundURLParam, id.String(), api.AddressURLParam, account.Hex()))
}

// MemberEvents pages the membership log of a round.
func (c *HTTPclient) MemberEvents(id types.RoundID, from uint64, limit int) ([]*types.MemberEvent, error) {
	resp := &api.MemberEvents{}
	params := []string{"from", strconv.FormatUint(from, 10), "limit", strconv.Itoa(limit)}
	return resp.Events, c.call(HTTPGET, false, nil, resp, params,
		endpoint(api.MemberEventsEndpoint, api.RoundURLParam, id.String()))
}

// SetWeights encrypts and uploads the weights of a round, the signer must be
// the admin. The weights must add up to types.WeightTotal.
func (c *HTTPclient) SetWeights(id types.RoundID, weights types.Weights) error {
	info, enc, err := c.session()
	if err != nil {
		return err
	}
	raw, err := fhe.WeightsInput(enc, info.ContextID, c.keys.Address(), weights)
	if err != nil {
		return err
	}
	in, err := c.RegisterInput(raw)
	if err != nil {
		return err
	}
	return c.call(HTTPPUT, true, &api.Weights{Input: in}, nil, nil,
		endpoint(api.WeightsEndpoint, api.RoundURLParam, id.String()))
}

// Rate encrypts and submits the signer rating of ratee.
func (c *HTTPclient) Rate(id types.RoundID, ratee common.Address, scores types.Scores) error {
	info, enc, err := c.session()
	if err != nil {
		return err
	}
	raw, err := fhe.ScoresInput(enc, info.ContextID, c.keys.Address(), scores)
	if err != nil {
		return err
	}
	in, err := c.RegisterInput(raw)
	if err != nil {
		return err
	}
	return c.call(HTTPPOST, true, &api.Rating{Ratee: ratee, Input: in}, nil, nil,
		endpoint(api.RatingsEndpoint, api.RoundURLParam, id.String()))
}

// RateeRatings returns the rating count and the raters of ratee.
func (c *HTTPclient) RateeRatings(id types.RoundID, ratee common.Address) (*api.RateeRatings, error) {
	resp := &api.RateeRatings{}
	return resp, c.call(HTTPGET, false, nil, resp, nil,
		endpoint(api.RateeRatingsEndpoint, api.RoundURLParam, id.String(), api.RateeURLParam, ratee.Hex()))
}

// CalculateWeightedScore asks the service to aggregate the ratings of ratee.
func (c *HTTPclient) CalculateWeightedScore(id types.RoundID, ratee common.Address) (types.Handle, error) {
	resp := &api.Score{}
	err := c.call(HTTPPOST, false, nil, resp, nil,
		endpoint(api.ScoreEndpoint, api.RoundURLParam, id.String(), api.RateeURLParam, ratee.Hex()))
	return resp.WeightedTotal, err
}

// Aggregate returns the last aggregate computed for ratee.
func (c *HTTPclient) Aggregate(id types.RoundID, ratee common.Address) (*types.Aggregate, error) {
	agg := &types.Aggregate{}
	return agg, c.call(HTTPGET, false, nil, agg, nil,
		endpoint(api.ScoreEndpoint, api.RoundURLParam, id.String(), api.RateeURLParam, ratee.Hex()))
}

// RevealScores decrypts the signer own aggregate in a round and finalizes it.
func (c *HTTPclient) RevealScores(id types.RoundID) (*reveal.Scores, error) {
	if c.keys == nil {
		return nil, fmt.Errorf("no signer configured")
	}
	agg, err := c.Aggregate(id, c.keys.Address())
	if err != nil {
		return nil, err
	}
	info, err := c.Info()
	if err != nil {
		return nil, err
	}
	kp, err := seal.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	req := fhe.NewDecryptionRequest(c.keys.Address(), []common.Address{info.ContextID},
		append(agg.DimensionSums.Slice(), agg.WeightedTotal), kp.PublicKey(), 1)
	if err := req.Sign(c.keys); err != nil {
		return nil, err
	}
	values, err := c.UserDecrypt(req, kp)
	if err != nil {
		return nil, err
	}
	return reveal.Aggregate(agg, values)
}

// session returns the service info and an encryptor for it. A signer is
// required since inputs are bound to their owner.
func (c *HTTPclient) session() (*api.Info, fhe.Encryptor, error) {
	if c.keys == nil {
		return nil, nil, fmt.Errorf("no signer configured")
	}
	info, err := c.Info()
	if err != nil {
		return nil, nil, err
	}
	enc, err := c.Encryptor()
	if err != nil {
		return nil, nil, err
	}
	return info, enc, nil
}
