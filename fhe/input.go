package fhe

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/types"
)

// InputBuilder collects plaintext values on the client and encrypts them into
// a RawInput bound to a context and an owner.
//
//	raw, err := fhe.CreateEncryptedInput(enc, engineID, me).Add(8).Add(7).Encrypt()
type InputBuilder struct {
	enc       Encryptor
	contextID common.Address
	owner     common.Address
	values    []uint64
}

// CreateEncryptedInput starts a new input for (contextID, owner).
func CreateEncryptedInput(enc Encryptor, contextID, owner common.Address) *InputBuilder {
	return &InputBuilder{enc: enc, contextID: contextID, owner: owner}
}

// Add appends a value to the input.
func (b *InputBuilder) Add(v uint64) *InputBuilder {
	b.values = append(b.values, v)
	return b
}

// Encrypt encrypts every value added so far.
func (b *InputBuilder) Encrypt() (*RawInput, error) {
	if len(b.values) == 0 {
		return nil, fmt.Errorf("%w: no values added", ErrInvalidInput)
	}
	raw := &RawInput{ContextID: b.contextID, Owner: b.owner}
	for i, v := range b.values {
		ct, err := b.enc.Encrypt(v)
		if err != nil {
			return nil, fmt.Errorf("encrypt value %d: %w", i, err)
		}
		raw.Ciphertexts = append(raw.Ciphertexts, types.HexBytes(ct))
	}
	return raw, nil
}

// ScoresInput encrypts a rating after checking it against the score range.
func ScoresInput(enc Encryptor, contextID, rater common.Address, s types.Scores) (*RawInput, error) {
	if err := types.ValidateScores(s); err != nil {
		return nil, err
	}
	b := CreateEncryptedInput(enc, contextID, rater)
	for _, v := range s {
		b.Add(v)
	}
	return b.Encrypt()
}

// WeightsInput encrypts a weight vector after checking that it adds up to
// the weight total.
func WeightsInput(enc Encryptor, contextID, admin common.Address, w types.Weights) (*RawInput, error) {
	if err := types.ValidateWeights(w); err != nil {
		return nil, err
	}
	b := CreateEncryptedInput(enc, contextID, admin)
	for _, v := range w {
		b.Add(v)
	}
	return b.Encrypt()
}
