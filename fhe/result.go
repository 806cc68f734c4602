package fhe

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/vocdoni/skillrating/crypto/seal"
	"github.com/vocdoni/skillrating/types"
)

// SealedResult carries revealed values encrypted to the requester key.
type SealedResult struct {
	RequestID uuid.UUID      `json:"requestId"`
	Payload   types.HexBytes `json:"payload"`
}

type revealedValue struct {
	Handle types.Handle `cbor:"0,keyasint"`
	Value  uint64       `cbor:"1,keyasint"`
}

func sealResult(req *DecryptionRequest, values map[types.Handle]uint64) (*SealedResult, error) {
	list := make([]revealedValue, 0, len(req.Handles))
	for _, h := range req.Handles {
		list = append(list, revealedValue{Handle: h, Value: values[h]})
	}
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	data, err := em.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode revealed values: %w", err)
	}
	sealed, err := seal.Seal(req.PublicKey, data, req.ID[:])
	if err != nil {
		return nil, fmt.Errorf("seal revealed values: %w", err)
	}
	return &SealedResult{RequestID: req.ID, Payload: sealed}, nil
}

// OpenResult decrypts a sealed result with the key pair whose public key was
// placed in the decryption request.
func OpenResult(kp *seal.KeyPair, res *SealedResult) (map[types.Handle]uint64, error) {
	if res == nil {
		return nil, fmt.Errorf("nil result")
	}
	data, err := kp.Open(res.Payload, res.RequestID[:])
	if err != nil {
		return nil, err
	}
	var list []revealedValue
	if err := cbor.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode revealed values: %w", err)
	}
	values := make(map[types.Handle]uint64, len(list))
	for _, rv := range list {
		values[rv.Handle] = rv.Value
	}
	return values, nil
}
