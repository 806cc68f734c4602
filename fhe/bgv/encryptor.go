package bgv

import (
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	lbgv "github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"github.com/vocdoni/skillrating/fhe"
)

// Encryptor produces client ciphertexts from the runtime public parameters.
type Encryptor struct {
	params lbgv.Parameters

	mu        sync.Mutex
	encoder   *lbgv.Encoder
	encryptor *rlwe.Encryptor
}

var _ fhe.Encryptor = (*Encryptor)(nil)

// NewEncryptor builds a client encryptor from the parameters published by
// the runtime.
func NewEncryptor(pp *fhe.PublicParams) (*Encryptor, error) {
	if pp == nil || pp.Scheme != Scheme {
		return nil, fmt.Errorf("public parameters are not for scheme %q", Scheme)
	}
	var params lbgv.Parameters
	if err := params.UnmarshalBinary(pp.Params); err != nil {
		return nil, fmt.Errorf("decode bgv parameters: %w", err)
	}
	pk := new(rlwe.PublicKey)
	if err := pk.UnmarshalBinary(pp.PublicKey); err != nil {
		return nil, fmt.Errorf("decode bgv public key: %w", err)
	}
	return &Encryptor{
		params:    params,
		encoder:   lbgv.NewEncoder(params),
		encryptor: rlwe.NewEncryptor(params, pk),
	}, nil
}

// Encrypt returns the serialized encryption of v.
func (e *Encryptor) Encrypt(v uint64) ([]byte, error) {
	if v >= e.params.PlaintextModulus() {
		return nil, fmt.Errorf("value %d does not fit the plaintext modulus", v)
	}
	pt := lbgv.NewPlaintext(e.params, e.params.MaxLevel())
	values := make([]uint64, e.params.MaxSlots())
	values[0] = v

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.encoder.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("encode plaintext: %w", err)
	}
	ct, err := e.encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return ct.MarshalBinary()
}
