// Package fhe defines the confidential-value capability consumed by the
// rating engine and a Runtime implementing it on top of a homomorphic
// arithmetic Backend.
//
// The Runtime keeps a persistent access list: every handle records the
// contexts (engine identities) allowed to compute with it and the accounts
// allowed to decrypt it. Client inputs are bound to a (context, owner) pair by
// an attestation signed with the runtime key, and user decryption requests
// are signed by the requester and answered with values sealed to an X25519
// key the requester provides.
package fhe

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/types"
)

var (
	// ErrInvalidProof is returned when an input attestation does not verify.
	ErrInvalidProof = errors.New("invalid input proof")
	// ErrInvalidInput is returned for malformed inputs or ciphertexts.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownHandle is returned when a handle does not reference a value.
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrNotAllowed is returned when the access list denies an operation.
	ErrNotAllowed = errors.New("operation not allowed")
	// ErrExpiredAuthorization is returned for decryption requests outside
	// their validity window.
	ErrExpiredAuthorization = errors.New("decryption authorization expired or not yet valid")
	// ErrReplayedRequest is returned when a decryption request id is reused.
	ErrReplayedRequest = errors.New("decryption request already served")
	// ErrInvalidSignature is returned when a request signature does not
	// recover to the declared requester.
	ErrInvalidSignature = errors.New("invalid request signature")
)

// Capability is the set of confidential-value operations the engine relies
// on. contextID identifies the computing party. Computed results are only
// usable by the context that computed them, which owns them and may release
// them.
type Capability interface {
	// VerifyInput checks the attestation binding the input handles to
	// contextID and owner, and grants contextID compute rights on them.
	VerifyInput(ctx context.Context, contextID, owner common.Address, in *EncryptedInput) ([]types.Handle, error)
	// Constant returns a fresh handle holding the encryption of v.
	Constant(ctx context.Context, contextID common.Address, v uint64) (types.Handle, error)
	// Add returns a fresh handle holding a+b.
	Add(ctx context.Context, contextID common.Address, a, b types.Handle) (types.Handle, error)
	// Mul returns a fresh handle holding a*b.
	Mul(ctx context.Context, contextID common.Address, a, b types.Handle) (types.Handle, error)
	// Sum returns a fresh handle holding the sum of hs. Only the result is
	// stored.
	Sum(ctx context.Context, contextID common.Address, hs ...types.Handle) (types.Handle, error)
	// Dot returns a fresh handle holding the sum of a[i]*b[i]. Only the
	// result is stored.
	Dot(ctx context.Context, contextID common.Address, a, b []types.Handle) (types.Handle, error)
	// Release deletes computed values owned by contextID together with
	// their access rights.
	Release(ctx context.Context, contextID common.Address, hs ...types.Handle) error
	// Allow grants account the right to decrypt h.
	Allow(ctx context.Context, contextID common.Address, h types.Handle, account common.Address) error
	// UserDecrypt serves a signed decryption request.
	UserDecrypt(ctx context.Context, req *DecryptionRequest) (*SealedResult, error)
}

// EncryptedInput is a batch of client encrypted values together with the
// runtime attestation binding them to a context and an owner.
type EncryptedInput struct {
	Handles []types.Handle `json:"handles" cbor:"0,keyasint"`
	Proof   types.HexBytes `json:"proof"   cbor:"1,keyasint"`
}

// RawInput is what a client submits for registration: serialized
// ciphertexts encrypted under the runtime public parameters.
type RawInput struct {
	ContextID   common.Address   `json:"contextId"`
	Owner       common.Address   `json:"owner"`
	Ciphertexts []types.HexBytes `json:"ciphertexts"`
}

// PublicParams describes how clients must encrypt their inputs.
type PublicParams struct {
	Scheme    string         `json:"scheme"`
	Params    types.HexBytes `json:"params,omitempty"`
	PublicKey types.HexBytes `json:"publicKey,omitempty"`
}

// Backend performs homomorphic arithmetic on values referenced by handles.
// It knows nothing about access control.
type Backend interface {
	// Import stores a client ciphertext and returns its handle.
	Import(ciphertext []byte) (types.Handle, error)
	// Has reports whether the handle references a stored value.
	Has(h types.Handle) bool
	Constant(v uint64) (types.Handle, error)
	Add(a, b types.Handle) (types.Handle, error)
	Mul(a, b types.Handle) (types.Handle, error)
	// Sum and Dot keep the partial results in memory and store only the
	// final value, which never shares its handle with an operand.
	Sum(hs []types.Handle) (types.Handle, error)
	Dot(a, b []types.Handle) (types.Handle, error)
	// Delete removes a stored value.
	Delete(h types.Handle) error
	Decrypt(h types.Handle) (uint64, error)
	PublicParams() *PublicParams
}

// Encryptor is the client side counterpart of a Backend: it produces
// ciphertexts Backend.Import accepts.
type Encryptor interface {
	Encrypt(v uint64) ([]byte, error)
}
