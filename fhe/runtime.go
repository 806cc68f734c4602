package fhe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/crypto/ethereum"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/db"
)

// MaxInputsPerRegistration bounds the number of ciphertexts in one input.
const MaxInputsPerRegistration = 16

// Runtime implements Capability over a Backend. It is safe for concurrent
// use as long as the Backend is.
type Runtime struct {
	backend Backend
	acl     *ACL
	signer  *ethereum.SignKeys
	now     func() time.Time
}

var _ Capability = (*Runtime)(nil)

// NewRuntime creates a runtime. The signer attests registered inputs, the
// database holds the access list.
func NewRuntime(backend Backend, database db.Database, signer *ethereum.SignKeys) (*Runtime, error) {
	if backend == nil || database == nil || signer == nil {
		return nil, fmt.Errorf("runtime needs a backend, a database and a signer")
	}
	return &Runtime{
		backend: backend,
		acl:     NewACL(database),
		signer:  signer,
		now:     time.Now,
	}, nil
}

// SetClock overrides the clock used to validate decryption windows.
func (r *Runtime) SetClock(now func() time.Time) {
	r.now = now
}

// Signer returns the address attesting registered inputs.
func (r *Runtime) Signer() common.Address {
	return r.signer.Address()
}

// PublicParams returns the parameters clients need to encrypt inputs.
func (r *Runtime) PublicParams() *PublicParams {
	return r.backend.PublicParams()
}

// attestationMessage is the payload signed by the runtime to bind handles to
// a context and an owner.
func attestationMessage(contextID, owner common.Address, handles []types.Handle) []byte {
	buf := make([]byte, 0, 2*common.AddressLength+len(handles)*types.HandleLen)
	buf = append(buf, contextID.Bytes()...)
	buf = append(buf, owner.Bytes()...)
	for _, h := range handles {
		buf = append(buf, h[:]...)
	}
	return ethereum.HashRaw(buf)
}

// RegisterInput imports client ciphertexts and returns their handles with
// an attestation for (ContextID, Owner).
func (r *Runtime) RegisterInput(ctx context.Context, in *RawInput) (*EncryptedInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in == nil || len(in.Ciphertexts) == 0 {
		return nil, fmt.Errorf("%w: no ciphertexts", ErrInvalidInput)
	}
	if len(in.Ciphertexts) > MaxInputsPerRegistration {
		return nil, fmt.Errorf("%w: too many ciphertexts (%d)", ErrInvalidInput, len(in.Ciphertexts))
	}
	handles := make([]types.Handle, 0, len(in.Ciphertexts))
	for i, ct := range in.Ciphertexts {
		h, err := r.backend.Import(ct)
		if err != nil {
			return nil, fmt.Errorf("%w: ciphertext %d: %v", ErrInvalidInput, i, err)
		}
		handles = append(handles, h)
	}
	proof, err := r.signer.SignEthereum(attestationMessage(in.ContextID, in.Owner, handles))
	if err != nil {
		return nil, fmt.Errorf("sign attestation: %w", err)
	}
	log.Debugw("input registered", "context", in.ContextID.Hex(), "owner", in.Owner.Hex(), "handles", len(handles))
	return &EncryptedInput{Handles: handles, Proof: proof}, nil
}

// VerifyInput implements Capability.
func (r *Runtime) VerifyInput(ctx context.Context, contextID, owner common.Address, in *EncryptedInput) ([]types.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in == nil || len(in.Handles) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidInput)
	}
	signer, err := ethereum.AddrFromSignature(attestationMessage(contextID, owner, in.Handles), in.Proof)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if signer != r.signer.Address() {
		return nil, fmt.Errorf("%w: attested by %s", ErrInvalidProof, signer.Hex())
	}
	for _, h := range in.Handles {
		if !r.backend.Has(h) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
		}
		if err := r.acl.AllowCompute(h, contextID); err != nil {
			return nil, fmt.Errorf("grant compute: %w", err)
		}
	}
	return append([]types.Handle(nil), in.Handles...), nil
}

// Constant implements Capability.
func (r *Runtime) Constant(ctx context.Context, contextID common.Address, v uint64) (types.Handle, error) {
	if err := ctx.Err(); err != nil {
		return types.Handle{}, err
	}
	h, err := r.backend.Constant(v)
	if err != nil {
		return types.Handle{}, err
	}
	return h, r.acl.Adopt(h, contextID)
}

// Add implements Capability.
func (r *Runtime) Add(ctx context.Context, contextID common.Address, a, b types.Handle) (types.Handle, error) {
	return r.binary(ctx, contextID, a, b, r.backend.Add)
}

// Mul implements Capability.
func (r *Runtime) Mul(ctx context.Context, contextID common.Address, a, b types.Handle) (types.Handle, error) {
	return r.binary(ctx, contextID, a, b, r.backend.Mul)
}

func (r *Runtime) binary(ctx context.Context, contextID common.Address, a, b types.Handle,
	op func(a, b types.Handle) (types.Handle, error),
) (types.Handle, error) {
	if err := ctx.Err(); err != nil {
		return types.Handle{}, err
	}
	if err := r.checkCompute(contextID, a, b); err != nil {
		return types.Handle{}, err
	}
	res, err := op(a, b)
	if err != nil {
		return types.Handle{}, err
	}
	return res, r.acl.Adopt(res, contextID)
}

// Sum implements Capability.
func (r *Runtime) Sum(ctx context.Context, contextID common.Address, hs ...types.Handle) (types.Handle, error) {
	if err := ctx.Err(); err != nil {
		return types.Handle{}, err
	}
	if len(hs) == 0 {
		return types.Handle{}, fmt.Errorf("%w: nothing to sum", ErrInvalidInput)
	}
	if err := r.checkCompute(contextID, hs...); err != nil {
		return types.Handle{}, err
	}
	res, err := r.backend.Sum(hs)
	if err != nil {
		return types.Handle{}, err
	}
	return res, r.acl.Adopt(res, contextID)
}

// Dot implements Capability.
func (r *Runtime) Dot(ctx context.Context, contextID common.Address, a, b []types.Handle) (types.Handle, error) {
	if err := ctx.Err(); err != nil {
		return types.Handle{}, err
	}
	if len(a) == 0 || len(a) != len(b) {
		return types.Handle{}, fmt.Errorf("%w: dot product of %d and %d values", ErrInvalidInput, len(a), len(b))
	}
	if err := r.checkCompute(contextID, append(append([]types.Handle{}, a...), b...)...); err != nil {
		return types.Handle{}, err
	}
	res, err := r.backend.Dot(a, b)
	if err != nil {
		return types.Handle{}, err
	}
	return res, r.acl.Adopt(res, contextID)
}

// Release implements Capability. Client inputs have no owner and cannot be
// released.
func (r *Runtime) Release(ctx context.Context, contextID common.Address, hs ...types.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, h := range hs {
		if !r.acl.IsOwner(h, contextID) {
			return fmt.Errorf("%w: %s does not own %s", ErrNotAllowed, contextID.Hex(), h)
		}
	}
	for _, h := range hs {
		if err := r.backend.Delete(h); err != nil && !errors.Is(err, ErrUnknownHandle) {
			return fmt.Errorf("delete %s: %w", h, err)
		}
		if err := r.acl.Forget(h); err != nil {
			return fmt.Errorf("forget %s: %w", h, err)
		}
	}
	log.Debugw("values released", "context", contextID.Hex(), "handles", len(hs))
	return nil
}

func (r *Runtime) checkCompute(contextID common.Address, hs ...types.Handle) error {
	for _, h := range hs {
		if !r.acl.CanCompute(h, contextID) {
			return fmt.Errorf("%w: %s cannot compute with %s", ErrNotAllowed, contextID.Hex(), h)
		}
	}
	return nil
}

// Allow implements Capability. Only a context with compute rights on h can
// grant decryption.
func (r *Runtime) Allow(ctx context.Context, contextID common.Address, h types.Handle, account common.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.acl.CanCompute(h, contextID) {
		return fmt.Errorf("%w: %s does not own %s", ErrNotAllowed, contextID.Hex(), h)
	}
	return r.acl.AllowDecrypt(h, account)
}

// UserDecrypt implements Capability. Every handle must be decryptable by the
// requester and owned by one of the listed contexts.
func (r *Runtime) UserDecrypt(ctx context.Context, req *DecryptionRequest) (*SealedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidInput)
	}
	if err := req.Verify(r.now()); err != nil {
		return nil, err
	}
	for _, h := range req.Handles {
		if !r.acl.CanDecrypt(h, req.Requester) {
			return nil, fmt.Errorf("%w: %s cannot decrypt %s", ErrNotAllowed, req.Requester.Hex(), h)
		}
		owned := false
		for _, c := range req.ContextIDs {
			if r.acl.CanCompute(h, c) {
				owned = true
				break
			}
		}
		if !owned {
			return nil, fmt.Errorf("%w: %s is not bound to the listed contexts", ErrNotAllowed, h)
		}
	}
	if err := r.acl.ConsumeRequest(req.ID); err != nil {
		return nil, err
	}
	values := make(map[types.Handle]uint64, len(req.Handles))
	for _, h := range req.Handles {
		v, err := r.backend.Decrypt(h)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", h, err)
		}
		values[h] = v
	}
	res, err := sealResult(req, values)
	if err != nil {
		return nil, err
	}
	log.Infow("user decryption served", "requester", req.Requester.Hex(), "handles", len(values), "id", req.ID.String())
	return res, nil
}
