package fhe

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/skillrating/crypto/ethereum"
	"github.com/vocdoni/skillrating/types"
)

const (
	// MaxDurationDays bounds the validity window of a decryption request.
	MaxDurationDays = 365
	// MaxClockSkew tolerates requesters whose clock runs ahead.
	MaxClockSkew = 5 * time.Minute

	secondsPerDay = 24 * 60 * 60
)

// DecryptionRequest asks the runtime to reveal a set of handles to the
// requester. The signature covers every field but itself.
type DecryptionRequest struct {
	ID             uuid.UUID        `json:"id"`
	Requester      common.Address   `json:"requester"`
	ContextIDs     []common.Address `json:"contextIds"`
	Handles        []types.Handle   `json:"handles"`
	PublicKey      types.HexBytes   `json:"publicKey"`
	StartTimestamp int64            `json:"startTimestamp"`
	DurationDays   int64            `json:"durationDays"`
	Signature      types.HexBytes   `json:"signature"`
}

// NewDecryptionRequest builds an unsigned request valid from now for the
// given number of days.
func NewDecryptionRequest(requester common.Address, contextIDs []common.Address,
	handles []types.Handle, publicKey []byte, durationDays int64,
) *DecryptionRequest {
	return &DecryptionRequest{
		ID:             uuid.New(),
		Requester:      requester,
		ContextIDs:     contextIDs,
		Handles:        handles,
		PublicKey:      publicKey,
		StartTimestamp: time.Now().Unix(),
		DurationDays:   durationDays,
	}
}

// Message returns the human readable payload the requester signs.
func (r *DecryptionRequest) Message() []byte {
	var sb strings.Builder
	sb.WriteString("skillrating user decrypt\n")
	fmt.Fprintf(&sb, "id: %s\n", r.ID)
	fmt.Fprintf(&sb, "requester: %s\n", r.Requester.Hex())
	for _, c := range r.ContextIDs {
		fmt.Fprintf(&sb, "context: %s\n", c.Hex())
	}
	for _, h := range r.Handles {
		fmt.Fprintf(&sb, "handle: %s\n", h)
	}
	fmt.Fprintf(&sb, "publicKey: %x\n", []byte(r.PublicKey))
	fmt.Fprintf(&sb, "start: %d\n", r.StartTimestamp)
	fmt.Fprintf(&sb, "days: %d", r.DurationDays)
	return []byte(sb.String())
}

// Sign sets the request signature using the requester keys.
func (r *DecryptionRequest) Sign(keys *ethereum.SignKeys) error {
	if keys.Address() != r.Requester {
		return fmt.Errorf("signer %s is not the requester %s", keys.Address(), r.Requester)
	}
	sig, err := keys.SignEthereum(r.Message())
	if err != nil {
		return err
	}
	r.Signature = sig
	return nil
}

// Verify checks the request shape, its signature and that now falls inside
// the validity window.
func (r *DecryptionRequest) Verify(now time.Time) error {
	if len(r.Handles) == 0 || len(r.ContextIDs) == 0 {
		return fmt.Errorf("%w: request needs handles and contexts", ErrInvalidInput)
	}
	if len(r.PublicKey) != 32 {
		return fmt.Errorf("%w: public key must be 32 bytes", ErrInvalidInput)
	}
	if r.DurationDays <= 0 || r.DurationDays > MaxDurationDays {
		return fmt.Errorf("%w: duration of %d days", ErrInvalidInput, r.DurationDays)
	}
	signer, err := ethereum.AddrFromSignature(r.Message(), r.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != r.Requester {
		return fmt.Errorf("%w: recovered %s", ErrInvalidSignature, signer.Hex())
	}
	start := time.Unix(r.StartTimestamp, 0)
	end := start.Add(time.Duration(r.DurationDays) * secondsPerDay * time.Second)
	if now.Add(MaxClockSkew).Before(start) || !now.Before(end) {
		return ErrExpiredAuthorization
	}
	return nil
}
