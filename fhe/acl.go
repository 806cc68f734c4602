package fhe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	aclComputePrefix = []byte("acl/c/")
	aclDecryptPrefix = []byte("acl/d/")
	aclOwnerPrefix   = []byte("acl/o/")
	requestPrefix    = []byte("req/")

	aclMark = []byte{1}
)

// ACL is the persistent access list of the runtime. Keys are the handle
// followed by the context or account address, except for owners which are
// keyed by handle only.
type ACL struct {
	db db.Database
	mu sync.Mutex
}

// NewACL returns an access list stored in the given database.
func NewACL(database db.Database) *ACL {
	return &ACL{db: database}
}

func aclKey(h types.Handle, addr common.Address) []byte {
	k := make([]byte, 0, types.HandleLen+common.AddressLength)
	k = append(k, h[:]...)
	return append(k, addr.Bytes()...)
}

func (a *ACL) set(prefix []byte, key []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(a.db.WriteTx(), prefix)
	defer wTx.Discard()
	if err := wTx.Set(key, aclMark); err != nil {
		return err
	}
	return wTx.Commit()
}

func (a *ACL) has(prefix []byte, key []byte) bool {
	_, err := prefixeddb.NewPrefixedReader(a.db, prefix).Get(key)
	return err == nil
}

// AllowCompute lets contextID use h as an operand.
func (a *ACL) AllowCompute(h types.Handle, contextID common.Address) error {
	return a.set(aclComputePrefix, aclKey(h, contextID))
}

// CanCompute reports whether contextID may use h as an operand.
func (a *ACL) CanCompute(h types.Handle, contextID common.Address) bool {
	return a.has(aclComputePrefix, aclKey(h, contextID))
}

// AllowDecrypt lets account decrypt h.
func (a *ACL) AllowDecrypt(h types.Handle, account common.Address) error {
	return a.set(aclDecryptPrefix, aclKey(h, account))
}

// CanDecrypt reports whether account may decrypt h.
func (a *ACL) CanDecrypt(h types.Handle, account common.Address) bool {
	return a.has(aclDecryptPrefix, aclKey(h, account))
}

// Adopt lets contextID use h as an operand and records it as the owner of
// h, so that it can release it.
func (a *ACL) Adopt(h types.Handle, contextID common.Address) error {
	wTx := a.db.WriteTx()
	defer wTx.Discard()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, aclComputePrefix).Set(aclKey(h, contextID), aclMark); err != nil {
		return err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, aclOwnerPrefix).Set(h[:], contextID.Bytes()); err != nil {
		return err
	}
	return wTx.Commit()
}

// IsOwner reports whether contextID computed h.
func (a *ACL) IsOwner(h types.Handle, contextID common.Address) bool {
	owner, err := prefixeddb.NewPrefixedReader(a.db, aclOwnerPrefix).Get(h[:])
	return err == nil && common.BytesToAddress(owner) == contextID
}

// Forget removes every right granted on h.
func (a *ACL) Forget(h types.Handle) error {
	var keys [][]byte
	for _, prefix := range [][]byte{aclComputePrefix, aclDecryptPrefix} {
		if err := prefixeddb.NewPrefixedReader(a.db, prefix).Iterate(h[:], func(k, _ []byte) bool {
			keys = append(keys, prefixed(prefix, aclKey(h, common.BytesToAddress(k))))
			return true
		}); err != nil {
			return fmt.Errorf("list rights of %s: %w", h, err)
		}
	}
	keys = append(keys, prefixed(aclOwnerPrefix, h[:]))
	wTx := a.db.WriteTx()
	defer wTx.Discard()
	for _, k := range keys {
		if err := wTx.Delete(k); err != nil {
			return err
		}
	}
	return wTx.Commit()
}

func prefixed(prefix, key []byte) []byte {
	return append(append(make([]byte, 0, len(prefix)+len(key)), prefix...), key...)
}

// ConsumeRequest records a decryption request id, failing with
// ErrReplayedRequest if it was already recorded.
func (a *ACL) ConsumeRequest(id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rTx := prefixeddb.NewPrefixedReader(a.db, requestPrefix)
	if _, err := rTx.Get(id[:]); err == nil {
		return ErrReplayedRequest
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("read request marker: %w", err)
	}
	return a.set(requestPrefix, id[:])
}
