package storage

import (
	"encoding/binary"
	"errors"
	"time"

	"go.vocdoni.io/dvote/db"
)

var (
	// requestPrefix maps a request digest to its expiry
	requestPrefix = []byte("rq/d/")
	// requestExpiryPrefix indexes the digests by big-endian expiry, so
	// pruning walks them oldest first
	requestExpiryPrefix = []byte("rq/e/")
)

func requestExpiryKey(expiresAt time.Time, digest []byte) []byte {
	k := binary.BigEndian.AppendUint64(nil, uint64(expiresAt.Unix()))
	return append(k, digest...)
}

// ConsumeRequest records the digest of an authenticated request until
// expiresAt. It returns ErrAlreadyExists if the digest is already recorded.
func (s *Storage) ConsumeRequest(digest []byte, expiresAt time.Time) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	key := prefixed(requestPrefix, digest)
	if _, err := wTx.Get(key); err == nil {
		return ErrAlreadyExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}
	if err := setUint64(wTx, key, uint64(expiresAt.Unix())); err != nil {
		return err
	}
	if err := wTx.Set(prefixed(requestExpiryPrefix, requestExpiryKey(expiresAt, digest)), nil); err != nil {
		return err
	}
	return wTx.Commit()
}

// PruneRequests forgets the request digests that expired before now and
// returns how many were removed.
func (s *Storage) PruneRequests(now time.Time) (int, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var expired [][]byte
	if err := s.iterateArtifacts(requestExpiryPrefix, nil, func(k, _ []byte) bool {
		if len(k) < 8 || int64(binary.BigEndian.Uint64(k[:8])) >= now.Unix() {
			return false
		}
		expired = append(expired, append([]byte{}, k...))
		return true
	}); err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	for _, k := range expired {
		if err := wTx.Delete(prefixed(requestExpiryPrefix, k)); err != nil {
			return 0, err
		}
		if err := wTx.Delete(prefixed(requestPrefix, k[8:])); err != nil {
			return 0, err
		}
	}
	if err := wTx.Commit(); err != nil {
		return 0, err
	}
	return len(expired), nil
}
