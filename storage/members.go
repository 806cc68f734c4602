package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/vocdoni/skillrating/types"
)

// DefaultEventsLimit caps MemberEvents when no limit is requested.
const DefaultEventsLimit = 100

func eventKey(round types.RoundID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(round.Bytes(), seq)
}

// AppendMemberEvent assigns the next per-round sequence number to ev and
// appends it to the round event log.
func (s *Storage) AppendMemberEvent(ev *types.MemberEvent) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	seqKey := prefixed(metaPrefix, append(append([]byte{}, eventSeqKey...), ev.RoundID.Bytes()...))
	seq, err := getUint64(wTx, seqKey)
	if err != nil {
		return err
	}
	ev.Seq = seq + 1
	data, err := encodeArtifact(ev)
	if err != nil {
		return err
	}
	if err := wTx.Set(prefixed(memberEventPrefix, eventKey(ev.RoundID, ev.Seq)), data); err != nil {
		return err
	}
	if err := setUint64(wTx, seqKey, ev.Seq); err != nil {
		return err
	}
	return wTx.Commit()
}

// MemberEvents returns up to limit events of a round with a sequence number
// greater than or equal to from, in order.
func (s *Storage) MemberEvents(round types.RoundID, from uint64, limit int) ([]*types.MemberEvent, error) {
	if limit <= 0 {
		limit = DefaultEventsLimit
	}
	events := []*types.MemberEvent{}
	var decodeErr error
	if err := s.iterateArtifacts(memberEventPrefix, round.Bytes(), func(k, v []byte) bool {
		if len(k) != 8 || binary.BigEndian.Uint64(k) < from {
			return true
		}
		ev := &types.MemberEvent{}
		if decodeErr = decodeArtifact(v, ev); decodeErr != nil {
			return false
		}
		events = append(events, ev)
		return len(events) < limit
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode member event: %w", decodeErr)
	}
	return events, nil
}
