// storage package contains all the artifacts of the rating engine that are
// stored in the database. Artifacts are cbor encoded and kept under the
// following key prefixes:
//   - 'meta/' for counters (last allocated round id)
//   - 'r/' for rounds, keyed by round id
//   - 'w/' for weight configurations, keyed by round id
//   - 'rt/' for ratings, keyed by round id, ratee and rater
//   - 'rn/' for rating counters, keyed by round id and ratee
//   - 'ag/' for aggregates, keyed by round id and ratee
//   - 'ps/' for dimension sums computed outside an aggregate, same keys
//   - 'me/' for member events, keyed by round id and sequence number
//   - 'rq/' for the digests of consumed authenticated requests
//
// Round ids are encoded big-endian so that iteration follows allocation order.
package storage

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/types"
	"go.vocdoni.io/dvote/db"
)

var (
	metaPrefix        = []byte("meta/")
	roundPrefix       = []byte("r/")
	weightsPrefix     = []byte("w/")
	ratingPrefix      = []byte("rt/")
	ratingCountPrefix = []byte("rn/")
	aggregatePrefix   = []byte("ag/")
	partialSumsPrefix = []byte("ps/")
	memberEventPrefix = []byte("me/")

	lastRoundKey = []byte("lastRound")
	eventSeqKey  = []byte("eventSeq/")
)

var (
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique artifact is written twice.
	ErrAlreadyExists = errors.New("already exists")
	// ErrRoundEnded is returned when ending a round twice.
	ErrRoundEnded = errors.New("round already ended")
)

// Storage wraps the key-value database holding the engine state.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the storage.
func (s *Storage) Close() {
	s.db.Close()
}

// DB returns the underlying database, so that other components can share it
// under their own prefixes.
func (s *Storage) DB() db.Database {
	return s.db
}

func roundRateeKey(round types.RoundID, ratee common.Address) []byte {
	k := make([]byte, 0, 8+common.AddressLength)
	k = append(k, round.Bytes()...)
	return append(k, ratee.Bytes()...)
}

func ratingKey(round types.RoundID, ratee, rater common.Address) []byte {
	return append(roundRateeKey(round, ratee), rater.Bytes()...)
}

func prefixed(prefix, key []byte) []byte {
	k := make([]byte, 0, len(prefix)+len(key))
	k = append(k, prefix...)
	return append(k, key...)
}
