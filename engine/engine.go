// Package engine implements the rating rounds: their lifecycle, the
// membership of every round, the confidential weights, the rating ledger and
// the aggregation of ratings over confidential values.
//
// The engine never sees a plaintext score or weight. Every value it handles is
// a fhe handle, and arithmetic happens through the injected fhe.Capability
// under the engine context identity.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/storage"
	"github.com/vocdoni/skillrating/storage/census"
)

// Config holds the identities the engine runs with.
type Config struct {
	// Admin is the only account allowed to manage rounds, members and
	// weights. It cannot be changed after construction.
	Admin common.Address
	// ContextID is the identity the engine uses towards the capability.
	// DefaultContextID is used when empty.
	ContextID common.Address
	// MaxSubscribers caps the live member event subscriptions,
	// DefaultMaxSubscribers is used when zero.
	MaxSubscribers int
}

// DefaultMaxSubscribers is the default cap of live member event
// subscriptions.
const DefaultMaxSubscribers = 256

// DefaultContextID is the capability context used when none is configured.
var DefaultContextID = common.BytesToAddress(crypto.Keccak256([]byte("skillrating/engine")))

// Engine is safe for concurrent use.
type Engine struct {
	stg        *storage.Storage
	rosters    *census.RosterDB
	capability fhe.Capability
	admin      common.Address
	contextID  common.Address

	// roundsLock orders round table changes against the operations that
	// depend on a round state.
	roundsLock sync.RWMutex
	ledger     *keyedMutex
	events     *broker
	now        func() time.Time
}

// New creates an engine on top of stg. Rosters share the storage database.
func New(stg *storage.Storage, capability fhe.Capability, conf Config) (*Engine, error) {
	if stg == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if capability == nil {
		return nil, fmt.Errorf("capability cannot be nil")
	}
	if conf.Admin == (common.Address{}) {
		return nil, fmt.Errorf("admin address cannot be empty")
	}
	if conf.ContextID == (common.Address{}) {
		conf.ContextID = DefaultContextID
	}
	if conf.MaxSubscribers <= 0 {
		conf.MaxSubscribers = DefaultMaxSubscribers
	}
	return &Engine{
		stg:        stg,
		rosters:    census.NewRosterDB(stg.DB()),
		capability: capability,
		admin:      conf.Admin,
		contextID:  conf.ContextID,
		ledger:     newKeyedMutex(),
		events:     newBroker(conf.MaxSubscribers),
		now:        time.Now,
	}, nil
}

// ContextID returns the identity the engine computes under. Clients bind
// their encrypted inputs to it.
func (e *Engine) ContextID() common.Address {
	return e.contextID
}

// SetClock overrides the clock used to timestamp records.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}
