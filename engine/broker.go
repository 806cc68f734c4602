package engine

import (
	"fmt"
	"sync"

	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/types"
)

// subscriberBuffer is the number of events a slow subscriber may lag behind
// before events are dropped for it.
const subscriberBuffer = 64

// broker fans member events out to live subscribers. Publishing never
// blocks: a subscriber with a full buffer misses the event and has to catch
// up through the persisted event log.
type broker struct {
	mu    sync.Mutex
	limit int
	subs  map[chan types.MemberEvent]struct{}
}

func newBroker(limit int) *broker {
	return &broker{limit: limit, subs: make(map[chan types.MemberEvent]struct{})}
}

func (b *broker) subscribe() (chan types.MemberEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) >= b.limit {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySubscribers, b.limit)
	}
	ch := make(chan types.MemberEvent, subscriberBuffer)
	b.subs[ch] = struct{}{}
	return ch, nil
}

func (b *broker) unsubscribe(ch chan types.MemberEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *broker) publish(ev types.MemberEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warnw("member event dropped for slow subscriber",
				"round", ev.RoundID.String(), "seq", ev.Seq)
		}
	}
}
