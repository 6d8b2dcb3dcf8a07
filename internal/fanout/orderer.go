package fanout

import (
	"sort"
	"sync"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
)

// orderer releases the events of one topic in sequence order. Events that
// arrive ahead of a gap wait up to window for the gap to fill; after that
// they are released anyway and subscribers detect the gap themselves.
type orderer struct {
	mu       sync.Mutex
	next     uint64 // 0 until the first event is seen
	pending  map[uint64]events.Event
	timer    *time.Timer
	gen      uint64 // bumped whenever timer is stopped
	window   time.Duration
	dispatch func(events.Event)
	lastUsed time.Time
}

func newOrderer(window time.Duration, dispatch func(events.Event)) *orderer {
	return &orderer{
		pending:  make(map[uint64]events.Event),
		window:   window,
		dispatch: dispatch,
	}
}

func (o *orderer) push(ev events.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastUsed = time.Now()

	switch {
	case o.next == 0 || ev.Seq == o.next:
		o.emit(ev)
		o.drain()
	case ev.Seq < o.next:
		// already released
	default:
		o.pending[ev.Seq] = ev
		if o.timer == nil {
			g := o.gen
			o.timer = time.AfterFunc(o.window, func() { o.flush(g) })
		}
	}
}

func (o *orderer) emit(ev events.Event) {
	o.dispatch(ev)
	o.next = ev.Seq + 1
}

func (o *orderer) drain() {
	for {
		ev, ok := o.pending[o.next]
		if !ok {
			break
		}
		delete(o.pending, o.next)
		o.emit(ev)
	}
	if len(o.pending) == 0 && o.timer != nil {
		o.timer.Stop()
		o.timer = nil
		o.gen++
	}
}

// flush gives up on the current gap and releases everything buffered. A
// timer stopped too late to prevent its callback carries an old gen and
// must not release a newer gap early.
func (o *orderer) flush(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return
	}
	o.timer = nil
	o.gen++

	seqs := make([]uint64, 0, len(o.pending))
	for s := range o.pending {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for _, s := range seqs {
		ev := o.pending[s]
		delete(o.pending, s)
		if s >= o.next {
			o.emit(ev)
		}
	}
}

func (o *orderer) idleSince(t time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending) == 0 && o.lastUsed.Before(t)
}
