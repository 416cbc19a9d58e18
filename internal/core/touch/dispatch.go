package touch

import "github.com/zeusync/substrate/internal/core/observability/log"

// Events raised while the table is being mutated are always queued; they are
// dispatched once the outermost operation finishes, or at Flush when buffering.

func (t *Table) emit(ev Event) {
	if ev.Kind == StartTouch {
		t.stats.Starts++
	} else {
		t.stats.Ends++
	}
	t.pending = append(t.pending, ev)
}

func (t *Table) hold() {
	t.holds++
}

func (t *Table) release() {
	t.holds--
	if t.holds == 0 && !t.buffer {
		t.Flush()
	}
}

// Pending returns the number of queued events.
func (t *Table) Pending() int {
	return len(t.pending)
}

// Flush dispatches queued events. Events raised by handlers during the flush
// join the queue and are drained in later batches of the same call. A nested
// call returns immediately.
func (t *Table) Flush() int {
	if t.flushing {
		return 0
	}
	t.flushing = true
	defer func() { t.flushing = false }()

	n := 0
	for len(t.pending) > 0 {
		batch := t.pending
		t.pending = nil
		for _, ev := range batch {
			if t.fire(ev) {
				n++
			}
		}
	}
	return n
}

func (t *Table) fire(ev Event) bool {
	if t.life != nil && !t.life.IsAlive(ev.Self) {
		t.stats.Dropped++
		return false
	}
	r := t.record(ev.Self)
	if r == nil || r.handler == nil {
		if r == nil {
			t.stats.Dropped++
			t.logger.Debug("dropping touch event for removed entity",
				log.Stringer("kind", ev.Kind), log.Stringer("entity", ev.Self), log.Stringer("other", ev.Other))
		}
		return false
	}

	t.stats.Dispatched++
	switch ev.Kind {
	case StartTouch:
		r.handler.StartTouch(ev.Self, ev.Other)
	case EndTouch:
		r.handler.EndTouch(ev.Self, ev.Other)
	}
	return true
}
