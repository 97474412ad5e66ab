package asynchook

import (
	"errors"
	"sync"
	"testing"

	"github.com/unkn0wn-root/recordcache"
)

type recorder struct {
	recordcache.NopHooks
	mu     sync.Mutex
	events []string
	block  chan struct{}
}

func (r *recorder) add(ev string) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) SelfHeal(k, reason string)         { r.add("self_heal:" + k + ":" + reason) }
func (r *recorder) WriteFailed(k, op string, _ error) { r.add("write_failed:" + k + ":" + op) }

func TestEventsAreDeliveredBeforeClose(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 2, 16)
	h.SelfHeal("rc/person/1v9", "version_mismatch")
	h.WriteFailed("rc/person/1", "renew", errors.New("down"))
	h.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 2 {
		t.Fatalf("events = %v", rec.events)
	}
	if h.Dropped() != 0 {
		t.Fatalf("dropped = %d", h.Dropped())
	}
}

func TestOverflowAndPostCloseEventsAreDropped(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	h := New(rec, 1, 1)

	// first event occupies the worker, second fills the queue
	h.SelfHeal("a", "corrupt")
	for i := 0; i < 10; i++ {
		h.SelfHeal("b", "corrupt")
	}
	close(rec.block)
	h.Close()
	h.SourceFallback("person")

	if h.Dropped() == 0 {
		t.Fatalf("expected dropped events")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if got := len(rec.events) + int(h.Dropped()); got != 12 {
		t.Fatalf("delivered+dropped = %d, want 12", got)
	}
}
