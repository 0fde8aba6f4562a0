package usecase

import (
	"sync"
	"time"

	"StratLab/internal/domain/models"
	domrepo "StratLab/internal/domain/repository"
	"StratLab/pkg/metrics"
)

// EventEmitter receives run lifecycle events.
type EventEmitter interface {
	Emit(ev models.RunEvent)
}

// RunHub fans run events out to subscribers. Each subscriber has a bounded
// buffer; events for a full buffer are dropped and counted.
type RunHub struct {
	mu      sync.RWMutex
	subs    map[int]chan models.RunEvent
	next    int
	bufSize int
	metrics domrepo.Metrics
}

func NewRunHub(m domrepo.Metrics, bufSize int) *RunHub {
	if m == nil {
		m = metrics.Nop{}
	}
	if bufSize <= 0 {
		bufSize = 32
	}
	return &RunHub{subs: make(map[int]chan models.RunEvent), bufSize: bufSize, metrics: m}
}

// Subscribe returns the event channel and a cancel func that closes it.
func (h *RunHub) Subscribe() (<-chan models.RunEvent, func()) {
	ch := make(chan models.RunEvent, h.bufSize)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *RunHub) Emit(ev models.RunEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.metrics.RecordError("run_event_drop")
		}
	}
}

func (h *RunHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type nopEmitter struct{}

func (nopEmitter) Emit(models.RunEvent) {}
