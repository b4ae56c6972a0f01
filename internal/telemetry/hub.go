package telemetry

import (
	"sync"

	"wisefido-power/internal/metrics"
	"wisefido-power/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultBufferSize = 16

// Subscriber one live viewer. Events is closed once the viewer is disconnected.
type Subscriber struct {
	ID     string
	events chan models.LiveEvent
	done   chan struct{}
	once   sync.Once
}

func (s *Subscriber) Events() <-chan models.LiveEvent { return s.events }

// Done closed on disconnect, whatever the cause
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) Connected() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		close(s.events)
	})
}

// Hub fans every published LiveEvent out to the current subscribers.
//
// Publish sends under the read lock and never blocks; channels are only closed
// under the write lock, so a fan-out in progress never sends on a closed channel.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*Subscriber
	closed     bool
	bufferSize int

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHub(bufferSize int, logger *zap.Logger, m *metrics.Metrics) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:       make(map[string]*Subscriber),
		bufferSize: bufferSize,
		logger:     logger,
		metrics:    m,
	}
}

// Subscribe registers a viewer; it only sees events published after this call.
// After Close the returned subscriber is already disconnected.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		ID:     uuid.New().String(),
		events: make(chan models.LiveEvent, h.bufferSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.close()
		return s
	}
	h.subs[s.ID] = s
	h.metrics.SetSubscribers(len(h.subs))
	h.logger.Debug("Live subscriber connected",
		zap.String("subscriber_id", s.ID),
		zap.Int("subscribers", len(h.subs)),
	)
	return s
}

// Unsubscribe is idempotent
func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscriber) bool {
	if _, ok := h.subs[s.ID]; !ok {
		return false
	}
	delete(h.subs, s.ID)
	s.close()
	h.metrics.SetSubscribers(len(h.subs))
	h.logger.Debug("Live subscriber disconnected",
		zap.String("subscriber_id", s.ID),
		zap.Int("subscribers", len(h.subs)),
	)
	return true
}

// Publish delivers ev to every subscriber registered right now. A subscriber
// whose queue is full is unreachable and gets disconnected.
func (h *Hub) Publish(ev models.LiveEvent) {
	var stalled []*Subscriber

	h.mu.RLock()
	for _, s := range h.subs {
		select {
		case s.events <- ev:
		default:
			stalled = append(stalled, s)
		}
	}
	h.mu.RUnlock()

	if len(stalled) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range stalled {
		if h.removeLocked(s) {
			h.metrics.SubscriberDropped()
			h.logger.Warn("Dropping unreachable live subscriber",
				zap.String("subscriber_id", s.ID),
				zap.Int("buffer_size", h.bufferSize),
			)
		}
	}
}

// Count currently connected subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects everyone; later subscribers are disconnected immediately
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, s := range h.subs {
		s.close()
	}
	h.subs = make(map[string]*Subscriber)
	h.metrics.SetSubscribers(0)
	h.logger.Info("Live hub closed")
}
