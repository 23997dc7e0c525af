package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event is a single progress notification scoped to a session room.
type Event struct {
	Session   string         `json:"session"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Event types emitted during a workflow run.
const (
	TypeStateUpdate        = "stateUpdate"
	TypeProcessingStep     = "processingStep"
	TypeStepApproved       = "stepApproved"
	TypeOrchestratorUpdate = "orchestratorUpdate"
	TypeRepoChanges        = "repositoryChangesDetected"
	TypeWorkflowTerminated = "workflowTerminated"
	TypeError              = "error"
)

const subscriberBuffer = 64

// Bus fans events out to per-session subscribers. Delivery is best effort:
// a subscriber whose buffer is full misses the event rather than blocking
// the workflow that emitted it.
type Bus struct {
	mu     sync.RWMutex
	rooms  map[string]map[chan Event]struct{}
	logger *slog.Logger
}

// NewBus returns an empty bus. A nil logger disables drop warnings.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		rooms:  make(map[string]map[chan Event]struct{}),
		logger: logger,
	}
}

// Subscribe registers a listener for the given session. The returned cancel
// function removes the subscription and closes the channel; it is safe to
// call more than once.
func (b *Bus) Subscribe(session string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	room, ok := b.rooms[session]
	if !ok {
		room = make(map[chan Event]struct{})
		b.rooms[session] = room
	}
	room[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if room, ok := b.rooms[session]; ok {
				delete(room, ch)
				if len(room) == 0 {
					delete(b.rooms, session)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Emit delivers an event to every subscriber of the session room.
// Emitting to a room with no subscribers is a no-op.
func (b *Bus) Emit(session, eventType string, payload map[string]any) {
	ev := Event{
		Session:   session,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.rooms[session] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("event dropped, subscriber buffer full",
				"session", session, "type", eventType)
		}
	}
}

// Subscribers returns the number of active listeners for a session.
func (b *Bus) Subscribers(session string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[session])
}
