package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edupilot/edupilot-api/internal/models"
)

// Subscriber receives realtime events for one owner. Send must be safe for
// concurrent use; returning an error marks the subscriber broken and removes
// it from the group.
type Subscriber interface {
	ID() string
	Send(event models.Event) error
}

type subscriberGroup struct {
	mu      sync.Mutex
	members map[string]Subscriber
}

// BroadcastService fans events out to an owner's subscribers. Groups are keyed
// by owner, so publishing to one owner never contends with another. Delivery
// within a group holds the group lock, giving each subscriber events in
// publish order.
type BroadcastService struct {
	mu     sync.RWMutex
	groups map[string]*subscriberGroup
	logger *zap.Logger
}

// NewBroadcastService constructs the fan-out registry.
func NewBroadcastService(logger *zap.Logger) *BroadcastService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BroadcastService{
		groups: make(map[string]*subscriberGroup),
		logger: logger,
	}
}

// Subscribe registers a subscriber under the owner. Registering the same
// subscriber ID again replaces the previous handle, so a reconnecting client
// never receives duplicates.
func (s *BroadcastService) Subscribe(ownerID string, sub Subscriber) {
	// the registry lock is held until the member is added, otherwise the
	// empty-group collector could delete the group between the lookup and
	// the insert, stranding the subscriber on an orphaned group
	s.mu.Lock()
	group, ok := s.groups[ownerID]
	if !ok {
		group = &subscriberGroup{members: make(map[string]Subscriber)}
		s.groups[ownerID] = group
	}
	group.mu.Lock()
	group.members[sub.ID()] = sub
	group.mu.Unlock()
	s.mu.Unlock()

	s.logger.Debug("subscriber registered", zap.String("owner_id", ownerID), zap.String("subscriber_id", sub.ID()))
}

// Unsubscribe removes a subscriber and garbage-collects empty groups.
func (s *BroadcastService) Unsubscribe(ownerID, subscriberID string) {
	s.mu.Lock()
	group, ok := s.groups[ownerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	group.mu.Lock()
	delete(group.members, subscriberID)
	empty := len(group.members) == 0
	group.mu.Unlock()

	if empty {
		s.mu.Lock()
		// re-check under the registry lock: a Subscribe may have raced in
		if g, ok := s.groups[ownerID]; ok && g == group {
			g.mu.Lock()
			if len(g.members) == 0 {
				delete(s.groups, ownerID)
			}
			g.mu.Unlock()
		}
		s.mu.Unlock()
	}
}

// Publish delivers the event to every subscriber of the owner. Owners with no
// subscribers are a no-op. Subscribers whose Send fails are dropped.
func (s *BroadcastService) Publish(ownerID string, eventType models.EventType, payload interface{}) {
	event := models.Event{Type: eventType, Payload: payload, At: time.Now().UTC()}

	s.mu.RLock()
	group, ok := s.groups[ownerID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	group.mu.Lock()
	defer group.mu.Unlock()
	for id, sub := range group.members {
		if err := sub.Send(event); err != nil {
			delete(group.members, id)
			s.logger.Warn("dropping broken subscriber",
				zap.String("owner_id", ownerID),
				zap.String("subscriber_id", id),
				zap.Error(err))
		}
	}
}

// SubscriberCount reports the number of live subscribers for an owner.
func (s *BroadcastService) SubscriberCount(ownerID string) int {
	s.mu.RLock()
	group, ok := s.groups[ownerID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	group.mu.Lock()
	defer group.mu.Unlock()
	return len(group.members)
}
