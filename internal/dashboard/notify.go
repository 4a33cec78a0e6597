package dashboard

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// DefaultNotificationTTL is how long a notification stays visible.
const DefaultNotificationTTL = 6 * time.Second

// Notification is a transient message shown above the device list.
type Notification struct {
	ID        string    `json:"id"`
	Key       string    `json:"device,omitempty"`
	Message   string    `json:"message"`
	IsError   bool      `json:"is_error"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	seq uint64
}

// Notifier keeps notifications until they expire or are dismissed.
type Notifier struct {
	cache *ttlcache.Cache[string, Notification]
	ttl   time.Duration
	bus   *EventBus
	seq   atomic.Uint64
}

// NewNotifier starts a notifier whose entries live for ttl.
func NewNotifier(ttl time.Duration, bus *EventBus) *Notifier {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	cache := ttlcache.New[string, Notification](
		ttlcache.WithTTL[string, Notification](ttl),
		ttlcache.WithDisableTouchOnHit[string, Notification](),
	)
	go cache.Start()
	return &Notifier{cache: cache, ttl: ttl, bus: bus}
}

// Error records an error notification about device key.
func (n *Notifier) Error(key, msg string) Notification {
	now := time.Now()
	note := Notification{
		ID:        uuid.NewString(),
		Key:       key,
		Message:   msg,
		IsError:   true,
		CreatedAt: now,
		ExpiresAt: now.Add(n.ttl),
		seq:       n.seq.Add(1),
	}
	n.cache.Set(note.ID, note, ttlcache.DefaultTTL)
	if n.bus != nil {
		n.bus.Emit(Event{Type: EventNotification, Data: note})
	}
	return note
}

// Active returns the unexpired notifications, oldest first.
func (n *Notifier) Active() []Notification {
	items := n.cache.Items()
	out := make([]Notification, 0, len(items))
	for _, item := range items {
		if item.IsExpired() {
			continue
		}
		out = append(out, item.Value())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}

// Dismiss removes a notification and reports whether it was visible.
func (n *Notifier) Dismiss(id string) bool {
	item := n.cache.Get(id)
	if item == nil || item.IsExpired() {
		return false
	}
	n.cache.Delete(id)
	return true
}

// Stop ends the expiry loop.
func (n *Notifier) Stop() {
	n.cache.Stop()
}
