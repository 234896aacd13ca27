package chat

import (
	"sync"

	"GCProject/logger"
	"GCProject/module/chat/model"
	"GCProject/tools/safe"

	"go.uber.org/zap"
)

// NotificationSink consumes notifications on the presentation side. It runs
// on the relay's own goroutine, so a slow sink delays only notifications,
// never chat state.
type NotificationSink func(model.Notification)

// NotificationRelay forwards server notifications to the sink exactly once
// each, through a buffered channel. Overflow drops the notification (logged)
// instead of blocking the session actor: notifications are UX-level, not
// state-critical, and are never redelivered.
type NotificationRelay struct {
	ch        chan model.Notification
	stopCh    chan struct{}
	stopOnce  sync.Once
	dropCount int
	mu        sync.Mutex
}

func NewNotificationRelay(sink NotificationSink, buffer int) *NotificationRelay {
	if buffer <= 0 {
		buffer = 32
	}
	r := &NotificationRelay{
		ch:     make(chan model.Notification, buffer),
		stopCh: make(chan struct{}),
	}
	safe.Go("chat.notify.relay", func() {
		for {
			select {
			case n := <-r.ch:
				safe.Protect("chat.notify.sink", func() { sink(n) })
			case <-r.stopCh:
				return
			}
		}
	})
	return r
}

// Publish hands off a notification without blocking.
func (r *NotificationRelay) Publish(n model.Notification) {
	select {
	case r.ch <- n:
	default:
		r.mu.Lock()
		r.dropCount++
		dropped := r.dropCount
		r.mu.Unlock()
		logger.Warn("notification dropped, sink too slow",
			zap.String("kind", string(n.Kind)), zap.Int("dropped", dropped))
	}
}

// Dropped reports how many notifications were discarded on overflow.
func (r *NotificationRelay) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropCount
}

func (r *NotificationRelay) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}
