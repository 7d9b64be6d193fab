package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	TopicProgress = "export.progress"
	TopicStatus   = "export.status"
)

// Event is a notification about one export job.
type Event struct {
	Topic    string
	Job      string
	Progress float64
	Status   string
	Err      error
	At       time.Time
}

func (e Event) String() string {
	switch e.Topic {
	case TopicProgress:
		return fmt.Sprintf("[%s] %s %.1f%%", e.Job, e.Topic, e.Progress*100)
	default:
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s %s: %v", e.Job, e.Topic, e.Status, e.Err)
		}
		return fmt.Sprintf("[%s] %s %s", e.Job, e.Topic, e.Status)
	}
}

const DefaultSendTimeout = 50 * time.Millisecond

type subscriber struct {
	id    uint64
	topic string
	ch    chan Event
}

// Bus relays events to subscribers. A subscriber that does not take an
// event within the send timeout misses it; publishers are never held up
// for longer than that.
type Bus struct {
	SendTimeout time.Duration

	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   []*subscriber
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		SendTimeout: DefaultSendTimeout,
		logger:      logger.With("component", "events"),
	}
}

// Subscribe returns a channel receiving events of topic ("" for all
// topics). cancel removes the subscription and closes the channel.
func (b *Bus) Subscribe(topic string, buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &subscriber{id: b.nextID, topic: topic, ch: make(chan Event, buffer)}
	b.subs = append(b.subs, s)

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.unsubscribe(s.id) })
	}
	return s.ch, cancel
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subs[:0]
	for _, s := range b.subs {
		if s.id == id {
			close(s.ch)
			continue
		}
		kept = append(kept, s)
	}
	b.subs = kept
}

// Publish delivers e to every matching subscriber. A nil bus drops it.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		if s.topic != "" && s.topic != e.Topic {
			continue
		}
		select {
		case s.ch <- e:
			continue
		default:
		}
		t := time.NewTimer(b.SendTimeout)
		select {
		case s.ch <- e:
		case <-t.C:
			b.logger.Debug("subscriber too slow, event dropped", "topic", e.Topic, "job", e.Job)
		}
		t.Stop()
	}
}
