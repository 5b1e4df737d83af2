package progress

import (
	"context"
	"sync"
	"time"
)

const subscriberBuffer = 64

type attemptStream struct {
	seq     int64
	history []Message
	subs    map[chan Message]struct{}
	final   bool
	expires time.Time
}

// Memory keeps progress in process. Used when Redis is not configured.
type Memory struct {
	mu      sync.Mutex
	streams map[int64]*attemptStream
	ttl     time.Duration
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Memory{streams: make(map[int64]*attemptStream), ttl: ttl, now: time.Now}
}

func (m *Memory) stream(id int64) *attemptStream {
	s, ok := m.streams[id]
	if !ok {
		s = &attemptStream{subs: make(map[chan Message]struct{})}
		m.streams[id] = s
	}
	return s
}

// Publish appends to the history and delivers to subscribers without
// blocking; a slow subscriber drops messages.
func (m *Memory) Publish(_ context.Context, attemptID int64, text string, final bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcLocked()

	s := m.stream(attemptID)
	s.seq++
	msg := Message{AttemptID: attemptID, Seq: s.seq, Text: text, Final: final, Time: m.now().UTC()}
	s.history = append(s.history, msg)
	if len(s.history) > HistoryLimit {
		s.history = s.history[len(s.history)-HistoryLimit:]
	}
	for ch := range s.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	if final {
		s.final = true
		s.expires = m.now().Add(m.ttl)
		for ch := range s.subs {
			close(ch)
			delete(s.subs, ch)
		}
	}
}

func (m *Memory) Subscribe(ctx context.Context, attemptID int64) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stream(attemptID)
	history := append([]Message(nil), s.history...)
	ch := make(chan Message, subscriberBuffer)
	if s.final {
		close(ch)
		return &Subscription{History: history, C: ch, Close: func() {}}, nil
	}
	s.subs[ch] = struct{}{}

	var once sync.Once
	stop := make(chan struct{})
	closeFn := func() {
		once.Do(func() {
			close(stop)
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
			// a subscription to an attempt that never published leaves nothing behind
			if len(s.subs) == 0 && len(s.history) == 0 && m.streams[attemptID] == s {
				delete(m.streams, attemptID)
			}
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			closeFn()
		case <-stop:
		}
	}()
	return &Subscription{History: history, C: ch, Close: closeFn}, nil
}

// gcLocked drops finished streams nobody has read for ttl.
func (m *Memory) gcLocked() {
	now := m.now()
	for id, s := range m.streams {
		if s.final && len(s.subs) == 0 && now.After(s.expires) {
			delete(m.streams, id)
		}
	}
}
