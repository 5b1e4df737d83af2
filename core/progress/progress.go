// Package progress fans out per-attempt status messages to live watchers.
package progress

import (
	"context"
	"time"
)

// HistoryLimit caps how many messages are kept per attempt.
const HistoryLimit = 100

// Message 进度消息
type Message struct {
	AttemptID int64     `json:"attemptId"`
	Seq       int64     `json:"seq"`
	Text      string    `json:"message"`
	Final     bool      `json:"final,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher is written to by the pipeline. Publishing is best-effort and
// never blocks an attempt.
type Publisher interface {
	Publish(ctx context.Context, attemptID int64, text string, final bool)
}

// Subscription delivers history first, then live messages until Close.
type Subscription struct {
	History []Message
	C       <-chan Message
	Close   func()
}

// Broker is a Publisher that can also be watched.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, attemptID int64) (*Subscription, error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, int64, string, bool) {}

func (Nop) Subscribe(context.Context, int64) (*Subscription, error) {
	ch := make(chan Message)
	close(ch)
	return &Subscription{C: ch, Close: func() {}}, nil
}

var (
	_ Broker = Nop{}
	_ Broker = (*Memory)(nil)
	_ Broker = (*Redis)(nil)
)
