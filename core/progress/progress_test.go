package progress

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func recv(t *testing.T, ch <-chan Message) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-ch:
		return m, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for progress message")
		return Message{}, false
	}
}

func TestMemoryHistoryThenLive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	m.Publish(ctx, 7, "received a.mp3", false)

	sub, err := m.Subscribe(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	if len(sub.History) != 1 || sub.History[0].Text != "received a.mp3" || sub.History[0].Seq != 1 {
		t.Fatalf("history = %+v", sub.History)
	}

	m.Publish(ctx, 7, "merging", false)
	m.Publish(ctx, 7, "completed", true)
	if msg, _ := recv(t, sub.C); msg.Text != "merging" || msg.Seq != 2 {
		t.Fatalf("live = %+v", msg)
	}
	if msg, _ := recv(t, sub.C); !msg.Final {
		t.Fatalf("expected final message, got %+v", msg)
	}
	if _, ok := recv(t, sub.C); ok {
		t.Fatal("channel not closed after final message")
	}
}

func TestMemoryIsolatesAttempts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	sub, _ := m.Subscribe(ctx, 1)
	defer sub.Close()

	m.Publish(ctx, 2, "other attempt", false)
	m.Publish(ctx, 1, "mine", false)
	if msg, _ := recv(t, sub.C); msg.AttemptID != 1 || msg.Text != "mine" {
		t.Fatalf("got %+v", msg)
	}
}

func TestMemorySlowSubscriberDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	sub, _ := m.Subscribe(ctx, 1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			m.Publish(ctx, 1, fmt.Sprintf("step %d", i), false)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestMemoryHistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	for i := 0; i < HistoryLimit+20; i++ {
		m.Publish(ctx, 1, fmt.Sprintf("step %d", i), false)
	}
	sub, _ := m.Subscribe(ctx, 1)
	defer sub.Close()
	if len(sub.History) != HistoryLimit {
		t.Fatalf("history length = %d", len(sub.History))
	}
	if first := sub.History[0].Seq; first != 21 {
		t.Fatalf("oldest kept seq = %d", first)
	}
}

func TestMemorySubscribeAfterFinish(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	m.Publish(ctx, 3, "failed: no files", true)

	sub, _ := m.Subscribe(ctx, 3)
	if len(sub.History) != 1 || !sub.History[0].Final {
		t.Fatalf("history = %+v", sub.History)
	}
	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel for finished attempt")
	}
}

func TestMemoryUnsubscribeOnContextCancel(t *testing.T) {
	m := NewMemory(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := m.Subscribe(ctx, 5)
	cancel()
	if _, ok := recv(t, sub.C); ok {
		t.Fatal("expected channel closed after cancel")
	}
	sub.Close() // idempotent
}

func TestMemoryUnusedSubscriptionLeavesNoStream(t *testing.T) {
	m := NewMemory(time.Minute)
	sub, _ := m.Subscribe(context.Background(), 9)
	sub.Close()

	m.mu.Lock()
	n := len(m.streams)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("streams = %d after closing an idle subscription", n)
	}

	m.Publish(context.Background(), 9, "queued", false)
	again, _ := m.Subscribe(context.Background(), 9)
	defer again.Close()
	if len(again.History) != 1 {
		t.Fatalf("history = %+v", again.History)
	}
}

func TestMemoryDropsExpiredStreams(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }
	m.Publish(ctx, 1, "done", true)

	now = now.Add(2 * time.Minute)
	m.Publish(ctx, 2, "start", false)
	m.mu.Lock()
	_, kept := m.streams[1]
	m.mu.Unlock()
	if kept {
		t.Fatal("finished stream not collected after ttl")
	}
}

func TestRedisBroker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	id := time.Now().UnixNano()
	b := NewRedis(client, time.Minute)
	defer client.Del(ctx, historyKey(id), seqKey(id))

	b.Publish(ctx, id, "received a.mp3", false)
	sub, err := b.Subscribe(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	if len(sub.History) != 1 || sub.History[0].Seq != 1 {
		t.Fatalf("history = %+v", sub.History)
	}

	b.Publish(ctx, id, "completed", true)
	msg, _ := recv(t, sub.C)
	if msg.Seq != 2 || !msg.Final {
		t.Fatalf("live = %+v", msg)
	}
	if _, ok := recv(t, sub.C); ok {
		t.Fatal("channel not closed after final message")
	}
}
