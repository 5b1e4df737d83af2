package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"DropFM/logger"

	"github.com/redis/go-redis/v9"
)

// Redis publishes on a per-attempt channel and keeps a capped history list,
// so any server instance can serve the progress socket.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func channelKey(id int64) string { return fmt.Sprintf("ingest:progress:%d", id) }
func historyKey(id int64) string { return fmt.Sprintf("ingest:progress:%d:history", id) }
func seqKey(id int64) string     { return fmt.Sprintf("ingest:progress:%d:seq", id) }

func (r *Redis) Publish(ctx context.Context, attemptID int64, text string, final bool) {
	if err := r.publish(ctx, attemptID, text, final); err != nil {
		logger.Warn("Failed to publish progress", logger.AttemptID(attemptID), logger.ErrorField(err))
	}
}

func (r *Redis) publish(ctx context.Context, attemptID int64, text string, final bool) error {
	seq, err := r.client.Incr(ctx, seqKey(attemptID)).Result()
	if err != nil {
		return err
	}
	body, err := json.Marshal(Message{AttemptID: attemptID, Seq: seq, Text: text, Final: final, Time: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, historyKey(attemptID), body)
		pipe.LTrim(ctx, historyKey(attemptID), -HistoryLimit, -1)
		pipe.Expire(ctx, historyKey(attemptID), r.ttl)
		pipe.Expire(ctx, seqKey(attemptID), r.ttl)
		pipe.Publish(ctx, channelKey(attemptID), body)
		return nil
	})
	return err
}

// Subscribe registers on the channel before reading history so nothing
// published in between is lost; duplicates are dropped by sequence number.
func (r *Redis) Subscribe(ctx context.Context, attemptID int64) (*Subscription, error) {
	sub := r.client.Subscribe(ctx, channelKey(attemptID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe progress: %w", err)
	}

	raw, err := r.client.LRange(ctx, historyKey(attemptID), 0, -1).Result()
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("read progress history: %w", err)
	}
	history := make([]Message, 0, len(raw))
	var lastSeq int64
	finished := false
	for _, item := range raw {
		var m Message
		if json.Unmarshal([]byte(item), &m) != nil {
			continue
		}
		history = append(history, m)
		lastSeq = m.Seq
		finished = finished || m.Final
	}

	out := make(chan Message, subscriberBuffer)
	if finished {
		sub.Close()
		close(out)
		return &Subscription{History: history, C: out, Close: func() {}}, nil
	}

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var m Message
			if json.Unmarshal([]byte(msg.Payload), &m) != nil || m.Seq <= lastSeq {
				continue
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
			if m.Final {
				sub.Close()
				return
			}
		}
	}()
	return &Subscription{History: history, C: out, Close: func() { sub.Close() }}, nil
}
