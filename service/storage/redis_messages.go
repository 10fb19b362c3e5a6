package storage

import (
	"context"
	"strconv"
	"time"

	"PPGate/tools/errs"
	"PPGate/tools/ids"

	"github.com/redis/go-redis/v9"
)

// RedisMessages keeps each conversation in its own stream (DMKey). Stream
// entry order is append order, which is creation order.
type RedisMessages struct {
	rdb    *redis.Client
	ids    *ids.Generator
	maxLen int64
}

func NewRedisMessages(rdb *redis.Client, nodeID int64, maxLen int64) *RedisMessages {
	if maxLen <= 0 {
		maxLen = 100_000
	}
	return &RedisMessages{rdb: rdb, ids: ids.NewGenerator(nodeID), maxLen: maxLen}
}

func (s *RedisMessages) Create(ctx context.Context, sender, recipient, text, attachment string) (*Message, error) {
	seq := s.ids.Next()
	m := &Message{
		ID:         strconv.FormatInt(seq, 10),
		Seq:        seq,
		Sender:     sender,
		Recipient:  recipient,
		Text:       text,
		Attachment: attachment,
		CreatedAt:  s.ids.Time(seq),
	}
	args := &redis.XAddArgs{
		Stream: DMKey(sender, recipient),
		Values: map[string]any{
			"id":         m.ID,
			"from":       sender,
			"to":         recipient,
			"text":       text,
			"attachment": attachment,
			"ts":         m.CreatedAt.UnixMilli(),
		},
		Approx: true,
		MaxLen: s.maxLen,
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return nil, errs.ErrStore.Cause(err, "stream", args.Stream)
	}
	return m, nil
}

func (s *RedisMessages) Find(ctx context.Context, a, b string) ([]*Message, error) {
	entries, err := s.rdb.XRange(ctx, DMKey(a, b), "-", "+").Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "xrange", "stream", DMKey(a, b))
	}
	out := make([]*Message, 0, len(entries))
	for _, e := range entries {
		m := &Message{
			ID:         str(e.Values["id"]),
			Sender:     str(e.Values["from"]),
			Recipient:  str(e.Values["to"]),
			Text:       str(e.Values["text"]),
			Attachment: str(e.Values["attachment"]),
		}
		m.Seq, _ = strconv.ParseInt(m.ID, 10, 64)
		if ms, err := strconv.ParseInt(str(e.Values["ts"]), 10, 64); err == nil {
			m.CreatedAt = time.UnixMilli(ms)
		}
		out = append(out, m)
	}
	return out, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
