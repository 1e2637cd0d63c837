package stream

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/roomscore-backend/internal/logger"
)

// Message is one entry read off the telemetry stream. Payload is the raw
// xapi envelope exactly as the producer wrote it.
type Message struct {
	ID      string
	Payload []byte
}

type Client interface {
	Read(ctx context.Context, count int64, block time.Duration) ([]Message, error)
	Ack(ctx context.Context, ids ...string) error
	AddToErrorStream(ctx context.Context, payload []byte, reason string) error
	Close() error
}

type redisStream struct {
	log         *logger.Logger
	rdb         *goredis.Client
	stream      string
	errorStream string
	group       string
	consumer    string
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	streamName := strings.TrimSpace(os.Getenv("XAPI_STREAM"))
	if streamName == "" {
		streamName = "xapi:events"
	}
	errorStream := strings.TrimSpace(os.Getenv("XAPI_ERROR_STREAM"))
	if errorStream == "" {
		errorStream = streamName + ":error"
	}
	group := strings.TrimSpace(os.Getenv("XAPI_STREAM_GROUP"))
	if group == "" {
		group = "roomscore"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	host, _ := os.Hostname()
	consumer := fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])

	s := &redisStream{
		log:         log.With("service", "RedisStream", "stream", streamName),
		rdb:         rdb,
		stream:      streamName,
		errorStream: errorStream,
		group:       group,
		consumer:    consumer,
	}
	if err := s.ensureGroup(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return s, nil
}

func (s *redisStream) ensureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (s *redisStream) Read(ctx context.Context, count int64, block time.Duration) ([]Message, error) {
	res, err := s.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var msgs []Message
	for _, streamRes := range res {
		for _, entry := range streamRes.Messages {
			payload, ok := entry.Values["data"]
			if !ok {
				s.log.Warn("Stream entry missing data field", "entry_id", entry.ID)
				payload = ""
			}
			msgs = append(msgs, Message{ID: entry.ID, Payload: []byte(toString(payload))})
		}
	}
	return msgs, nil
}

func (s *redisStream) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.rdb.XAck(ctx, s.stream, s.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func (s *redisStream) AddToErrorStream(ctx context.Context, payload []byte, reason string) error {
	err := s.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.errorStream,
		Values: map[string]interface{}{
			"data":   string(payload),
			"reason": reason,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd error stream: %w", err)
	}
	return nil
}

func (s *redisStream) Close() error {
	return s.rdb.Close()
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
