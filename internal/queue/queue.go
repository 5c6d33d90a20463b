// Package queue is the job intake & result emit half of component F:
// Redis Streams glue that pulls one FightRequest at a time off the
// request stream (with a crash-recovery claim pass first) and pushes
// results onto the result stream. Grounded one-for-one on
// original_source/simulator/entry.py's xreadgroup/xack/xadd calls.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/PyBagheri/codefights/internal/config"
)

// Request is the decoded payload of one request-stream message, per
// spec §6: `{"data": "<json>"}` where json =
// `{fight_id, game, game_settings, codes_filenames[]}`.
type Request struct {
	FightID        json.RawMessage `json:"fight_id"`
	Game           string          `json:"game"`
	GameSettings   json.RawMessage `json:"game_settings"`
	CodesFilenames []string        `json:"codes_filenames"`
}

// Result is the payload pushed to the result stream, per spec §6:
// `{fight_id, report, final_states[]}`. FightID is echoed back
// byte-for-byte from the Request it answers -- per SPEC_FULL.md's
// DESIGN NOTES the simulator core treats fight_id as an opaque handle,
// so it is never decoded into a Go type that could coerce its shape
// (e.g. turning a bare JSON number into a quoted string).
type Result struct {
	FightID     json.RawMessage `json:"fight_id"`
	Report      interface{}     `json:"report"`
	FinalStates []interface{}   `json:"final_states"`
}

// Delivery pairs a decoded Request with the stream message ID needed
// to ack it once the fight has been processed.
type Delivery struct {
	MessageID string
	Request   Request
}

// Queue wraps a redis.Client with the two named streams and one
// worker's consumer identity.
type Queue struct {
	rdb *redis.Client

	requestStream string
	resultStream  string
	group         string
	consumer      string
}

// New builds a Queue bound to g's Redis address and stream names,
// identified to the consumer group as g.WorkerName.
func New(g config.Global) *Queue {
	return &Queue{
		rdb:           redis.NewClient(&redis.Options{Addr: g.RedisAddr}),
		requestStream: g.RequestStream,
		resultStream:  g.ResultStream,
		group:         g.ConsumerGroup,
		consumer:      g.WorkerName,
	}
}

// EnsureGroup creates the request stream's consumer group if it does
// not already exist, mirroring the idempotent setup original_source's
// deployment tooling performs out of band.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.requestStream, q.group, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("queue: create consumer group: %w", err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

// ClaimPending implements spec §4.F step 1: claim every message
// already delivered to, but not yet acked by, this worker's consumer
// name -- the crash-recovery pass, read with stream ID "0" exactly as
// original_source/simulator/entry.py's `unacked` read does.
func (q *Queue) ClaimPending(ctx context.Context) ([]Delivery, error) {
	res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.requestStream, "0"},
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: claim pending: %w", err)
	}
	return decodeMessages(res)
}

// NextRequest implements spec §4.F step 2: block for exactly one new
// request.
func (q *Queue) NextRequest(ctx context.Context) (*Delivery, error) {
	res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.requestStream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: next request: %w", err)
	}
	deliveries, err := decodeMessages(res)
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, fmt.Errorf("queue: blocking read returned no message")
	}
	return &deliveries[0], nil
}

func decodeMessages(streams []redis.XStream) ([]Delivery, error) {
	if len(streams) == 0 {
		return nil, nil
	}
	out := make([]Delivery, 0, len(streams[0].Messages))
	for _, msg := range streams[0].Messages {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			return nil, fmt.Errorf("queue: message %s missing string field %q", msg.ID, "data")
		}
		var req Request
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return nil, fmt.Errorf("queue: decode message %s: %w", msg.ID, err)
		}
		out = append(out, Delivery{MessageID: msg.ID, Request: req})
	}
	return out, nil
}

// PublishResult implements spec §4.F step 4: XADD the result record.
func (q *Queue) PublishResult(ctx context.Context, r Result) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("queue: marshal result: %w", err)
	}
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.resultStream,
		Values: map[string]interface{}{"data": string(raw)},
	}).Err()
}

// Ack implements spec §4.F step 5.
func (q *Queue) Ack(ctx context.Context, messageID string) error {
	return q.rdb.XAck(ctx, q.requestStream, q.group, messageID).Err()
}

// Close releases the underlying Redis client.
func (q *Queue) Close() error {
	return q.rdb.Close()
}
