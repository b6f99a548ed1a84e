// Package redisstore implements core.RoomStore on Redis.
//
// Every mutation is one Lua script, so check-then-act sequences (capacity
// check + append, exists check + create) are atomic without client-side locks.
//
// Keys use a {roomId} hash tag so all keys of a room land in one cluster slot:
//
//	meta:{roomId}       hash  createdAt (ms), members (JSON array of tokens)
//	messages:{roomId}   list  JSON messages in persistence order, PTTL mirrors meta
//	destroyed:{roomId}  string marker, set once when the destroy event is sent
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Duo/internal/domain"
)

func metaKey(id domain.RoomID) string      { return "meta:{" + string(id) + "}" }
func messagesKey(id domain.RoomID) string  { return "messages:{" + string(id) + "}" }
func destroyedKey(id domain.RoomID) string { return "destroyed:{" + string(id) + "}" }

// Reply status codes shared by the scripts.
const (
	statusNotFound = 0
	statusOK       = 1
	statusFull     = 2
)

// KEYS[1] meta, KEYS[2] destroyed marker
// ARGV[1] now (ms), ARGV[2] lifetime (ms)
// Returns {created, createdAt, members, pttl}.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'createdAt', ARGV[1], 'members', '[]')
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  redis.call('DEL', KEYS[2])
  return {1, ARGV[1], '[]', tonumber(ARGV[2])}
end
local v = redis.call('HMGET', KEYS[1], 'createdAt', 'members')
return {0, v[1], v[2], redis.call('PTTL', KEYS[1])}
`)

// KEYS[1] meta
// ARGV[1] token, ARGV[2] capacity
// Returns {status, createdAt, members, pttl}; an existing member is a no-op.
var appendMemberScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'createdAt', 'members')
if not v[1] then
  return {0}
end
local members = cjson.decode(v[2])
for _, m in ipairs(members) do
  if m == ARGV[1] then
    return {1, v[1], v[2], redis.call('PTTL', KEYS[1])}
  end
end
if #members >= tonumber(ARGV[2]) then
  return {2, v[1], v[2], redis.call('PTTL', KEYS[1])}
end
table.insert(members, ARGV[1])
local encoded = cjson.encode(members)
redis.call('HSET', KEYS[1], 'members', encoded)
return {1, v[1], encoded, redis.call('PTTL', KEYS[1])}
`)

// KEYS[1] meta, KEYS[2] messages
// ARGV[1] encoded message
// Returns the TTL (ms) given to the history, or -1 when the room is gone.
var appendMessageScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  return -1
end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('PEXPIRE', KEYS[2], ttl)
return ttl
`)

// KEYS[1] meta, KEYS[2] messages
// ARGV[1] lifetime (ms)
var renewScript = redis.NewScript(`
if redis.call('PEXPIRE', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('PEXPIRE', KEYS[2], ARGV[1])
return 1
`)

// KEYS[1] meta, KEYS[2] destroyed marker
// ARGV[1] grace (ms) the marker outlives the room
var markDestroyedScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  ttl = 0
end
if redis.call('SET', KEYS[2], '1', 'NX', 'PX', ttl + tonumber(ARGV[1])) then
  return 1
end
return 0
`)

const destroyedGrace = time.Minute

type Options struct {
	Lifetime time.Duration
	Capacity int
	// Timeout bounds every round-trip.
	Timeout time.Duration
}

type Store struct {
	client redis.UniversalClient
	opts   Options
	now    func() time.Time
}

func New(client redis.UniversalClient, opts Options) *Store {
	return &Store{client: client, opts: opts, now: time.Now}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

func unavailable(op string, id domain.RoomID, err error) error {
	return fmt.Errorf("%w: %s %s: %w", domain.ErrStoreUnavailable, op, id, err)
}

func notFound(id domain.RoomID) error {
	return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
}

func (s *Store) GetMeta(ctx context.Context, id domain.RoomID) (domain.RoomMeta, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		fields *redis.SliceCmd
		pttl   *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		fields = p.HMGet(ctx, metaKey(id), "createdAt", "members")
		pttl = p.PTTL(ctx, metaKey(id))
		return nil
	})
	if err != nil {
		return domain.RoomMeta{}, unavailable("get meta", id, err)
	}
	vals := fields.Val()
	if len(vals) != 2 || vals[0] == nil {
		return domain.RoomMeta{}, notFound(id)
	}
	return decodeMeta(id, vals[0], vals[1], pttl.Val())
}

func (s *Store) CreateIfAbsent(ctx context.Context, id domain.RoomID) (domain.RoomMeta, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	reply, err := createScript.Run(ctx, s.client,
		[]string{metaKey(id), destroyedKey(id)},
		s.now().UnixMilli(),
		s.opts.Lifetime.Milliseconds(),
	).Slice()
	if err != nil {
		return domain.RoomMeta{}, false, unavailable("create room", id, err)
	}
	if len(reply) != 4 {
		return domain.RoomMeta{}, false, unavailable("create room", id, fmt.Errorf("unexpected reply %v", reply))
	}
	meta, err := decodeMeta(id, reply[1], reply[2], millis(reply[3]))
	if err != nil {
		return domain.RoomMeta{}, false, err
	}
	return meta, toInt(reply[0]) == 1, nil
}

func (s *Store) AppendMember(ctx context.Context, id domain.RoomID, token domain.Token) (domain.RoomMeta, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	reply, err := appendMemberScript.Run(ctx, s.client,
		[]string{metaKey(id)},
		string(token),
		s.opts.Capacity,
	).Slice()
	if err != nil {
		return domain.RoomMeta{}, unavailable("append member", id, err)
	}
	if len(reply) == 0 || toInt(reply[0]) == statusNotFound {
		return domain.RoomMeta{}, notFound(id)
	}
	if len(reply) != 4 {
		return domain.RoomMeta{}, unavailable("append member", id, fmt.Errorf("unexpected reply %v", reply))
	}
	meta, err := decodeMeta(id, reply[1], reply[2], millis(reply[3]))
	if err != nil {
		return domain.RoomMeta{}, err
	}
	if toInt(reply[0]) == statusFull {
		return meta, fmt.Errorf("%w: %s", domain.ErrRoomFull, id)
	}
	return meta, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg domain.Message) (time.Duration, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("encode message: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ttl, err := appendMessageScript.Run(ctx, s.client,
		[]string{metaKey(msg.RoomID), messagesKey(msg.RoomID)},
		payload,
	).Int64()
	if err != nil {
		return 0, unavailable("append message", msg.RoomID, err)
	}
	if ttl < 0 {
		return 0, notFound(msg.RoomID)
	}
	return time.Duration(ttl) * time.Millisecond, nil
}

func (s *Store) ListMessages(ctx context.Context, id domain.RoomID) ([]domain.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		exists *redis.IntCmd
		items  *redis.StringSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		exists = p.Exists(ctx, metaKey(id))
		items = p.LRange(ctx, messagesKey(id), 0, -1)
		return nil
	})
	if err != nil {
		return nil, unavailable("list messages", id, err)
	}
	if exists.Val() == 0 {
		return nil, notFound(id)
	}
	out := make([]domain.Message, 0, len(items.Val()))
	for _, raw := range items.Val() {
		var m domain.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode message in %s: %w", id, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) RenewTTL(ctx context.Context, id domain.RoomID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := renewScript.Run(ctx, s.client,
		[]string{metaKey(id), messagesKey(id)},
		s.opts.Lifetime.Milliseconds(),
	).Int()
	if err != nil {
		return unavailable("renew ttl", id, err)
	}
	if ok == 0 {
		return notFound(id)
	}
	return nil
}

func (s *Store) MarkDestroyed(ctx context.Context, id domain.RoomID) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	first, err := markDestroyedScript.Run(ctx, s.client,
		[]string{metaKey(id), destroyedKey(id)},
		destroyedGrace.Milliseconds(),
	).Int()
	if err != nil {
		return false, unavailable("mark destroyed", id, err)
	}
	return first == 1, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func decodeMeta(id domain.RoomID, createdAt, members any, ttl time.Duration) (domain.RoomMeta, error) {
	created, err := strconv.ParseInt(toString(createdAt), 10, 64)
	if err != nil {
		return domain.RoomMeta{}, fmt.Errorf("decode createdAt of %s: %w", id, err)
	}
	var tokens []domain.Token
	if raw := toString(members); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
			return domain.RoomMeta{}, fmt.Errorf("decode members of %s: %w", id, err)
		}
	}
	if tokens == nil {
		tokens = []domain.Token{}
	}
	return domain.RoomMeta{ID: id, CreatedAt: created, Members: tokens, TTL: ttl}, nil
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func toInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	default:
		return -1
	}
}

func millis(v any) time.Duration {
	return time.Duration(toInt(v)) * time.Millisecond
}
