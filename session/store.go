// Package session persists refresh sessions and the access-token revocation
// blacklist in Redis. All mutation of a single record is atomic: revocation
// runs as a Lua script so a concurrent reader sees either the fully-active or
// the fully-revoked record, never a partial state.
//
// Key layout (under a configurable prefix):
//
//	rt:{token_hash}  JSON session record, TTL = session lifetime
//	sid:{session_id} token hash pointer, for revoke-by-id
//	ut:{user_id}     set of the user's token hashes
//	bl:{token_hash}  access-token blacklist entry, TTL clamped to token expiry
//
// Expired entries are lazily treated as absent at lookup time; Redis TTLs do
// the physical deletion and [Store.SweepUser] only trims the per-user index.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session matches the lookup.
var ErrNotFound = errors.New("session: not found")

// ErrRedisUnavailable wraps transport failures from the backing store. It is
// retryable at a higher layer, unlike any verification failure.
var ErrRedisUnavailable = errors.New("session: redis unavailable")

const (
	revokeStatusNotFound       int64 = 0
	revokeStatusRevoked        int64 = 1
	revokeStatusAlreadyRevoked int64 = 2
	revokeStatusExpired        int64 = 3
)

// revokeSessionScript marks a session revoked in place, keeping its TTL, so
// the record stays discoverable (and distinguishable from "not found") until
// its natural expiry.
const revokeSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local sess = cjson.decode(data)
if sess.rat and sess.rat ~= 0 then
  return 2
end
local now = tonumber(ARGV[1])
if sess.exp <= now then
  return 3
end
sess.rat = now
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], cjson.encode(sess), "PX", ttl)
else
  redis.call("SET", KEYS[1], cjson.encode(sess))
end
return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// revokeAllScript revokes every live session in a user's index in one atomic
// step and prunes index members whose records already expired away.
const revokeAllScript = `
local hashes = redis.call("SMEMBERS", KEYS[1])
local now = tonumber(ARGV[1])
local prefix = ARGV[2]
local count = 0
for _, h in ipairs(hashes) do
  local key = prefix .. h
  local data = redis.call("GET", key)
  if data then
    local sess = cjson.decode(data)
    if ((not sess.rat) or sess.rat == 0) and sess.exp > now then
      sess.rat = now
      local ttl = redis.call("PTTL", key)
      if ttl > 0 then
        redis.call("SET", key, cjson.encode(sess), "PX", ttl)
      else
        redis.call("SET", key, cjson.encode(sess))
      end
      count = count + 1
    end
  else
    redis.call("SREM", KEYS[1], h)
  end
end
return count
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// Store is the Redis-backed session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session store on the given Redis client. prefix
// namespaces every key.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) recordKey(tokenHash string) string { return s.prefix + ":rt:" + tokenHash }
func (s *Store) idKey(sessionID string) string     { return s.prefix + ":sid:" + sessionID }
func (s *Store) userKey(userID string) string      { return s.prefix + ":ut:" + userID }
func (s *Store) blacklistKey(tokenHash string) string {
	return s.prefix + ":bl:" + tokenHash
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// Save atomically persists a new session; TTLs are computed against now.
// The record and its id pointer expire with the session; once persistence
// succeeds the session stays discoverable by the user even if the enclosing
// call is abandoned.
func (s *Store) Save(ctx context.Context, sess *Session, now time.Time) error {
	ttl := time.Unix(sess.ExpiresAt, 0).Sub(now)
	if ttl <= 0 {
		return errors.New("session: already expired at save")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(sess.TokenHash), data, ttl)
		pipe.Set(ctx, s.idKey(sess.SessionID), sess.TokenHash, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.TokenHash)
		pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// GetByHash returns the session keyed by tokenHash, revoked or not. Callers
// decide how to treat revoked/expired records; absence is [ErrNotFound].
func (s *Store) GetByHash(ctx context.Context, tokenHash string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.recordKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: corrupt record: %w", err)
	}
	return &sess, nil
}

// Revoke marks the session revoked. Idempotent: the second call reports
// alreadyRevoked and performs no further side effect. Absent or expired
// sessions return [ErrNotFound].
func (s *Store) Revoke(ctx context.Context, sessionID string, now time.Time) (alreadyRevoked bool, err error) {
	tokenHash, err := s.redis.Get(ctx, s.idKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, ErrNotFound
		}
		return false, unavailable(err)
	}
	return s.RevokeByHash(ctx, tokenHash, now)
}

// RevokeByHash is Revoke keyed by token hash instead of session id.
func (s *Store) RevokeByHash(ctx context.Context, tokenHash string, now time.Time) (alreadyRevoked bool, err error) {
	status, err := revokeSessionLua.Run(ctx, s.redis,
		[]string{s.recordKey(tokenHash)}, now.Unix()).Int64()
	if err != nil {
		return false, unavailable(err)
	}

	switch status {
	case revokeStatusRevoked:
		return false, nil
	case revokeStatusAlreadyRevoked:
		return true, nil
	case revokeStatusExpired, revokeStatusNotFound:
		return false, ErrNotFound
	default:
		return false, fmt.Errorf("session: unexpected revoke status %d", status)
	}
}

// RevokeAllForUser atomically revokes every live session of the user and
// returns how many were revoked. Used on logout-all-devices and on password
// change.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	count, err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)}, now.Unix(), s.prefix+":rt:").Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(count), nil
}

// ListActiveForUser returns the user's live sessions ordered by issuance,
// newest first. Revoked and expired records are excluded.
func (s *Store) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	hashes, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	sessions := make([]*Session, 0, len(hashes))
	for _, h := range hashes {
		sess, err := s.GetByHash(ctx, h)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.Active(now) {
			sessions = append(sessions, sess)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].IssuedAt > sessions[j].IssuedAt
	})
	return sessions, nil
}

// AddRevoked inserts an access-token hash into the blacklist. The entry
// self-expires with the token so the index never outlives the credential; an
// already-expired token inserts nothing.
func (s *Store) AddRevoked(ctx context.Context, tokenHash string, expiresAt, now time.Time) error {
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.blacklistKey(tokenHash), "1", ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// IsRevoked reports whether the access-token hash is blacklisted. Checked on
// every access-token verification after signature and expiry pass.
func (s *Store) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(tokenHash)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// SweepUser prunes index members whose records expired away. Purely an
// optimization; correctness never depends on it running.
func (s *Store) SweepUser(ctx context.Context, userID string) (int, error) {
	hashes, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	removed := 0
	for _, h := range hashes {
		n, err := s.redis.Exists(ctx, s.recordKey(h)).Result()
		if err != nil {
			return removed, unavailable(err)
		}
		if n == 0 {
			if err := s.redis.SRem(ctx, s.userKey(userID), h).Err(); err != nil {
				return removed, unavailable(err)
			}
			removed++
		}
	}
	return removed, nil
}
