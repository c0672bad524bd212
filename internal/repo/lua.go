package repo

import (
	"github.com/redis/go-redis/v9"
)

// ScriptTokenBucket refills and consumes in one round trip so two concurrent
// checks against the same bucket cannot both see the pre-refill count.
//
// KEYS[1]=tokens, KEYS[2]=last_ts
// ARGV[1]=capacity, ARGV[2]=refill_ms, ARGV[3]=now_ms, ARGV[4]=ttl_ms
// Returns {allowed, remaining, retry_after_ms}.
var ScriptTokenBucket = redis.NewScript(`
local cap    = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now    = tonumber(ARGV[3])
local ttl    = tonumber(ARGV[4])

local tokens = tonumber(redis.call('GET', KEYS[1]) or cap)
local last   = tonumber(redis.call('GET', KEYS[2]) or now)

if now > last then
  local add = cap * (now - last) / refill
  if add > 0 then
    tokens = math.min(cap, tokens + add)
  end
end

local ok = 0
local retry = 0
if tokens >= 1 then
  tokens = tokens - 1
  ok = 1
else
  retry = math.ceil((1 - tokens) * refill / cap)
  if retry < 1 then
    retry = 1
  end
end

redis.call('SET', KEYS[1], tokens, 'PX', ttl)
redis.call('SET', KEYS[2], now,    'PX', ttl)

return {ok, math.floor(tokens), retry}
`)
