package redis

const (
	// eventRetentionSeconds bounds how long raw activity is kept (90 days).
	eventRetentionSeconds = 7776000

	// addEventScript atomically stores an event and indexes it under its child
	addEventScript = `
local event_key = KEYS[1]      -- kreport:event:{eventID}
local index_key = KEYS[2]      -- kreport:activity:{childID}

local event_id = ARGV[1]
local child_id = ARGV[2]
local site_or_app = ARGV[3]
local action = ARGV[4]
local duration_seconds = ARGV[5]
local timestamp = ARGV[6]
local recorded_at = ARGV[7]
local score = tonumber(ARGV[8])
local retention = tonumber(ARGV[9])
local prune_before = tonumber(ARGV[10])

-- Set event fields
redis.call('HSET', event_key,
  'id', event_id,
  'child_id', child_id,
  'site_or_app', site_or_app,
  'action', action,
  'duration_seconds', duration_seconds,
  'timestamp', timestamp,
  'recorded_at', recorded_at
)
redis.call('EXPIRE', event_key, retention)

-- Index by event time (milliseconds)
redis.call('ZADD', index_key, score, event_id)
redis.call('EXPIRE', index_key, retention)

-- Drop index entries whose events have aged out
redis.call('ZREMRANGEBYSCORE', index_key, '-inf', '(' .. prune_before)

return 'OK'
`

	// saveLimitScript atomically replaces a child's limit override
	saveLimitScript = `
local limits_key = KEYS[1]     -- kreport:limits:{childID}

local child_id = ARGV[1]
local daily_limit_seconds = ARGV[2]
local updated_at = ARGV[3]

redis.call('DEL', limits_key)
redis.call('HSET', limits_key,
  'child_id', child_id,
  'daily_limit_seconds', daily_limit_seconds,
  'updated_at', updated_at
)

return 'OK'
`
)
