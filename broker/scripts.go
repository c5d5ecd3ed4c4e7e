package broker

// Lifecycle transitions that touch more than one key are applied with Lua
// scripts so a claim, finalize, or stall-sweep can't interleave with a
// concurrent one — this is what backs invariant (e), "exactly one worker
// holds a job in processing at a time".

const enqueueScript = `
local existing = redis.call('GET', KEYS[1])
if existing then
  local state = redis.call('HGET', 'vodq:job:' .. existing, 'state')
  if state == 'pending' or state == 'processing' or state == 'delayed' then
    return redis.error_reply('EXISTS')
  end
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[2],
  'id', ARGV[1], 'post_id', ARGV[2], 'media_path', ARGV[3], 'video_url', ARGV[4],
  'thumb_path', ARGV[5], 'thumb_url', ARGV[6], 'post_url', ARGV[7],
  'year', ARGV[8], 'month', ARGV[9],
  'created_at', ARGV[10], 'updated_at', ARGV[10],
  'attempts', '0', 'state', 'pending', 'progress', '0', 'stage', 'queued',
  'error', '', 'result_json', '', 'claimed_by', '')
redis.call('RPUSH', KEYS[3], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[10], ARGV[1])
local cnt = redis.call('ZCARD', KEYS[4])
local cap = tonumber(ARGV[11])
if cnt > cap then
  redis.call('ZREMRANGEBYRANK', KEYS[4], 0, cnt - cap - 1)
end
return redis.call('LLEN', KEYS[3])
`

const claimScript = `
local jobID = redis.call('LPOP', KEYS[1])
if not jobID then
  return false
end
local key = 'vodq:job:' .. jobID
redis.call('SADD', KEYS[2], jobID)
redis.call('ZADD', KEYS[3], ARGV[2], jobID)
redis.call('HSET', key, 'state', 'processing', 'claimed_by', ARGV[1],
  'progress', '0', 'stage', 'queued', 'updated_at', ARGV[2])
redis.call('HINCRBY', key, 'attempts', 1)
return jobID
`

const progressScript = `
local key = 'vodq:job:' .. ARGV[1]
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
  return 0
end
local cur = tonumber(redis.call('HGET', key, 'progress') or '0')
local next = tonumber(ARGV[2])
if next < cur then
  return 0
end
redis.call('HSET', key, 'progress', ARGV[2], 'stage', ARGV[3], 'updated_at', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
return 1
`

const finalizeScript = `
local key = 'vodq:job:' .. ARGV[1]
local state = redis.call('HGET', key, 'state')
if state == 'completed' or state == 'failed' then
  return 0
end
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
if ARGV[2] == '1' then
  redis.call('HSET', key, 'state', 'completed', 'progress', '100', 'stage', 'complete',
    'result_json', ARGV[3], 'error', '', 'updated_at', ARGV[4])
  redis.call('INCR', KEYS[4])
  redis.call('DEL', KEYS[3])
  return 'completed'
end
local attempts = tonumber(redis.call('HGET', key, 'attempts') or '0')
local maxAttempts = tonumber(ARGV[5])
local fatal = ARGV[6] == '1'
if not fatal and attempts < maxAttempts then
  local backoff = 5000 * math.pow(2, attempts - 1)
  local readyAt = tonumber(ARGV[4]) + backoff
  redis.call('HSET', key, 'state', 'delayed', 'error', ARGV[3], 'updated_at', ARGV[4])
  redis.call('ZADD', KEYS[5], readyAt, ARGV[1])
  return 'delayed'
end
redis.call('HSET', key, 'state', 'failed', 'error', ARGV[3], 'updated_at', ARGV[4])
redis.call('INCR', KEYS[6])
redis.call('DEL', KEYS[3])
return 'failed'
`

const retryScript = `
local key = 'vodq:job:' .. ARGV[1]
local state = redis.call('HGET', key, 'state')
if state ~= 'failed' then
  return 0
end
redis.call('HSET', key, 'state', 'pending', 'attempts', '0', 'progress', '0',
  'stage', 'queued', 'error', '', 'updated_at', ARGV[2])
redis.call('RPUSH', KEYS[1], ARGV[1])
return 1
`

const removeScript = `
local key = 'vodq:job:' .. ARGV[1]
local state = redis.call('HGET', key, 'state')
if state == false or state == 'completed' or state == 'failed' then
  return 0
end
redis.call('LREM', KEYS[1], 0, ARGV[1])
redis.call('SREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('DEL', key)
redis.call('DEL', KEYS[5])
return 1
`

const stallSweepScript = `
local key = 'vodq:job:' .. ARGV[1]
local state = redis.call('HGET', key, 'state')
if state ~= 'processing' then
  redis.call('ZREM', KEYS[2], ARGV[1])
  return 0
end
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HSET', key, 'state', 'pending', 'updated_at', ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[1])
return 1
`

const promoteDelayedScript = `
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('HSET', 'vodq:job:' .. id, 'state', 'pending', 'updated_at', ARGV[1])
  redis.call('RPUSH', KEYS[2], id)
end
return #ids
`
