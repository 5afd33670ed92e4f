package redisreg

import "github.com/redis/go-redis/v9"

// Each script keeps the worker hash and the availability ZSET in step.
// KEYS[1] = worker hash, KEYS[2] = available ZSET, KEYS[3] = all-workers SET.

// setAvailabilityScript returns 0 for an unknown worker, 1 otherwise.
// ARGV[1] = id, ARGV[2] = "1" | "0".
var setAvailabilityScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'available', ARGV[2])
if ARGV[2] == '1' then
  redis.call('ZADD', KEYS[2], redis.call('HGET', KEYS[1], 'score'), ARGV[1])
else
  redis.call('ZREM', KEYS[2], ARGV[1])
end
return 1
`)

// setScoreScript returns 0 for an unknown worker, 1 otherwise.
// ARGV[1] = id, ARGV[2] = score.
var setScoreScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'score', ARGV[2])
if redis.call('HGET', KEYS[1], 'available') == '1' then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
end
return 1
`)

// upsertScript keeps an existing score and returns the stored score.
// ARGV[1] = id, ARGV[2] = name, ARGV[3] = "1" | "0", ARGV[4] = score,
// ARGV[5] = skills (JSON).
var upsertScript = redis.NewScript(`
local score = redis.call('HGET', KEYS[1], 'score')
if not score then
  score = ARGV[4]
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'name', ARGV[2], 'available', ARGV[3], 'score', score, 'skills', ARGV[5])
redis.call('SADD', KEYS[3], ARGV[1])
if ARGV[3] == '1' then
  redis.call('ZADD', KEYS[2], score, ARGV[1])
else
  redis.call('ZREM', KEYS[2], ARGV[1])
end
return score
`)
