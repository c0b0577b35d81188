package redis

import "github.com/redis/go-redis/v9"

// Partition lists and the body hash are touched together by these scripts so
// a message is never visible in two partitions or without its body.

// KEYS[1] source list, KEYS[2] destination list; ARGV[1] id.
var moveScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)

// KEYS[1] partition list, KEYS[2] body hash; ARGV[1] id.
var receiveScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then
	return false
end
local body = redis.call('HGET', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return body
`)

// KEYS[1] partition list, KEYS[2] body hash.
var purgeScript = redis.NewScript(`
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
	redis.call('HDEL', KEYS[2], id)
end
redis.call('DEL', KEYS[1])
return #ids
`)
