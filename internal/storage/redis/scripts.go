package redis

const (
	// setFamilyScript replaces the family blob and bumps its revision
	// in one step so readers never see a blob without its metadata.
	setFamilyScript = `
local blob_key = KEYS[1]     -- timeledger:family:{family}
local meta_key = KEYS[2]     -- timeledger:family:{family}:meta

local blob = ARGV[1]
local updated_at = ARGV[2]
local writer = ARGV[3]

redis.call('SET', blob_key, blob)

local revision = redis.call('HINCRBY', meta_key, 'revision', 1)
redis.call('HSET', meta_key,
  'updated_at', updated_at,
  'writer', writer
)

return revision
`
)
