package redis

import "github.com/redis/go-redis/v9"

// rolloverScript applies the rollover rule to the ledger hash in KEYS[1].
// ARGV: year, month, updated_at, mode, plan id, then field/grant pairs where
// a grant of -1 means unlimited. Mode "0" is a refresh: skipped when the stamp
// matches, and the stored plan is only filled in when empty. Mode "1" is a
// plan change: skipped when the stored plan matches, otherwise the plan is
// replaced. Returns the hash as a flat field/value list.
var rolloverScript = redis.NewScript(`
local key = KEYS[1]
local year = redis.call('HGET', key, 'period_year')
local month = redis.call('HGET', key, 'period_month')
local plan = redis.call('HGET', key, 'plan_id')
if ARGV[4] ~= '1' and year == ARGV[1] and month == ARGV[2] then
	return redis.call('HGETALL', key)
end
if ARGV[4] == '1' and ARGV[5] ~= '' and plan == ARGV[5] then
	return redis.call('HGETALL', key)
end
for i = 6, #ARGV, 2 do
	local field = ARGV[i]
	local grant = tonumber(ARGV[i + 1])
	local value = grant
	if grant ~= -1 then
		local prev = redis.call('HGET', key, field)
		if prev and tonumber(prev) ~= -1 then
			value = tonumber(prev) + grant
		end
	end
	redis.call('HSET', key, field, string.format('%.0f', value))
end
if ARGV[4] == '1' or not plan or plan == '' then
	redis.call('HSET', key, 'plan_id', ARGV[5])
end
redis.call('HSET', key, 'period_year', ARGV[1], 'period_month', ARGV[2], 'updated_at', ARGV[3])
return redis.call('HGETALL', key)
`)

// consumeScript subtracts ARGV[2] from field ARGV[1] when the balance covers it.
// Returns {status, value}: status 1 = consumed (value is the remaining balance,
// -1 for unlimited), 0 = exceeded (value is the untouched balance),
// -1 = ledger missing.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return {-1, 0}
end
local current = tonumber(redis.call('HGET', key, ARGV[1]) or '0')
if current == -1 then
	return {1, -1}
end
local count = tonumber(ARGV[2])
if current < count then
	return {0, current}
end
local left = current - count
redis.call('HSET', key, ARGV[1], string.format('%.0f', left), 'updated_at', ARGV[3])
return {1, left}
`)

// zeroScript sets every field in ARGV[2..] to 0 and clears the plan when the
// hash exists.
var zeroScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return 0
end
for i = 2, #ARGV do
	redis.call('HSET', key, ARGV[i], '0')
end
redis.call('HSET', key, 'plan_id', '', 'updated_at', ARGV[1])
return 1
`)
