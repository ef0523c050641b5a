package redis

const (
	// ensureBudgetDayScript creates a zero-usage ledger row if absent
	ensureBudgetDayScript = `
local budget_key = KEYS[1]     -- kerbd:budget:{vehicleID}:{date}

local vehicle_id = ARGV[1]
local anchor_date = ARGV[2]
local now = ARGV[3]

if redis.call('EXISTS', budget_key) == 0 then
  redis.call('HSET', budget_key,
    'vehicle_id', vehicle_id,
    'anchor_date', anchor_date,
    'minutes_used', 0,
    'created_at', now,
    'updated_at', now
  )
  -- Rows stop mattering once the anchor day passes; keep two days
  redis.call('EXPIRE', budget_key, 172800)
end

return 'OK'
`

	// addBudgetMinutesScript increments a ledger row, clamped at the
	// daily cap, and returns the minutes actually applied
	addBudgetMinutesScript = `
local budget_key = KEYS[1]     -- kerbd:budget:{vehicleID}:{date}

local vehicle_id = ARGV[1]
local anchor_date = ARGV[2]
local minutes = tonumber(ARGV[3])
local cap = tonumber(ARGV[4])
local now = ARGV[5]

local used = tonumber(redis.call('HGET', budget_key, 'minutes_used'))
if not used then
  redis.call('HSET', budget_key,
    'vehicle_id', vehicle_id,
    'anchor_date', anchor_date,
    'minutes_used', 0,
    'created_at', now,
    'updated_at', now
  )
  redis.call('EXPIRE', budget_key, 172800)
  used = 0
end

local applied = minutes
if used + applied > cap then
  applied = cap - used
end
if applied < 0 then
  applied = 0
end

if applied > 0 then
  redis.call('HINCRBY', budget_key, 'minutes_used', applied)
  redis.call('HSET', budget_key, 'updated_at', now)
end

return applied
`

	// createSessionScript stores a session and indexes active ones in the
	// due set, scored by planned end
	createSessionScript = `
local session_key = KEYS[1]    -- kerbd:session:{sessionID}
local due_set = KEYS[2]        -- kerbd:sessions:due

local session_id = ARGV[1]
local vehicle_id = ARGV[2]
local segment_id = ARGV[3]
local started_at = ARGV[4]
local planned_end_at = ARGV[5]
local planned_end_unix = ARGV[6]
local status = ARGV[7]
local billable = ARGV[8]
local uses_budget = ARGV[9]
local now = ARGV[10]

redis.call('HSET', session_key,
  'id', session_id,
  'vehicle_id', vehicle_id,
  'segment_id', segment_id,
  'started_at', started_at,
  'planned_end_at', planned_end_at,
  'status', status,
  'paid_minutes', 0,
  'free_minutes_charged', 0,
  'billable', billable,
  'uses_budget', uses_budget,
  'created_at', now,
  'updated_at', now
)

if status == 'active' then
  redis.call('ZADD', due_set, planned_end_unix, session_id)
end

return 'OK'
`

	// finalizeSessionScript is the settlement primitive: it transitions
	// the session out of active, applies the clamped budget charges and
	// records the paid/free split, all in one atomic step. A session
	// already settled is left untouched.
	finalizeSessionScript = `
local session_key = KEYS[1]    -- kerbd:session:{sessionID}
local due_set = KEYS[2]        -- kerbd:sessions:due
-- KEYS[3..] are the budget keys for each charge

local session_id = ARGV[1]
local stopped_at = ARGV[2]
local status = ARGV[3]
local total_minutes = tonumber(ARGV[4])
local cap = tonumber(ARGV[5])
local now = ARGV[6]
-- ARGV[7..] are (vehicle_id, anchor_date, minutes) triples, one per budget key

local current = redis.call('HGET', session_key, 'status')
if not current then
  return {-1, 0, 0}
end
if current ~= 'active' then
  return {0, 0, 0}
end

local free = 0
local charges = #KEYS - 2
for i = 1, charges do
  local budget_key = KEYS[2 + i]
  local base = 6 + (i - 1) * 3
  local vehicle_id = ARGV[base + 1]
  local anchor_date = ARGV[base + 2]
  local minutes = tonumber(ARGV[base + 3])

  local used = tonumber(redis.call('HGET', budget_key, 'minutes_used'))
  if not used then
    redis.call('HSET', budget_key,
      'vehicle_id', vehicle_id,
      'anchor_date', anchor_date,
      'minutes_used', 0,
      'created_at', now,
      'updated_at', now
    )
    redis.call('EXPIRE', budget_key, 172800)
    used = 0
  end

  local applied = minutes
  if used + applied > cap then
    applied = cap - used
  end
  if applied < 0 then
    applied = 0
  end
  if applied > 0 then
    redis.call('HINCRBY', budget_key, 'minutes_used', applied)
    redis.call('HSET', budget_key, 'updated_at', now)
  end
  free = free + applied
end

local paid = 0
if redis.call('HGET', session_key, 'billable') == '1' then
  paid = total_minutes - free
  if paid < 0 then
    paid = 0
  end
end

redis.call('HSET', session_key,
  'status', status,
  'stopped_at', stopped_at,
  'paid_minutes', paid,
  'free_minutes_charged', free,
  'updated_at', now
)
redis.call('ZREM', due_set, session_id)
-- Keep settled sessions 90 days
redis.call('EXPIRE', session_key, 7776000)

return {1, paid, free}
`
)
