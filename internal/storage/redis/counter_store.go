package redis

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

const opTimeout = 3 * time.Second

// luaApplyClamped атомарно применяет дельту к счётчику с полом ноль.
// Хэш хранит значение (v) и версию (ver). Возвращает {новое значение,
// признак обрезки}.
const luaApplyClamped = `
local key = KEYS[1]
local delta = tonumber(ARGV[1])

local value = tonumber(redis.call('HGET', key, 'v') or '0')
local next = value + delta
local clamped = 0
if next < 0 then
  next = 0
  clamped = 1
end

redis.call('HSET', key, 'v', next)
redis.call('HINCRBY', key, 'ver', 1)
return {next, clamped}
`

// luaCompareAndSwap записывает новое значение при совпадении версии.
// Возвращает 1 при успехе, 0 при конфликте.
const luaCompareAndSwap = `
local key = KEYS[1]
local expected = tonumber(ARGV[1])
local next = tonumber(ARGV[2])

local ver = tonumber(redis.call('HGET', key, 'ver') or '0')
if ver ~= expected then
  return 0
end

redis.call('HSET', key, 'v', next)
redis.call('HINCRBY', key, 'ver', 1)
return 1
`

var (
	applyClampedScript   = rd.NewScript(luaApplyClamped)
	compareAndSwapScript = rd.NewScript(luaCompareAndSwap)
)

// CounterStore — реализация CounterRepository поверх Redis. Атомарность
// обеих дисциплин обеспечивают Lua-скрипты: сервер выполняет их
// неделимо, без блокировок на стороне клиента.
type CounterStore struct {
	rdb *rd.Client
}

// NewCounterStore создаёт Redis-хранилище счётчиков.
func NewCounterStore(rdb *rd.Client) *CounterStore {
	return &CounterStore{rdb: rdb}
}

func counterKey(kind domain.CounterKind, entityID string) string {
	return fmt.Sprintf("rfs:counter:%s:%s", kind, entityID)
}

// Get возвращает текущее значение и версию; отсутствующий ключ
// трактуется как нулевой счётчик.
func (s *CounterStore) Get(kind domain.CounterKind, entityID string) (domain.Counter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	counter := domain.Counter{Kind: kind, EntityID: entityID}
	fields, err := s.rdb.HMGet(ctx, counterKey(kind, entityID), "v", "ver").Result()
	if err != nil {
		return domain.Counter{}, fmt.Errorf("load counter %s/%s: %w", kind, entityID, err)
	}

	if value, ok := fields[0].(string); ok {
		if _, err := fmt.Sscan(value, &counter.Value); err != nil {
			return domain.Counter{}, fmt.Errorf("parse counter value: %w", err)
		}
	}
	if version, ok := fields[1].(string); ok {
		if _, err := fmt.Sscan(version, &counter.Version); err != nil {
			return domain.Counter{}, fmt.Errorf("parse counter version: %w", err)
		}
	}

	return counter, nil
}

// ApplyLocked применяет дельту атомарным скриптом; Redis выполняет его
// эксклюзивно, что эквивалентно блокировке строки.
func (s *CounterStore) ApplyLocked(kind domain.CounterKind, entityID string, delta int64) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := applyClampedScript.Run(ctx, s.rdb, []string{counterKey(kind, entityID)}, delta).Result()
	if err != nil {
		return 0, false, fmt.Errorf("apply counter delta %s/%s: %w", kind, entityID, err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, false, fmt.Errorf("unexpected script reply for %s/%s: %v", kind, entityID, raw)
	}

	next, _ := values[0].(int64)
	clampedFlag, _ := values[1].(int64)
	return next, clampedFlag == 1, nil
}

// CompareAndSwap записывает новое значение при совпадении версии,
// иначе возвращает ErrCounterVersionConflict.
func (s *CounterStore) CompareAndSwap(counter domain.Counter, newValue int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := counterKey(counter.Kind, counter.EntityID)
	ok, err := compareAndSwapScript.Run(ctx, s.rdb, []string{key}, counter.Version, newValue).Int()
	if err != nil {
		return fmt.Errorf("cas counter %s/%s: %w", counter.Kind, counter.EntityID, err)
	}
	if ok == 0 {
		return domain.ErrCounterVersionConflict
	}
	return nil
}

var _ domain.CounterRepository = (*CounterStore)(nil)
