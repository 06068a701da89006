package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/fitfast/internal/core/domain"
)

const (
	itemKeyPrefix = "item:"

	fieldTotal    = "total"
	fieldVersion  = "version"
	fieldAggModel = "agg_model"
)

// All keys of one item share the {itemID} hash tag, so the scripts below
// touch a single cluster slot.
type itemKeys struct {
	meta      string
	variants  string
	colors    string
	aggColors string
	aggSizes  string
}

func keysFor(itemID string) itemKeys {
	base := itemKeyPrefix + "{" + itemID + "}:"
	return itemKeys{
		meta:      base + "meta",
		variants:  base + "variants",
		colors:    base + "colors",
		aggColors: base + "agg:colors",
		aggSizes:  base + "agg:sizes",
	}
}

var createItemScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// KEYS[1] meta, KEYS[2] stock hash; ARGV field, quantity. Sold-out fields
// are removed.
var decrementStockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end

local quantity = tonumber(ARGV[2])
local current = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
if current < quantity then
	return 0
end

local remaining = current - quantity
if remaining <= 0 then
	redis.call('HDEL', KEYS[2], ARGV[1])
else
	redis.call('HSET', KEYS[2], ARGV[1], remaining)
end
redis.call('HINCRBY', KEYS[1], 'version', 1)
return 1
`)

var incrementStockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end

local current = redis.call('HINCRBY', KEYS[2], ARGV[1], ARGV[2])
if current <= 0 then
	redis.call('HDEL', KEYS[2], ARGV[1])
end
redis.call('HINCRBY', KEYS[1], 'version', 1)
return 1
`)

var setStockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end

if tonumber(ARGV[2]) <= 0 then
	redis.call('HDEL', KEYS[2], ARGV[1])
else
	redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
end
redis.call('HINCRBY', KEYS[1], 'version', 1)
return 1
`)

// KEYS meta, variants, colors; ARGV signed delta. Returns -2 when the item
// tracks variant or color stock, 0 when a decrement would go below zero.
var adjustTotalScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HLEN', KEYS[2]) > 0 or redis.call('HLEN', KEYS[3]) > 0 then
	return -2
end
local model = redis.call('HGET', KEYS[1], 'agg_model')
if model and model ~= '' and model ~= 'flat' then
	return -2
end

local remaining = tonumber(redis.call('HGET', KEYS[1], 'total') or '0') + tonumber(ARGV[1])
if remaining < 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'total', remaining)
redis.call('HINCRBY', KEYS[1], 'version', 1)
return 1
`)

// KEYS meta, agg colors, agg sizes; ARGV version, grand total, model, color
// count, then color pairs, then size pairs.
var saveAggregationScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'version') ~= ARGV[1] then
	return 0
end

redis.call('DEL', KEYS[2], KEYS[3])
local i = 5
for _ = 1, tonumber(ARGV[4]) do
	redis.call('HSET', KEYS[2], ARGV[i], ARGV[i + 1])
	i = i + 2
end
while i <= #ARGV do
	redis.call('HSET', KEYS[3], ARGV[i], ARGV[i + 1])
	i = i + 2
end
redis.call('HSET', KEYS[1], 'total', ARGV[2], 'agg_model', ARGV[3])
return 1
`)

type RedisStockStore struct {
	client redis.UniversalClient
}

func NewRedisStockStore(client redis.UniversalClient) *RedisStockStore {
	return &RedisStockStore{client: client}
}

func (r *RedisStockStore) CreateItem(ctx context.Context, item domain.Item) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	args := []interface{}{
		"name", item.Name,
		"description", item.Description,
		"garment_type", string(item.GarmentType),
		"price_cents", item.PriceCents,
		"created_at", item.CreatedAt.Format(time.RFC3339Nano),
		"updated_at", now.Format(time.RFC3339Nano),
		fieldTotal, 0,
		fieldVersion, 0,
		fieldAggModel, string(domain.StockModelFlat),
	}

	created, err := createItemScript.Run(ctx, r.client, []string{keysFor(item.ID).meta}, args...).Int()
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	if created == 0 {
		return ErrItemExists
	}
	return nil
}

func (r *RedisStockStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	meta, err := r.client.HGetAll(ctx, keysFor(itemID).meta).Result()
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(meta) == 0 {
		return nil, domain.ErrItemNotFound
	}

	item := &domain.Item{
		ID:          itemID,
		Name:        meta["name"],
		Description: meta["description"],
		GarmentType: domain.GarmentType(meta["garment_type"]),
	}
	item.PriceCents, _ = strconv.ParseInt(meta["price_cents"], 10, 64)
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, meta["created_at"])
	item.UpdatedAt, _ = time.Parse(time.RFC3339Nano, meta["updated_at"])
	return item, nil
}

func (r *RedisStockStore) Snapshot(ctx context.Context, itemID string) (domain.StockSnapshot, error) {
	keys := keysFor(itemID)

	var meta, variants, colors, aggColors, aggSizes *redis.MapStringStringCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, keys.meta)
		variants = pipe.HGetAll(ctx, keys.variants)
		colors = pipe.HGetAll(ctx, keys.colors)
		aggColors = pipe.HGetAll(ctx, keys.aggColors)
		aggSizes = pipe.HGetAll(ctx, keys.aggSizes)
		return nil
	})
	if err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	if len(meta.Val()) == 0 {
		return domain.StockSnapshot{}, domain.ErrItemNotFound
	}

	snap := domain.StockSnapshot{
		ItemID:     itemID,
		Variants:   make(domain.VariantTable, len(variants.Val())),
		ColorStock: make(map[string]int, len(colors.Val())),
		Aggregation: domain.AggregationView{
			Model:       domain.StockModel(meta.Val()[fieldAggModel]),
			ColorTotals: make(map[string]int, len(aggColors.Val())),
			SizeTotals:  make(map[domain.Size]int, len(aggSizes.Val())),
		},
	}
	if snap.Total, err = atoi(meta.Val()[fieldTotal]); err != nil {
		return domain.StockSnapshot{}, err
	}
	if snap.Version, err = strconv.ParseInt(meta.Val()[fieldVersion], 10, 64); err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("parse version: %w", err)
	}
	snap.Aggregation.GrandTotal = snap.Total

	for field, raw := range variants.Val() {
		key, err := domain.ParseVariantKey(field)
		if err != nil {
			return domain.StockSnapshot{}, err
		}
		if snap.Variants[key], err = atoi(raw); err != nil {
			return domain.StockSnapshot{}, err
		}
	}
	for color, raw := range colors.Val() {
		if snap.ColorStock[color], err = atoi(raw); err != nil {
			return domain.StockSnapshot{}, err
		}
	}
	for color, raw := range aggColors.Val() {
		if snap.Aggregation.ColorTotals[color], err = atoi(raw); err != nil {
			return domain.StockSnapshot{}, err
		}
	}
	for size, raw := range aggSizes.Val() {
		if snap.Aggregation.SizeTotals[domain.Size(size)], err = atoi(raw); err != nil {
			return domain.StockSnapshot{}, err
		}
	}
	return snap, nil
}

func (r *RedisStockStore) GetVariantStock(ctx context.Context, itemID string, key domain.VariantKey) (int, error) {
	return r.getField(ctx, keysFor(itemID).variants, key.String())
}

func (r *RedisStockStore) SetVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) error {
	keys := keysFor(itemID)
	return r.run(ctx, setStockScript, keys.meta, keys.variants, key.String(), quantity)
}

func (r *RedisStockStore) DecrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) (bool, error) {
	keys := keysFor(itemID)
	return r.decrement(ctx, keys.meta, keys.variants, key.String(), quantity)
}

func (r *RedisStockStore) IncrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) error {
	keys := keysFor(itemID)
	return r.run(ctx, incrementStockScript, keys.meta, keys.variants, key.String(), quantity)
}

func (r *RedisStockStore) GetColorStock(ctx context.Context, itemID, color string) (int, error) {
	return r.getField(ctx, keysFor(itemID).colors, color)
}

func (r *RedisStockStore) SetColorStock(ctx context.Context, itemID, color string, quantity int) error {
	keys := keysFor(itemID)
	return r.run(ctx, setStockScript, keys.meta, keys.colors, color, quantity)
}

func (r *RedisStockStore) DecrementColorStock(ctx context.Context, itemID, color string, quantity int) (bool, error) {
	keys := keysFor(itemID)
	return r.decrement(ctx, keys.meta, keys.colors, color, quantity)
}

func (r *RedisStockStore) IncrementColorStock(ctx context.Context, itemID, color string, quantity int) error {
	keys := keysFor(itemID)
	return r.run(ctx, incrementStockScript, keys.meta, keys.colors, color, quantity)
}

func (r *RedisStockStore) GetTotalStock(ctx context.Context, itemID string) (int, error) {
	return r.getField(ctx, keysFor(itemID).meta, fieldTotal)
}

func (r *RedisStockStore) DecrementTotalStock(ctx context.Context, itemID string, quantity int) (bool, error) {
	return r.adjustTotal(ctx, itemID, -quantity)
}

func (r *RedisStockStore) IncrementTotalStock(ctx context.Context, itemID string, quantity int) error {
	_, err := r.adjustTotal(ctx, itemID, quantity)
	return err
}

func (r *RedisStockStore) SaveAggregation(ctx context.Context, itemID string, view domain.AggregationView, version int64) error {
	keys := keysFor(itemID)

	args := make([]interface{}, 0, 4+2*(len(view.ColorTotals)+len(view.SizeTotals)))
	args = append(args, strconv.FormatInt(version, 10), view.GrandTotal, string(view.Model), len(view.ColorTotals))
	for color, n := range view.ColorTotals {
		args = append(args, color, n)
	}
	for size, n := range view.SizeTotals {
		args = append(args, string(size), n)
	}

	result, err := saveAggregationScript.Run(ctx, r.client,
		[]string{keys.meta, keys.aggColors, keys.aggSizes}, args...).Int()
	if err != nil {
		return fmt.Errorf("save aggregation: %w", err)
	}
	switch result {
	case -1:
		return domain.ErrItemNotFound
	case 0:
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *RedisStockStore) getField(ctx context.Context, key, field string) (int, error) {
	n, err := r.client.HGet(ctx, key, field).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (r *RedisStockStore) decrement(ctx context.Context, meta, hash, field string, quantity int) (bool, error) {
	result, err := decrementStockScript.Run(ctx, r.client, []string{meta, hash}, field, quantity).Int()
	if err != nil {
		return false, err
	}
	if result == -1 {
		return false, domain.ErrItemNotFound
	}
	return result == 1, nil
}

func (r *RedisStockStore) run(ctx context.Context, script *redis.Script, meta, hash, field string, quantity int) error {
	result, err := script.Run(ctx, r.client, []string{meta, hash}, field, quantity).Int()
	if err != nil {
		return err
	}
	if result == -1 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *RedisStockStore) adjustTotal(ctx context.Context, itemID string, delta int) (bool, error) {
	keys := keysFor(itemID)
	result, err := adjustTotalScript.Run(ctx, r.client,
		[]string{keys.meta, keys.variants, keys.colors}, delta).Int()
	if err != nil {
		return false, err
	}
	switch result {
	case -1:
		return false, domain.ErrItemNotFound
	case -2:
		return false, errNotFlat
	}
	return result == 1, nil
}

func atoi(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse stock %q: %w", raw, err)
	}
	return n, nil
}
