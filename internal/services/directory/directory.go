// Package directory отдаёт каталог тарифов платформы в нормализованном виде.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

const cacheKey = "plans:catalog"

// PlansSource: эндпоинт каталога тарифов.
type PlansSource interface {
	Plans(ctx context.Context) (json.RawMessage, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Directory: каталог тарифов. Ошибки чтения не доходят до вызывающего:
// они логируются, а каталог считается пустым.
type Directory struct {
	source PlansSource
	cache  Cache
	ttl    time.Duration
	log    *slog.Logger
}

// New создаёт каталог. cache может быть nil, тогда каталог не кэшируется.
func New(source PlansSource, cache Cache, ttl time.Duration, log *slog.Logger) *Directory {
	return &Directory{source: source, cache: cache, ttl: ttl, log: log}
}

// ListPlans возвращает упорядоченный список предложений.
func (d *Directory) ListPlans(ctx context.Context) []models.PlanOffer {
	const op = "directory.ListPlans"

	if d.cache != nil {
		var cached []models.PlanOffer
		found, err := d.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			d.log.Warn("failed to read plans from cache", sl.Op(op), sl.Err(err))
		}
		if found {
			return cached
		}
	}

	body, err := d.source.Plans(ctx)
	if err != nil {
		d.log.Error("failed to fetch plans", sl.Op(op), sl.Err(err))
		return []models.PlanOffer{}
	}
	plans, err := d.normalize(body)
	if err != nil {
		d.log.Error("malformed plans payload", sl.Op(op), sl.Err(err))
		return []models.PlanOffer{}
	}

	if d.cache != nil && d.ttl > 0 {
		if err := d.cache.Set(ctx, cacheKey, plans, d.ttl); err != nil {
			d.log.Warn("failed to cache plans", sl.Op(op), sl.Err(err))
		}
	}
	return plans
}

// normalize принимает массив тарифов или объект с тарифами по id.
// Объект упорядочивается по ключу.
func (d *Directory) normalize(body json.RawMessage) ([]models.PlanOffer, error) {
	type keyed struct {
		key string
		raw json.RawMessage
	}
	var items []keyed

	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		for _, raw := range list {
			items = append(items, keyed{raw: raw})
		}
	} else {
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(body, &byID); err != nil {
			return nil, fmt.Errorf("plans payload is neither array nor object: %w", err)
		}
		keys := make([]string, 0, len(byID))
		for k := range byID {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			items = append(items, keyed{key: k, raw: byID[k]})
		}
	}

	plans := make([]models.PlanOffer, 0, len(items))
	for _, it := range items {
		var p models.PlanOffer
		if err := json.Unmarshal(it.raw, &p); err != nil {
			d.log.Warn("skipping undecodable plan", slog.String("key", it.key), sl.Err(err))
			continue
		}
		if p.ID == "" {
			p.ID = it.key
		}
		if p.PlanType == "" {
			p.PlanType = p.ID
		}
		if p.Features == nil {
			p.Features = []string{}
		}
		if err := p.Validate(); err != nil {
			d.log.Warn("skipping invalid plan", slog.String("plan", p.PlanType), sl.Err(err))
			continue
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// Find ищет тариф по типу.
func Find(plans []models.PlanOffer, planType string) (models.PlanOffer, bool) {
	for _, p := range plans {
		if p.PlanType == planType {
			return p, true
		}
	}
	return models.PlanOffer{}, false
}
