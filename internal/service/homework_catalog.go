package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/studio-homework-api/internal/dto"
	"github.com/noah-isme/studio-homework-api/internal/models"
	"github.com/noah-isme/studio-homework-api/internal/observability"
	"github.com/noah-isme/studio-homework-api/internal/repository"
)

// HomeworkCatalog is the read-only view of modules, homeworks and requirements.
type HomeworkCatalog interface {
	GetHomework(ctx context.Context, id uint) (models.Homework, error)
	ListModules(ctx context.Context) ([]dto.ModuleResponse, error)
}

type homeworkCatalog struct {
	homeworks repository.HomeworkRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    zerolog.Logger
}

// NewHomeworkCatalog builds the catalog. Homework definitions are immutable
// from this service's perspective, so they may be cached in Redis.
func NewHomeworkCatalog(homeworks repository.HomeworkRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) HomeworkCatalog {
	return &homeworkCatalog{
		homeworks: homeworks,
		cache:     cache,
		cacheTTL:  ttl,
		logger:    logger.With().Str("component", "homework_catalog").Logger(),
	}
}

func (c *homeworkCatalog) GetHomework(ctx context.Context, id uint) (models.Homework, error) {
	cacheKey := catalogCacheKey(id)

	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey).Result(); err == nil {
			var homework models.Homework
			if unmarshalErr := json.Unmarshal([]byte(cached), &homework); unmarshalErr == nil {
				observability.CatalogLookups().WithLabelValues("hit").Inc()
				return homework, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("failed to read catalog cache")
		}
	}

	homework, err := c.homeworks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Homework{}, ErrHomeworkNotFound
		}
		return models.Homework{}, fmt.Errorf("failed to load homework %d: %w", id, err)
	}
	observability.CatalogLookups().WithLabelValues("miss").Inc()

	if c.cache != nil {
		if payload, err := json.Marshal(homework); err == nil {
			if err := c.cache.Set(ctx, cacheKey, payload, c.cacheTTL).Err(); err != nil {
				c.logger.Warn().Err(err).Msg("failed to store catalog cache")
			}
		}
	}

	return homework, nil
}

func (c *homeworkCatalog) ListModules(ctx context.Context) ([]dto.ModuleResponse, error) {
	modules, err := c.homeworks.ListModules(ctx)
	if err != nil {
		return nil, err
	}

	return dto.NewModuleResponseSlice(modules), nil
}

func catalogCacheKey(id uint) string {
	return fmt.Sprintf("catalog:homework:%d", id)
}
