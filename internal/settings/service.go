package settings

import (
	"context"
	"errors"

	"storefront-be/internal/logger"
	"storefront-be/internal/pricing"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const defaultCacheSize = 32

// Service serves pricing config versions. Versions never change once
// written, so every version read is cached.
type Service interface {
	Current(ctx context.Context) (pricing.Config, error)
	ByVersion(ctx context.Context, version int64) (pricing.Config, error)
	Publish(ctx context.Context, cfg pricing.Config) (pricing.Config, error)
	History(ctx context.Context, limit int) ([]pricing.Config, error)
	// EnsureSeeded publishes the default config when no version exists.
	EnsureSeeded(ctx context.Context) (pricing.Config, error)
}

type service struct {
	repo  Repository
	cache *lru.Cache[int64, pricing.Config]
}

func NewService(repo Repository, cacheSize int) (Service, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[int64, pricing.Config](cacheSize)
	if err != nil {
		return nil, err
	}
	return &service{repo: repo, cache: cache}, nil
}

func (s *service) Current(ctx context.Context) (pricing.Config, error) {
	cfg, err := s.repo.Latest(ctx)
	if err != nil {
		return pricing.Config{}, err
	}
	s.cache.Add(cfg.Version, cfg)
	return cfg.Clone(), nil
}

func (s *service) ByVersion(ctx context.Context, version int64) (pricing.Config, error) {
	if cfg, ok := s.cache.Get(version); ok {
		return cfg.Clone(), nil
	}
	cfg, err := s.repo.GetByVersion(ctx, version)
	if err != nil {
		return pricing.Config{}, err
	}
	s.cache.Add(cfg.Version, cfg)
	return cfg.Clone(), nil
}

func (s *service) Publish(ctx context.Context, cfg pricing.Config) (pricing.Config, error) {
	log := logger.ForComponent(ctx, "service", "Publish")

	if err := cfg.Validate(); err != nil {
		log.Warn("rejected pricing config", zap.Error(err))
		return pricing.Config{}, err
	}

	saved, err := s.repo.Insert(ctx, cfg.Clone())
	if err != nil {
		log.Error("failed to insert pricing config", zap.Error(err))
		return pricing.Config{}, err
	}
	s.cache.Add(saved.Version, saved)

	log.Info("pricing config published", zap.Int64("version", saved.Version))
	return saved.Clone(), nil
}

func (s *service) History(ctx context.Context, limit int) ([]pricing.Config, error) {
	return s.repo.ListVersions(ctx, limit)
}

func (s *service) EnsureSeeded(ctx context.Context) (pricing.Config, error) {
	cfg, err := s.Current(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, pricing.ErrConfigNotFound) {
		return pricing.Config{}, err
	}
	logger.FromCtx(ctx).Info("no pricing config found, seeding defaults")
	return s.Publish(ctx, pricing.DefaultConfig())
}
