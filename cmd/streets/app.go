package main

import (
	"fmt"

	"github.com/constituency-streets/internal/adapter"
	"github.com/constituency-streets/internal/gazetteer"
	"github.com/constituency-streets/internal/ratelimit"
	"github.com/constituency-streets/internal/resolver"
	"github.com/constituency-streets/internal/service"
	"github.com/constituency-streets/internal/storage"
	"github.com/constituency-streets/internal/worker"
)

// app wires the repositories and services a CLI command needs. Commands
// build only the parts they use through the lazy getters below.
type app struct {
	db    *storage.PostgresDB
	redis *storage.RedisCache

	addresses *storage.AddressRepository
	postcodes *storage.PostcodeRepository
	roads     *storage.RoadRepository
	usageLog  *storage.UsageLogRepository
	reference *storage.ReferenceRepository

	client *adapter.GetAddressClient
	budget *ratelimit.LookupBudget
}

func newApp() (*app, error) {
	db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	a := &app{
		db:        db,
		addresses: storage.NewAddressRepository(db),
		postcodes: storage.NewPostcodeRepository(db),
		roads:     storage.NewRoadRepository(db),
		usageLog:  storage.NewUsageLogRepository(db),
		reference: storage.NewReferenceRepository(db),
	}
	a.client = adapter.NewGetAddressClient(cfg.Lookup, logger)
	a.budget = ratelimit.NewLookupBudget(a.client, cfg.Budget.LockTimeout, logger)
	return a, nil
}

// withRedis attaches the response cache connection. Only the fetch path
// needs it.
func (a *app) withRedis() error {
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = redis
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) windowGovernor() (*ratelimit.WindowGovernor, error) {
	return ratelimit.NewWindowGovernor(ratelimit.WindowConfig{
		Ceiling:      cfg.Budget.MaxRequestsPer5Min,
		Headroom:     cfg.Budget.Headroom,
		WaitInterval: cfg.Budget.WaitInterval,
		MaxWaits:     cfg.Budget.MaxWaits,
	}, a.usageLog, logger)
}

func (a *app) fetchService(governor *ratelimit.WindowGovernor) *service.FetchService {
	cache := storage.NewLookupCache(a.redis, cfg.Lookup.CacheTTL)
	return service.NewFetchService(a.client, governor, a.budget, cache, a.postcodes, a.addresses, logger)
}

func (a *app) resolveService() *service.ResolveService {
	roadCache := gazetteer.NewRoadCache(a.roads)
	return service.NewResolveService(roadCache, a.addresses, resolver.New(logger), logger)
}

func (a *app) progressService(governor *ratelimit.WindowGovernor) *service.ProgressService {
	return service.NewProgressService(a.reference, a.postcodes, governor, a.budget)
}

func (a *app) orchestrator(fetch *service.FetchService, resolve *service.ResolveService) *worker.Orchestrator {
	return worker.NewOrchestrator(a.postcodes, fetch, resolve, cfg.Worker.Parallelism, showProgress, logger)
}
