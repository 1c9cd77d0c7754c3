package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/emirpiksel/dialara/internal/config"
	"github.com/emirpiksel/dialara/internal/dnc"
	"github.com/emirpiksel/dialara/internal/infra/db"
	"github.com/emirpiksel/dialara/internal/infra/redis"
	"github.com/emirpiksel/dialara/internal/queue"
	"github.com/emirpiksel/dialara/internal/repository"
	pgrepo "github.com/emirpiksel/dialara/internal/repository/postgres"
	scyllarepo "github.com/emirpiksel/dialara/internal/repository/scylla"
	campaignsvc "github.com/emirpiksel/dialara/internal/service/campaign"
	"github.com/emirpiksel/dialara/internal/service/runlock"
	"github.com/emirpiksel/dialara/internal/telephony"
	telephonymock "github.com/emirpiksel/dialara/internal/telephony/mock"
	"github.com/emirpiksel/dialara/internal/telephony/vapi"
	"github.com/emirpiksel/dialara/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		provider     telephony.Provider
		outcomes     *queue.OutcomePublisher
	}
}

type repositories struct {
	Campaigns repository.CampaignRepository
	Contacts  repository.ContactRepository
	Attempts  repository.AttemptStore
}

type services struct {
	Campaign *campaignsvc.Service
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	return &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Campaigns: pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Contacts:  pgrepo.NewContactRepository(c.Postgres.DB()),
			Attempts:  scyllarepo.NewAttemptStore(c.Scylla.Session(), c.Logger),
		}

		var provider telephony.Provider
		switch c.Config.Provider.Name {
		case "mock":
			provider = telephonymock.NewProvider(c.Config.Provider)
		default:
			provider = vapi.NewClient(c.Config.Provider)
		}

		outcomes := queue.NewOutcomePublisher(c.Kafka, c.Config.Kafka.OutcomeTopic)

		svc := campaignsvc.NewService(campaignsvc.Deps{
			Campaigns:    repos.Campaigns,
			Contacts:     repos.Contacts,
			Attempts:     repos.Attempts,
			Provider:     provider,
			DNC:          dnc.NewRedisRegistry(c.Redis.Inner(), c.Config.DNC),
			Outcomes:     outcomes,
			Lock:         runlock.NewLock(c.Redis.Inner(), c.Config.Dialer.RunLockTTL),
			Logger:       c.Logger,
			PollInterval: c.Config.Dialer.PollInterval,
			LockRefresh:  c.Config.Dialer.RunLockTTL / 3,
		})

		c.components.repositories = repos
		c.components.services = &services{Campaign: svc}
		c.components.provider = provider
		c.components.outcomes = outcomes
	})
}

// EnsureTopics creates the outbound Kafka topics when they are missing.
func (c *Container) EnsureTopics(ctx context.Context) error {
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.OutcomeTopic}, 6, 1)
}

// Repositories exposes the persistence layer.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes the application services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Close releases all infrastructure handles. Runs are drained first so a
// deploy does not orphan in-flight calls.
func (c *Container) Close(ctx context.Context) error {
	var errs []error

	if c.components.services != nil {
		if err := c.components.services.Campaign.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain campaign runs: %w", err))
		}
	}
	if c.components.outcomes != nil {
		if err := c.components.outcomes.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close outcome publisher: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close postgres: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close scylla: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("container close: %v", errs)
	}
	return nil
}
