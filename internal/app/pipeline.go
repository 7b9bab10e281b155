// Package app assembles the webhook pipeline from configuration for the
// api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/oportunidade/payhook/internal/accounting"
	"github.com/oportunidade/payhook/internal/dispatch"
	"github.com/oportunidade/payhook/internal/ingest"
	"github.com/oportunidade/payhook/internal/ledger"
	"github.com/oportunidade/payhook/internal/orders"
	"github.com/oportunidade/payhook/internal/reconcile"
	"github.com/oportunidade/payhook/internal/references"
	"github.com/oportunidade/payhook/internal/sweep"
	"github.com/oportunidade/payhook/internal/transactions"
	"github.com/oportunidade/payhook/pkg/config"
	"github.com/oportunidade/payhook/pkg/db"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/metrics"
	"github.com/oportunidade/payhook/pkg/odoo"
	"github.com/oportunidade/payhook/pkg/pubsub"
	"github.com/oportunidade/payhook/pkg/redis"
)

const sweepLockName = "sweep"

type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Pipeline holds the wired services. Sweeper and PubSub are nil when disabled.
type Pipeline struct {
	Dispatcher *dispatch.Dispatcher
	Intake     *ingest.Service
	Orders     orders.Service
	References references.Service
	Sweeper    *sweep.Service
	PubSub     *pubsub.Client
	Health     *metrics.HealthGauges
}

func Build(ctx context.Context, deps Deps) (*Pipeline, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database client is required")
	}
	cfg := deps.Config
	logg := deps.Logger
	conn := deps.DB.DB()

	dispatchMetrics := metrics.NewDispatchMetrics(deps.Registerer)
	receipts := ledger.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	txnRepo := transactions.NewRepository(conn)
	refRepo := references.NewRepository(conn)

	engineParams := reconcile.EngineParams{
		Tx:           deps.DB,
		Orders:       orderRepo,
		Transactions: txnRepo,
		References:   refRepo,
		Monotonic:    cfg.Dispatch.MonotonicStatus,
		Logger:       logg,
	}
	if cfg.Accounting.Enabled {
		gateway, err := newAccountingGateway(cfg.Accounting, txnRepo, logg, dispatchMetrics)
		if err != nil {
			return nil, err
		}
		engineParams.Gateway = gateway
	}
	engine, err := reconcile.NewEngine(engineParams)
	if err != nil {
		return nil, fmt.Errorf("reconcile engine: %w", err)
	}

	p := &Pipeline{Health: metrics.NewHealthGauges(deps.Registerer)}
	queue, err := p.newQueue(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}

	p.Dispatcher, err = dispatch.NewDispatcher(dispatch.DispatcherParams{
		Queue:   queue,
		Ledger:  receipts,
		Engine:  engine,
		Config:  cfg.Dispatch,
		Logger:  logg,
		Metrics: dispatchMetrics,
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("dispatcher: %w", err), p.Close())
	}

	p.Intake, err = ingest.NewService(ingest.ServiceParams{
		Ledger:     receipts,
		Dispatcher: p.Dispatcher,
		Logger:     logg,
		Metrics:    dispatchMetrics,
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("ingest service: %w", err), p.Close())
	}
	if p.Orders, err = orders.NewService(orderRepo); err != nil {
		return nil, multierr.Append(err, p.Close())
	}
	if p.References, err = references.NewService(refRepo); err != nil {
		return nil, multierr.Append(err, p.Close())
	}

	if cfg.Sweep.Enabled {
		p.Sweeper, err = newSweeper(cfg, logg, deps.Redis, receipts, p.Dispatcher, metrics.NewSweepJobMetrics(deps.Registerer))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("sweeper: %w", err), p.Close())
		}
	}
	return p, nil
}

// Close releases the broker client, if any.
func (p *Pipeline) Close() error {
	if p == nil || p.PubSub == nil {
		return nil
	}
	return p.PubSub.Close()
}

func (p *Pipeline) newQueue(ctx context.Context, cfg *config.Config, logg *logger.Logger) (dispatch.Queue, error) {
	switch strings.ToLower(cfg.Dispatch.Backend) {
	case config.BackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		p.PubSub = client
		return dispatch.NewPubSubQueue(
			client.WebhookPublisher(),
			client.WebhookSubscriber(),
			cfg.PubSub.MaxOutstanding,
			cfg.Dispatch.EnqueueTimeout,
			logg,
		), nil
	default:
		return dispatch.NewMemoryQueue(cfg.Dispatch.QueueSize, cfg.Dispatch.EnqueueTimeout, logg), nil
	}
}

func newAccountingGateway(cfg config.AccountingConfig, recorder accounting.PaymentIDRecorder, logg *logger.Logger, m *metrics.DispatchMetrics) (*accounting.Adapter, error) {
	client, err := odoo.NewClient(cfg.BaseURL, cfg.WebhookKey, odoo.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("odoo client: %w", err)
	}
	adapter, err := accounting.NewAdapter(client, recorder, cfg, logg, m)
	if err != nil {
		return nil, fmt.Errorf("accounting adapter: %w", err)
	}
	return adapter, nil
}

func newSweeper(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, receipts ledger.Ledger, dispatcher *dispatch.Dispatcher, m *metrics.SweepJobMetrics) (*sweep.Service, error) {
	if redisClient == nil {
		return nil, errors.New("redis client is required for the sweep lock")
	}
	lock, err := sweep.NewRedisLock(redisClient, redisClient.LockKey(sweepLockName), cfg.Sweep.LockTTL)
	if err != nil {
		return nil, err
	}
	stale, err := sweep.NewStaleClaimsJob(sweep.StaleClaimsJobParams{
		Logger:     logg,
		Ledger:     receipts,
		Timeout:    cfg.Sweep.StaleClaimTimeout,
		MaxRetries: cfg.Dispatch.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	redispatch, err := sweep.NewRedispatchJob(sweep.RedispatchJobParams{
		Logger:     logg,
		Ledger:     receipts,
		Dispatcher: dispatcher,
		IdleAge:    cfg.Sweep.RedispatchAge,
		MaxRetries: cfg.Dispatch.MaxRetries,
		BatchSize:  cfg.Sweep.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	return sweep.NewService(sweep.ServiceParams{
		Logger:   logg,
		Registry: sweep.NewRegistry(stale, redispatch),
		Lock:     lock,
		Metrics:  m,
		Interval: cfg.Sweep.Interval,
	})
}
