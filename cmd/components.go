package cmd

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/pagevet/pagevet/internal/audit"
	checkpointmem "github.com/pagevet/pagevet/internal/checkpoint/memory"
	checkpointpg "github.com/pagevet/pagevet/internal/checkpoint/postgres"
	"github.com/pagevet/pagevet/internal/clock/system"
	"github.com/pagevet/pagevet/internal/config"
	iduuid "github.com/pagevet/pagevet/internal/id/uuid"
	"github.com/pagevet/pagevet/internal/judge"
	"github.com/pagevet/pagevet/internal/logging"
	"github.com/pagevet/pagevet/internal/metrics"
	"github.com/pagevet/pagevet/internal/notify"
	pubsubpub "github.com/pagevet/pagevet/internal/publisher/pubsub"
	"github.com/pagevet/pagevet/internal/renderer"
	scansmem "github.com/pagevet/pagevet/internal/scans/memory"
	"github.com/pagevet/pagevet/internal/scheduler"
	storagegcs "github.com/pagevet/pagevet/internal/storage/gcs"
	storagelocal "github.com/pagevet/pagevet/internal/storage/local"
	storagemem "github.com/pagevet/pagevet/internal/storage/memory"
)

// components holds the wired service graph shared by the serve and scan
// commands.
type components struct {
	cfg    config.Config
	logger *zap.Logger
	sched  *scheduler.Scheduler
	scans  audit.ScanStore
	hub    *notify.Hub

	closers []func(ctx context.Context)
}

// buildComponents loads configuration and wires every subsystem.
func buildComponents(ctx context.Context, cfgPath string) (*components, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	c := &components{cfg: cfg, logger: logger}

	rend, err := renderer.New(renderer.Config{
		UserAgent:          cfg.Render.UserAgent,
		DOMReadyTimeout:    secondsToDuration(cfg.Render.DOMReadyTimeoutSec),
		NetworkIdleTimeout: secondsToDuration(cfg.Render.NetworkIdleTimeoutSec),
		LoadTimeout:        secondsToDuration(cfg.Render.LoadTimeoutSec),
		HostQPS:            cfg.Render.HostQPS,
	}, logging.Component(logger, "renderer"))
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}
	c.closers = append(c.closers, func(ctx context.Context) {
		if cerr := rend.Close(ctx); cerr != nil {
			logger.Warn("renderer close failed", zap.Error(cerr))
		}
	})

	oracle, err := judge.NewOpenAIOracle(judge.OracleOptions{
		BaseURL:        cfg.Oracle.BaseURL,
		Model:          cfg.Oracle.Model,
		APIKeyEnv:      cfg.Oracle.APIKeyEnv,
		TimeoutSeconds: cfg.Oracle.TimeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("init oracle: %w", err)
	}
	policy := judge.DefaultRetryPolicy()
	if cfg.Oracle.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Oracle.MaxAttempts
	}
	jdg := judge.New(oracle, policy, logging.Component(logger, "judge"))

	checkpoints, err := buildCheckpointStore(ctx, cfg, c)
	if err != nil {
		return nil, err
	}
	blobs, err := buildBlobStore(ctx, cfg, c)
	if err != nil {
		return nil, err
	}
	hub, err := buildHub(ctx, cfg, logger, c)
	if err != nil {
		return nil, err
	}
	c.hub = hub

	scans := scansmem.NewStore()
	c.scans = scans

	sched, err := scheduler.New(scheduler.Config{
		BatchSize:      cfg.Scan.BatchSize,
		MinOracleDelay: cfg.MinOracleDelay(),
	}, scheduler.Deps{
		Renderer:    rend,
		Judge:       jdg,
		Checkpoints: checkpoints,
		Scans:       scans,
		Blobs:       blobs,
		Hub:         hub,
		IDs:         &iduuid.Generator{},
		Clock:       system.Clock{},
		Logger:      logging.Component(logger, "scheduler"),
	})
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	c.sched = sched
	return c, nil
}

// Close tears the components down in reverse construction order.
func (c *components) Close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i](ctx)
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func buildCheckpointStore(ctx context.Context, cfg config.Config, c *components) (audit.CheckpointStore, error) {
	switch cfg.Checkpoint.Backend {
	case "postgres":
		store, err := checkpointpg.New(ctx, checkpointpg.Config{
			DSN:   cfg.Checkpoint.DSN,
			Table: cfg.Checkpoint.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("init checkpoint store: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) { store.Close() })
		return store, nil
	default:
		return checkpointmem.NewStore(), nil
	}
}

func buildBlobStore(ctx context.Context, cfg config.Config, c *components) (audit.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "local":
		store, err := storagelocal.New(storagelocal.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) { _ = client.Close() })
		store, err := storagegcs.New(client, storagegcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		return store, nil
	default:
		return storagemem.NewBlobStore(), nil
	}
}

func buildHub(ctx context.Context, cfg config.Config, logger *zap.Logger, c *components) (*notify.Hub, error) {
	sinks := []notify.Sink{notify.NewLogSink(logging.Component(logger, "events"))}
	if cfg.Notify.Enabled {
		client, err := pubsub.NewClient(ctx, cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		pub := pubsubpub.New(client)
		c.closers = append(c.closers, func(context.Context) {
			pub.Close()
			_ = client.Close()
		})
		sinks = append(sinks, notify.NewPublishSink(pub, cfg.Notify.TopicName))
	}
	hub := notify.NewHub(notify.Config{Logger: logging.Component(logger, "notify")}, sinks...)
	c.closers = append(c.closers, func(ctx context.Context) {
		if err := hub.Close(ctx); err != nil {
			logger.Warn("notify hub close failed", zap.Error(err))
		}
	})
	return hub, nil
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
