package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sequinstream/sequin-go/internal/config"
	"github.com/sequinstream/sequin-go/internal/logger"
	"github.com/sequinstream/sequin-go/internal/relay"
	"github.com/sequinstream/sequin-go/internal/storage"
	"github.com/sequinstream/sequin-go/pkg/publishers"
	"github.com/sequinstream/sequin-go/pkg/sequin"
	"github.com/sequinstream/sequin-go/pkg/subscriptions"
)

// Relay is the relay runtime. It owns the poll loop and the resources the
// relay service depends on: the Sequin client, publishers and dedupe store.
type Relay struct {
	cfg          *config.Config
	subs         []subscriptions.Subscription
	fanout       *publishers.Fanout
	service      *relay.Service
	pollInterval time.Duration
	log          logger.Logger
	store        storage.Store
}

// NewRelay builds a relay runtime from config files.
func NewRelay(ctx context.Context, cfg *config.Config, log logger.Logger) (*Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	subReg, err := subscriptions.LoadRegistry(cfg.SubscriptionsFile)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions registry: %w", err)
	}
	subs := subReg.All()
	subIDs := make([]string, 0, len(subs))
	for _, s := range subs {
		subIDs = append(subIDs, s.ID)
	}
	log.InfoObj("subscriptions registry loaded", "subscriptions_meta", map[string]any{
		"count": len(subIDs),
		"ids":   subIDs,
	})

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabledPublishers := publisherReg.Enabled()
	if len(enabledPublishers) == 0 {
		return nil, fmt.Errorf("no publishers configured")
	}

	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabledPublishers, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubClients)
	publisherSummaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})

	storeOpts := storage.Options{
		MessageTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"message_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	client := sequin.NewClient(
		sequin.WithBaseURL(cfg.SequinURL),
		sequin.WithLogger(log),
	)
	log.InfoObj("sequin client configured", "sequin_url", client.BaseURL())

	return &Relay{
		cfg:          cfg,
		subs:         subs,
		fanout:       fanout,
		service:      relay.NewService(client, fanout, log, store),
		pollInterval: cfg.PollInterval,
		log:          log,
		store:        store,
	}, nil
}

// Run ensures subscriptions, then polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r == nil || r.service == nil {
		return fmt.Errorf("relay is not initialized")
	}
	defer r.close()

	if err := r.service.Ensure(ctx, r.subs); err != nil {
		r.log.ErrorObj("subscription ensure failed", "error", err)
	}

	r.log.InfoObj("relay loop starting", "relay_state", map[string]any{
		"subscriptions_count": len(r.subs),
		"publishers_count":    r.fanout.Size(),
		"poll_interval":       r.pollInterval.String(),
	})

	if err := r.runOnce(ctx); err != nil {
		r.log.ErrorObj("initial poll failed", "error", err)
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.InfoObj("relay loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := r.runOnce(ctx); err != nil {
				r.log.ErrorObj("scheduled poll failed", "error", err)
			}
		}
	}
}

// runOnce performs a single relay pass across all subscriptions.
func (r *Relay) runOnce(ctx context.Context) error {
	start := time.Now()
	if err := r.service.Run(ctx, r.subs); err != nil {
		return err
	}
	r.log.DebugObj("poll completed", "poll_meta", map[string]any{
		"subscriptions_count": len(r.subs),
		"elapsed_ms":          time.Since(start).Milliseconds(),
	})
	return nil
}

// close releases publishers and the storage backend, logging any errors.
func (r *Relay) close() {
	if r == nil {
		return
	}
	if err := r.fanout.Close(); err != nil {
		r.log.ErrorObj("publisher close failed", "error", err)
	}
	if r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		r.log.ErrorObj("storage close failed", "error", err)
	}
}
