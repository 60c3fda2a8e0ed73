// Command meridian-maintenance runs scheduled housekeeping against the
// service database: expiring stale invitations and pruning processed
// webhook event records.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/meridianhq/meridian/pkg/billing"
	"github.com/meridianhq/meridian/pkg/config"
	"github.com/meridianhq/meridian/pkg/observability"
	"github.com/meridianhq/meridian/pkg/storage"
	"github.com/meridianhq/meridian/pkg/tenant"
)

func main() {
	invitationSchedule := flag.String("invitation-schedule", "@hourly", "Cron schedule for expired invitation cleanup")
	webhookSchedule := flag.String("webhook-schedule", "@daily", "Cron schedule for webhook event pruning")
	webhookRetentionDays := flag.Int("webhook-retention-days", 90, "Days to retain processed webhook event records")
	runOnce := flag.Bool("once", false, "Run all jobs once and exit")
	flag.Parse()

	log := observability.NewLogger(observability.InfoLevel, os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, storage.PoolConfig{
		URL:          cfg.DB.URL,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		PingTimeout:  cfg.DB.QueryTimeout,
	})
	if err != nil {
		log.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	cleanupInvitations := func() {
		expired, err := tenant.CleanupExpiredInvitations(ctx, db)
		if err != nil {
			log.WithError(err).Error("invitation cleanup failed")
			return
		}
		log.WithField("expired", expired).Info("invitation cleanup complete")
	}
	pruneWebhookEvents := func() {
		pruned, err := billing.PruneProcessedEvents(ctx, db, *webhookRetentionDays)
		if err != nil {
			log.WithError(err).Error("webhook event pruning failed")
			return
		}
		log.WithField("pruned", pruned).Info("webhook event pruning complete")
	}

	if *runOnce {
		cleanupInvitations()
		pruneWebhookEvents()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*invitationSchedule, cleanupInvitations); err != nil {
		log.WithError(err).Error("invalid invitation schedule")
		os.Exit(1)
	}
	if _, err := c.AddFunc(*webhookSchedule, pruneWebhookEvents); err != nil {
		log.WithError(err).Error("invalid webhook schedule")
		os.Exit(1)
	}

	c.Start()
	log.Info("maintenance scheduler started")

	<-ctx.Done()
	log.Info("shutdown signal received")
	<-c.Stop().Done()
	log.Info("maintenance scheduler stopped")
}
