package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
)

const (
	limiterSweepSchedule = "@every 5m"
	jobTimeout           = 5 * time.Minute
)

type invitationPurger interface {
	PurgeExpiredInvitations(ctx context.Context) (int64, error)
}

// scheduleJobs starts the background maintenance jobs
func scheduleJobs(cfg config.TenancyConfig, purger invitationPurger, limiters []*middleware.RateLimiter, logger *observability.Logger) (*cron.Cron, error) {
	c := cron.New()

	if cfg.InvitationPurgeSchedule != "" {
		_, err := c.AddFunc(cfg.InvitationPurgeSchedule, func() {
			defer observability.RecoverPanic(logger, "invitation purge")

			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if _, err := purger.PurgeExpiredInvitations(ctx); err != nil {
				logger.WithError(err).Error("Invitation purge failed")
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if len(limiters) > 0 {
		_, err := c.AddFunc(limiterSweepSchedule, func() {
			defer observability.RecoverPanic(logger, "rate limiter sweep")
			for _, l := range limiters {
				l.Cleanup()
			}
		})
		if err != nil {
			return nil, err
		}
	}

	c.Start()
	logger.WithField("entries", len(c.Entries())).Info("Background jobs scheduled")
	return c, nil
}
