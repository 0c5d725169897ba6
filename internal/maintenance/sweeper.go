// Package maintenance runs the periodic housekeeping sweep: healing missing
// queue timestamps and purging collected jobs past retention.
package maintenance

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"printq/internal/config"
	"printq/internal/core"
)

type Sweeper struct {
	engine *core.Engine
	cfg    config.MaintenanceConfig
	cron   *cron.Cron
}

func NewSweeper(engine *core.Engine, cfg config.MaintenanceConfig) *Sweeper {
	return &Sweeper{
		engine: engine,
		cfg:    cfg,
		cron:   cron.New(),
	}
}

func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[maintenance] sweep scheduled: %s", s.cfg.SweepSchedule)
	return nil
}

func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one heal + purge pass. Also invoked once at startup so a
// restarted server repairs its data before serving.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.engine.HealQueue(ctx); err != nil {
		log.Printf("[maintenance] heal pass failed: %v", err)
	}

	purged, err := s.engine.PurgeCollected(ctx, s.cfg.RetainCollected)
	if err != nil {
		log.Printf("[maintenance] purge failed: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("[maintenance] purged %d collected jobs older than %s", purged, s.cfg.RetainCollected)
	}
}
