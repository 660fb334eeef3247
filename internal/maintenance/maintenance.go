// Package maintenance runs the low-frequency upkeep tasks that sit outside
// the per-second policy tick (internal/policy): a cron-scheduled RTC
// resync that fires regardless of the skew-detection in the policy engine,
// and a config-persistence backstop in case a setter's debounced write was
// ever lost to a crash between markDirty and persistLoop picking it up.
package maintenance

import (
	"github.com/pisugar/pisugar-server/internal/config"
	"github.com/pisugar/pisugar-server/internal/core"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler owns the cron runner for the process.
type Scheduler struct {
	cron    *cron.Cron
	core    *core.Core
	cfgPath string
	log     *zap.Logger
}

// New builds a Scheduler; call Start to begin running the registered jobs.
func New(c *core.Core, cfgPath string, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		core:    c,
		cfgPath: cfgPath,
		log:     log.Named("maintenance"),
	}
}

// Start registers the standing jobs and starts the cron runner in its own
// goroutine. Call Stop on shutdown.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc("@hourly", s.resyncRTC); err != nil {
		s.log.Error("failed to schedule hourly RTC resync", zap.Error(err))
	}
	if _, err := s.cron.AddFunc("@every 10m", s.flushConfig); err != nil {
		s.log.Error("failed to schedule config flush backstop", zap.Error(err))
	}
	s.cron.Start()
}

// Stop halts the cron runner, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) resyncRTC() {
	if err := s.core.RTCWeb(); err != nil {
		s.log.Warn("scheduled RTC resync failed", zap.Error(err))
		return
	}
	s.log.Debug("scheduled RTC resync complete")
}

func (s *Scheduler) flushConfig() {
	cfg := s.core.Store.Config()
	if err := config.Persist(s.cfgPath, cfg); err != nil {
		s.log.Warn("scheduled config flush failed", zap.Error(err))
	}
}
