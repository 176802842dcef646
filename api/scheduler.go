/*
scheduler.go - Nightly summary rebuild

PURPOSE:
  Rebuilds the quarterly/yearly summary tables and cached client metrics
  on a cron schedule so that dashboard aggregates stay correct even when
  rows are edited outside the API.

SEE ALSO:
  - store/sqlite/summaries.go: Rebuild queries
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Noodieknoodie/4GPTK/store/sqlite"
)

// DefaultSummarySchedule runs the rebuild at 03:00 every night.
const DefaultSummarySchedule = "0 3 * * *"

// SummaryScheduler periodically rebuilds derived tables for all clients.
type SummaryScheduler struct {
	store *sqlite.Store
	log   *logrus.Logger
	cron  *cron.Cron
}

func NewSummaryScheduler(store *sqlite.Store, log *logrus.Logger) *SummaryScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SummaryScheduler{
		store: store,
		log:   log,
		cron:  cron.New(),
	}
}

// Start registers the rebuild job and starts the cron loop. The schedule
// uses standard five-field cron syntax.
func (s *SummaryScheduler) Start(spec string) error {
	if spec == "" {
		spec = DefaultSummarySchedule
	}
	if _, err := s.cron.AddFunc(spec, s.RebuildAll); err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("schedule", spec).Info("summary scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *SummaryScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RebuildAll walks every client and rebuilds its summaries and metrics.
// Per-client failures are logged and do not abort the sweep.
func (s *SummaryScheduler) RebuildAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	ids, err := s.store.ListClientIDs(ctx)
	if err != nil {
		s.log.WithError(err).Error("summary rebuild: failed to list clients")
		return
	}

	start := time.Now()
	failures := 0
	for _, id := range ids {
		if err := s.store.RebuildSummaries(ctx, id); err != nil {
			s.log.WithError(err).WithField("client_id", id).Warn("summary rebuild failed")
			failures++
			continue
		}
		if err := s.store.RefreshClientMetrics(ctx, id); err != nil {
			s.log.WithError(err).WithField("client_id", id).Warn("metrics refresh failed")
			failures++
		}
	}

	s.log.WithFields(logrus.Fields{
		"clients":  len(ids),
		"failures": failures,
		"elapsed":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("summary rebuild complete")
}
