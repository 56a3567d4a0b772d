package importer

import (
	"context"
	"time"
)

// RunSweeper force-fails jobs stuck in PROCESSING. It is the sole recovery
// path for tasks lost to a crash or an exceeded deadline, and runs until the
// context is cancelled. One sweep happens immediately at startup so a restart
// clears the backlog without waiting a full interval.
func (s *Service) RunSweeper(ctx context.Context, interval, timeout time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = DefaultStuckTimeout
	}

	s.SweepOnce(ctx, timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx, timeout)
		}
	}
}

// SweepOnce fails every job that has sat in PROCESSING longer than timeout.
func (s *Service) SweepOnce(ctx context.Context, timeout time.Duration) {
	cutoff := s.now().Add(-timeout)
	stuck, err := s.repo.ListStuckJobs(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep: listing stuck jobs")
		return
	}

	for _, job := range stuck {
		s.log.Warn().
			Str("job_id", job.ID).
			Time("updated_at", job.UpdatedAt).
			Msg("sweep: failing stuck job")
		s.markFailed(ctx, job, "processing timed out")
	}
}
