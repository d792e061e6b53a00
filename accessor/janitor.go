package accessor

import (
	"context"
	"time"
)

// RunJanitor purges codes older than maxAge every interval until ctx is done.
// A non-positive maxAge or interval returns immediately.
func (s *Store) RunJanitor(ctx context.Context, maxAge, interval time.Duration) {
	if maxAge <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("max_age", maxAge).Dur("interval", interval).Msg("authorization code janitor started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Purge(s.nowFunc().Add(-maxAge))
		}
	}
}
