package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/sudo-init-do/handyhub/internal/events"
	"github.com/sudo-init-do/handyhub/internal/models"
)

// Sweep moves every Waiting request past its deadline to Expired and tells
// the requesters. Requests accepted first are simply not touched.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	expired, err := s.Store.ExpireRequests(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire requests: %w", err)
	}
	for _, r := range expired {
		s.requestUpdated(r, "expired")
		s.notify(ctx, r.RequesterID, "Request expired", fmt.Sprintf("Your %s request expired without a provider", r.TypeOfWork), map[string]any{
			"requestId": r.ID,
			"action":    "expired",
		})
		s.publish(ctx, events.RequestExpired, r)
	}
	if len(expired) > 0 {
		s.Log.Info().Int("count", len(expired)).Msg("expired stale requests")
	}
	return len(expired), nil
}

// PendingExpiry lists what the next Sweep would expire.
func (s *Service) PendingExpiry(ctx context.Context) ([]models.ServiceRequest, error) {
	rs, err := s.Store.ListExpiredWaiting(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list expired requests: %w", err)
	}
	return rs, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.Log.Error().Err(err).Msg("sweep")
			}
		}
	}
}
