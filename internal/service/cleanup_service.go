package service

import (
	"context"
	"fmt"
	"time"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/notify"
	"device-hub-server/internal/repository"

	"github.com/samber/lo"
)

// DefaultStaleAfter is how long a device may stay silent before the sweep
// marks it inactive.
const DefaultStaleAfter = 24 * time.Hour

// CleanupService marks devices inactive once their last heartbeat is older
// than the staleness threshold. It has no caller identity and spans all
// owners.
type CleanupService struct {
	repo       repository.DeviceRepository
	notifier   notify.Notifier
	staleAfter time.Duration
	now        func() time.Time
}

func NewCleanupService(repo repository.DeviceRepository, notifier notify.Notifier, staleAfter time.Duration) *CleanupService {
	if notifier == nil {
		notifier = notify.Nop()
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &CleanupService{
		repo:       repo,
		notifier:   notifier,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Sweep runs one pass. On a partial failure the result still lists the
// devices that were transitioned.
func (s *CleanupService) Sweep(ctx context.Context) (*domain.SweepResult, error) {
	started := s.now().UTC()
	cutoff := started.Add(-s.staleAfter)

	marked, err := s.repo.MarkStale(ctx, cutoff, started)

	result := &domain.SweepResult{
		StartedAt:      started,
		Cutoff:         cutoff,
		MarkedInactive: len(marked),
		DeviceIDs: lo.Map(marked, func(d *domain.Device, _ int) string {
			return d.ID
		}),
	}

	for _, device := range marked {
		s.notifier.Notify(ctx, domain.NewStatusEvent(device, domain.ReasonStale, started))
	}

	if err != nil {
		return result, fmt.Errorf("failed to mark stale devices: %w", err)
	}

	return result, nil
}
