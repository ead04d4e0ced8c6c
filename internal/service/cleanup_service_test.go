package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"device-hub-server/internal/domain"
)

type failingStaleRepo struct {
	*mockDeviceRepo
	err error
}

func (f *failingStaleRepo) MarkStale(ctx context.Context, cutoff, at time.Time) ([]*domain.Device, error) {
	marked, _ := f.mockDeviceRepo.MarkStale(ctx, cutoff, at)
	return marked, f.err
}

func TestCleanupService_Sweep(t *testing.T) {
	repo := newMockDeviceRepo()
	notifier := &recordingNotifier{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	old := now.Add(-25 * time.Hour)
	recent := now.Add(-time.Hour)
	repo.devices = map[string]*domain.Device{
		"stale-active":   {ID: "stale-active", OwnerID: "alice", Status: domain.StatusActive, LastActiveAt: &old},
		"stale-maint":    {ID: "stale-maint", OwnerID: "bob", Status: domain.StatusMaintenance, LastActiveAt: &old},
		"stale-inactive": {ID: "stale-inactive", OwnerID: "alice", Status: domain.StatusInactive, LastActiveAt: &old},
		"fresh":          {ID: "fresh", OwnerID: "alice", Status: domain.StatusActive, LastActiveAt: &recent},
		"never-seen":     {ID: "never-seen", OwnerID: "alice", Status: domain.StatusActive},
	}

	svc := NewCleanupService(repo, notifier, 0)
	svc.now = func() time.Time { return now }

	result, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if result.MarkedInactive != 2 {
		t.Errorf("Sweep() marked %d devices, want 2", result.MarkedInactive)
	}
	if !result.Cutoff.Equal(now.Add(-DefaultStaleAfter)) {
		t.Errorf("Sweep() cutoff = %v", result.Cutoff)
	}

	ids := append([]string(nil), result.DeviceIDs...)
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "stale-active" || ids[1] != "stale-maint" {
		t.Errorf("Sweep() device ids = %v", ids)
	}

	for id, want := range map[string]domain.DeviceStatus{
		"stale-active":   domain.StatusInactive,
		"stale-maint":    domain.StatusInactive,
		"stale-inactive": domain.StatusInactive,
		"fresh":          domain.StatusActive,
		"never-seen":     domain.StatusActive,
	} {
		if got := repo.devices[id].Status; got != want {
			t.Errorf("%s status = %v, want %v", id, got, want)
		}
	}
	if !repo.devices["stale-active"].LastActiveAt.Equal(old) {
		t.Error("Sweep() must not touch last_active_at")
	}

	if got := notifier.reasons(); len(got) != 2 || got[0] != domain.ReasonStale {
		t.Errorf("notifications = %v, want two stale events", got)
	}

	again, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if again.MarkedInactive != 0 || len(again.DeviceIDs) != 0 {
		t.Errorf("second Sweep() = %+v, want nothing marked", again)
	}
}

func TestCleanupService_CustomThreshold(t *testing.T) {
	repo := newMockDeviceRepo()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seen := now.Add(-2 * time.Hour)
	repo.devices["d1"] = &domain.Device{ID: "d1", OwnerID: "alice", Status: domain.StatusActive, LastActiveAt: &seen}

	svc := NewCleanupService(repo, nil, time.Hour)
	svc.now = func() time.Time { return now }

	result, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.MarkedInactive != 1 {
		t.Errorf("Sweep() marked %d devices, want 1", result.MarkedInactive)
	}
}

func TestCleanupService_PartialFailure(t *testing.T) {
	base := newMockDeviceRepo()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	base.devices["d1"] = &domain.Device{ID: "d1", OwnerID: "alice", Status: domain.StatusActive, LastActiveAt: &old}

	storeErr := errors.New("write conflict")
	notifier := &recordingNotifier{}
	svc := NewCleanupService(&failingStaleRepo{mockDeviceRepo: base, err: storeErr}, notifier, DefaultStaleAfter)
	svc.now = func() time.Time { return now }

	result, err := svc.Sweep(context.Background())
	if !errors.Is(err, storeErr) {
		t.Fatalf("Sweep() error = %v, want %v", err, storeErr)
	}
	if result == nil || result.MarkedInactive != 1 {
		t.Fatalf("Sweep() result = %+v, want the transitioned device reported", result)
	}
	if len(notifier.reasons()) != 1 {
		t.Error("transitioned devices must still be announced on partial failure")
	}
}
