package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shardgate-project/shardgate/internal/config"
	"github.com/shardgate-project/shardgate/internal/network"
)

func TestNextCleanupTime(t *testing.T) {
	base := time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		hhmm string
		want time.Time
	}{
		{"11:00", time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)},
		{"10:30", time.Date(2026, 3, 11, 10, 30, 0, 0, time.UTC)},
		{"04:00", time.Date(2026, 3, 11, 4, 0, 0, 0, time.UTC)},
		{"garbage", time.Date(2026, 3, 11, 4, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := nextCleanupTime(base, tt.hhmm); !got.Equal(tt.want) {
			t.Errorf("nextCleanupTime(%q) = %v, want %v", tt.hhmm, got, tt.want)
		}
	}
}

type fakeStore struct {
	eventsCutoff   time.Time
	sessionsCutoff time.Time
}

func (f *fakeStore) PruneLoginEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	f.eventsCutoff = olderThan
	return 3, nil
}

func (f *fakeStore) PruneSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	f.sessionsCutoff = olderThan
	return 1, nil
}

func (f *fakeStore) CountByKind(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{"account_login": 2}, nil
}

func TestRunAuditCleanerUsesRetention(t *testing.T) {
	cfg := config.DefaultConfig()
	app := cfg.GetApplicationData()
	app.AuditCleaner.RetentionDays = 7
	cfg.SetApplicationData(app)

	store := &fakeStore{}
	s := NewScheduler(cfg, store, network.NewConnectionRegistry(), nil)
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.RunAuditCleaner(context.Background())

	want := now.AddDate(0, 0, -7)
	if !store.eventsCutoff.Equal(want) || !store.sessionsCutoff.Equal(want) {
		t.Fatalf("cutoffs = %v / %v, want %v", store.eventsCutoff, store.sessionsCutoff, want)
	}

	// Without a store both tasks are no-ops.
	NewScheduler(cfg, nil, network.NewConnectionRegistry(), nil).RunAuditCleaner(context.Background())
	NewScheduler(cfg, nil, network.NewConnectionRegistry(), nil).LogStats(context.Background())
	s.LogStats(context.Background())
}

func TestStartStopsOnCancel(t *testing.T) {
	s := NewScheduler(config.DefaultConfig(), &fakeStore{}, network.NewConnectionRegistry(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
