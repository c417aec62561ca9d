package backend

import (
	"context"
	"strconv"
	"time"

	"github.com/kure-project/kure-monitor/internal/telemetry"
	"github.com/kure-project/kure-monitor/pkg/kure"
)

// RunRetentionSweeper runs until ctx is cancelled, periodically deleting
// resolved/ignored rows older than the admin-configured bounds (§4.2). A
// bound of 0 disables deletion for that status entirely, grounded on the
// teacher's escalation engine's ticker+context.Done() background-loop
// shape (pkg/escalation/engine.go, since repurposed out of this workspace).
func (b *Backend) RunRetentionSweeper(ctx context.Context) {
	ticker := time.NewTicker(b.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweepOnce(ctx)
		}
	}
}

func (b *Backend) sweepOnce(ctx context.Context) {
	historyMinutes, err := b.retentionMinutes(ctx, kure.SettingHistoryRetentionMinutes)
	if err != nil {
		b.Logger.Error("reading history retention setting", "error", err)
	} else if historyMinutes > 0 {
		n, err := b.Store.CleanupOldResolvedPods(ctx, historyMinutes)
		if err != nil {
			b.Logger.Error("sweeping resolved pod failures", "error", err)
		} else if n > 0 {
			telemetry.RetentionSweepDeletedTotal.WithLabelValues("resolved").Add(float64(n))
			b.Logger.Info("retention sweep deleted resolved rows", "count", n)
		}
	}

	ignoredMinutes, err := b.retentionMinutes(ctx, kure.SettingIgnoredRetentionMinutes)
	if err != nil {
		b.Logger.Error("reading ignored retention setting", "error", err)
	} else if ignoredMinutes > 0 {
		n, err := b.Store.CleanupOldIgnoredPods(ctx, ignoredMinutes)
		if err != nil {
			b.Logger.Error("sweeping ignored pod failures", "error", err)
		} else if n > 0 {
			telemetry.RetentionSweepDeletedTotal.WithLabelValues("ignored").Add(float64(n))
			b.Logger.Info("retention sweep deleted ignored rows", "count", n)
		}
	}
}

func (b *Backend) retentionMinutes(ctx context.Context, key string) (int, error) {
	raw, err := b.Store.GetSetting(ctx, key)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
