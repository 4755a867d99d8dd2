package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sagars2004/Flowstate/logging"
)

// CleanupResult reports what a retention pass removed.
type CleanupResult struct {
	// SessionsDeleted is the number of completed sessions removed
	SessionsDeleted int64
	// EventsDeleted is the number of activity events removed
	EventsDeleted int64
	// InterventionsDeleted is the number of intervention records removed
	InterventionsDeleted int64
	// Duration is how long the pass took
	Duration time.Duration
}

// TotalDeleted is the sum across all tables.
func (r CleanupResult) TotalDeleted() int64 {
	return r.SessionsDeleted + r.EventsDeleted + r.InterventionsDeleted
}

// Cleanup deletes completed sessions that ended before cutoff, along
// with their events and interventions, then vacuums to reclaim space.
// Active sessions are never touched regardless of age. The deletes run
// in one transaction so a failure leaves everything in place.
func (d *Database) Cleanup(ctx context.Context, cutoff time.Time) (CleanupResult, error) {
	start := time.Now()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("failed to begin cleanup transaction: %w", err)
	}
	defer tx.Rollback()

	var result CleanupResult
	expired := `SELECT id FROM sessions WHERE status = 'completed' AND end_time < ?`
	boundary := formatTime(cutoff)

	deletes := []struct {
		query string
		count *int64
	}{
		{"DELETE FROM activity_events WHERE session_id IN (" + expired + ")", &result.EventsDeleted},
		{"DELETE FROM interventions WHERE session_id IN (" + expired + ")", &result.InterventionsDeleted},
		{"DELETE FROM sessions WHERE status = 'completed' AND end_time < ?", &result.SessionsDeleted},
	}
	for _, del := range deletes {
		res, err := tx.ExecContext(ctx, del.query, boundary)
		if err != nil {
			return CleanupResult{}, fmt.Errorf("cleanup delete failed: %w", err)
		}
		if *del.count, err = res.RowsAffected(); err != nil {
			return CleanupResult{}, fmt.Errorf("failed to count cleanup deletes: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return CleanupResult{}, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	// VACUUM cannot run inside a transaction
	if result.TotalDeleted() > 0 {
		if _, err := d.conn.ExecContext(ctx, "VACUUM"); err != nil {
			return result, fmt.Errorf("failed to vacuum after cleanup: %w", err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// StartCleanupScheduler runs Cleanup every interval until ctx is
// cancelled, keeping retention worth of completed-session history.
func (d *Database) StartCleanupScheduler(ctx context.Context, retention, interval time.Duration, logger *logging.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				result, err := d.Cleanup(ctx, time.Now().Add(-retention))
				if err != nil {
					logger.Warnw("retention cleanup failed", zap.Error(err))
					continue
				}
				if result.TotalDeleted() > 0 {
					logger.Infow("retention cleanup completed",
						zap.Int64("sessions", result.SessionsDeleted),
						zap.Int64("events", result.EventsDeleted),
						zap.Int64("interventions", result.InterventionsDeleted),
						zap.Duration("duration", result.Duration))
				}
			}
		}
	}()
}
