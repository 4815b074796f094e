package syncer

import (
	"context"
	"time"

	"clinicsync/internal/logger"
)

const refreshHour = 5 // 5 AM, before the clinic opens

// StartDailyRefresh starts a background routine that refreshes every
// coordinator once a day, so long-running daemons do not serve day-old
// caches when no auth events arrive. Refresh respects the in-flight guard,
// so a scheduled run never piles onto an active cycle.
func StartDailyRefresh(coordinators ...*Coordinator) {
	go func() {
		logger.LogInfo("Daily refresh routine started - will run daily at %d:00", refreshHour)

		for {
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), refreshHour, 0, 0, 0, now.Location())
			if now.After(next) {
				next = next.Add(24 * time.Hour)
			}

			logger.LogInfo("Next scheduled refresh at %v (in %v)", next.Format("2006-01-02 15:04:05"), next.Sub(now))
			time.Sleep(next.Sub(now))

			for _, c := range coordinators {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				c.Refresh(ctx)
				cancel()
			}
		}
	}()
}
