package checks

import (
	"context"
	"time"

	"github.com/charlesng35/issuetrail/internal/monitoring"
)

// Pinger is the minimal surface needed to probe a cache connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Redis returns a readiness probe for the shared cache. The membership cache
// and rate limiter fail open, so an unreachable Redis degrades rather than
// takes the service down.
func Redis(client Pinger) monitoring.Check {
	return monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "redis disabled"}
		}
		if err := client.Ping(ctx); err != nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  err.Error(),
				Duration: time.Since(start),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}
